package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/budgetwise/backend/src/models"
	"github.com/username/budgetwise/backend/src/store"
)

func TestComputeTotalsEmpty(t *testing.T) {
	totals := ComputeTotals(nil)
	assert.Equal(t, Totals{}, totals)
}

func TestComputeTotals(t *testing.T) {
	records := []models.Transaction{
		{Type: models.TypeIncome, Amount: 2500},
		{Type: models.TypeExpense, Amount: 100.50},
		{Type: models.TypeExpense, Amount: 49.50},
		{Type: models.TypeIncome, Amount: 300},
	}

	totals := ComputeTotals(records)
	assert.Equal(t, 2800.0, totals.Income)
	assert.Equal(t, 150.0, totals.Expense)
	assert.Equal(t, totals.Income-totals.Expense, totals.Balance)
}

func TestSortedByRecency(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []models.Transaction{
		{ID: "old", Date: "2025-01-10", CreatedAt: base},
		{ID: "new", Date: "2025-03-01", CreatedAt: base},
		{ID: "dateless", Date: "", CreatedAt: base.AddDate(0, 0, 10)},
		{ID: "tied-late", Date: "2025-03-01", CreatedAt: base.Add(time.Hour)},
	}

	sorted := SortedByRecency(records)

	ids := make([]string, len(sorted))
	for i, rec := range sorted {
		ids[i] = rec.ID
	}
	assert.Equal(t, []string{"dateless", "tied-late", "new", "old"}, ids)

	// Input order is untouched.
	assert.Equal(t, "old", records[0].ID)
}

func TestFilterByCategoryAllIsIdentity(t *testing.T) {
	records := []models.Transaction{
		{Category: "Food"},
		{Category: "Bills"},
	}
	filtered := FilterByCategory(records, "All")
	assert.Equal(t, records, filtered)
}

func TestFilterByCategory(t *testing.T) {
	records := []models.Transaction{
		{ID: "a", Category: "Food"},
		{ID: "b", Category: "Bills"},
	}

	filtered := FilterByCategory(records, "Bills")
	require.Len(t, filtered, 1)
	assert.Equal(t, "b", filtered[0].ID)

	// Case-sensitive match.
	assert.Empty(t, FilterByCategory(records, "bills"))
}

func TestDistinctCategories(t *testing.T) {
	records := []models.Transaction{
		{Category: "Food"},
		{Category: "Gym"},
		{Category: "Food"},
		{Category: "Books"},
		{Category: "Gym"},
	}

	got := DistinctCategories(records)
	want := append(append([]string{}, models.PredefinedCategories...), "Gym", "Books")
	assert.Equal(t, want, got)
}

func TestDecodeSnapshot(t *testing.T) {
	created := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(map[string]interface{}{
		"type":     "expense",
		"amount":   12.5,
		"title":    "Coffee",
		"category": "Food",
		"date":     "2025-05-01",
		// Payload identity fields are ignored in favor of the envelope.
		"userId": "spoofed",
	})
	require.NoError(t, err)

	snap := store.Snapshot{
		{ID: "tx1", OwnerID: "u1", CreatedAt: created, Data: payload},
		{ID: "bad", OwnerID: "u1", CreatedAt: created, Data: json.RawMessage(`{not json`)},
	}

	records := DecodeSnapshot(snap)
	require.Len(t, records, 1)
	assert.Equal(t, "tx1", records[0].ID)
	assert.Equal(t, "u1", records[0].OwnerID)
	assert.Equal(t, created, records[0].CreatedAt)
	assert.Equal(t, "Coffee", records[0].Title)
	assert.Equal(t, 12.5, records[0].Amount)
}
