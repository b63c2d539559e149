// backend/src/services/ledger_service.go
package services

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/username/budgetwise/backend/src/logger"
	"github.com/username/budgetwise/backend/src/models"
	"github.com/username/budgetwise/backend/src/store"
)

// TransactionsCollection is the document-store collection holding transactions.
const TransactionsCollection = "transactions"

// Totals are the derived aggregates over one user's transaction set.
type Totals struct {
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Balance float64 `json:"balance"`
}

// ComputeTotals sums amounts by type. Empty input yields all zeros. No
// rounding is applied; two-decimal display formatting is a UI concern.
func ComputeTotals(records []models.Transaction) Totals {
	var t Totals
	for _, rec := range records {
		switch rec.Type {
		case models.TypeIncome:
			t.Income += rec.Amount
		case models.TypeExpense:
			t.Expense += rec.Amount
		}
	}
	t.Balance = t.Income - t.Expense
	return t
}

// recency is the ordering instant of a record: its date when parseable,
// otherwise its creation time.
func recency(t models.Transaction) time.Time {
	if parsed, err := time.Parse("2006-01-02", t.Date); err == nil {
		return parsed
	}
	return t.CreatedAt
}

// SortedByRecency returns a copy ordered by date descending, ties broken by
// creation time descending.
func SortedByRecency(records []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := recency(out[i]), recency(out[j])
		if !ri.Equal(rj) {
			return ri.After(rj)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// FilterByCategory returns the records whose category exactly equals the
// argument. "All" is the identity filter.
func FilterByCategory(records []models.Transaction, category string) []models.Transaction {
	if category == "All" {
		return records
	}
	out := []models.Transaction{}
	for _, rec := range records {
		if rec.Category == category {
			out = append(out, rec)
		}
	}
	return out
}

// DistinctCategories returns the fixed category list followed by any custom
// categories present in records, each once, in first-seen order.
func DistinctCategories(records []models.Transaction) []string {
	out := make([]string, 0, len(models.PredefinedCategories))
	seen := make(map[string]bool, len(models.PredefinedCategories))
	for _, c := range models.PredefinedCategories {
		out = append(out, c)
		seen[c] = true
	}
	for _, rec := range records {
		if rec.Category == "" || seen[rec.Category] {
			continue
		}
		out = append(out, rec.Category)
		seen[rec.Category] = true
	}
	return out
}

// DecodeSnapshot turns a store snapshot into transactions. Identity, owner
// and creation time come from the record envelope, never from the payload.
// Records with undecodable payloads are dropped with a log entry rather than
// poisoning the whole snapshot.
func DecodeSnapshot(snap store.Snapshot) []models.Transaction {
	out := make([]models.Transaction, 0, len(snap))
	for _, rec := range snap {
		var tx models.Transaction
		if err := json.Unmarshal(rec.Data, &tx); err != nil {
			logger.L.Error("Skipping undecodable transaction document", "id", rec.ID, "error", err)
			continue
		}
		tx.ID = rec.ID
		tx.OwnerID = rec.OwnerID
		tx.CreatedAt = rec.CreatedAt
		out = append(out, tx)
	}
	return out
}
