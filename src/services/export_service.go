// backend/src/services/export_service.go
package services

import (
	"strconv"
	"strings"

	"github.com/username/budgetwise/backend/src/models"
)

var csvHeader = []string{"Title", "Type", "Amount", "Category", "Date"}

// ToCSV renders transactions as CSV in the given order. Every field is
// quoted, embedded quotes are doubled, and amounts use the shortest decimal
// form. The output is pure text; spreadsheet-formula neutralization is the
// caller's concern at the download boundary.
func ToCSV(records []models.Transaction) string {
	var b strings.Builder
	writeCSVRow(&b, csvHeader)
	for _, t := range records {
		writeCSVRow(&b, []string{
			t.Title,
			t.Type,
			strconv.FormatFloat(t.Amount, 'f', -1, 64),
			t.Category,
			t.Date,
		})
	}
	return b.String()
}

func writeCSVRow(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}

// ExportFilename is the download filename offered for the CSV payload.
const ExportFilename = "transactions.csv"
