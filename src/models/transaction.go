package models

import "time"

// Transaction type values.
const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// PredefinedCategories is the fixed category list offered by the form, in
// display order. Anything outside it is a custom category.
var PredefinedCategories = []string{
	"Bills",
	"Food",
	"Shopping",
	"Transport",
	"Salary",
	"Entertainment",
	"Other",
}

// Transaction is a single income or expense record as held by the document
// store. ID, OwnerID and CreatedAt are assigned on create and never change.
type Transaction struct {
	ID        string    `json:"id,omitempty"`
	Type      string    `json:"type"`     // "income" or "expense"
	Amount    float64   `json:"amount"`   // positive, <= 1,000,000
	Title     string    `json:"title"`    // non-empty after trimming
	Category  string    `json:"category"` // predefined or custom, stored as one string
	Date      string    `json:"date"`     // YYYY-MM-DD
	OwnerID   string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Category is the internal tagged view of the single persisted category
// string: either one of PredefinedCategories or free-form custom text.
type Category struct {
	Name   string
	Custom bool
}

// ParseCategory classifies a stored category string.
func ParseCategory(s string) Category {
	for _, c := range PredefinedCategories {
		if s == c {
			return Category{Name: s}
		}
	}
	return Category{Name: s, Custom: true}
}

func (c Category) String() string {
	return c.Name
}
