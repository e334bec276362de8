package entities

import "github.com/shopspring/decimal"

// TreatmentItem is a billable medical procedure with its published unit price.
type TreatmentItem struct {
	ItemCode string          `json:"item_code" db:"item_code"`
	ItemName string          `json:"item_name" db:"item_name"`
	Unit     string          `json:"unit" db:"unit"`
	Price    decimal.Decimal `json:"price" db:"price"`
}
