package entities

import "github.com/shopspring/decimal"

func init() {
	// Prices are published as plain JSON numbers, not quoted strings
	decimal.MarshalJSONWithoutQuotes = true
}

// DrugPrice is a drug with its published price.
type DrugPrice struct {
	DrugCode      string          `json:"drug_code" db:"drug_code"`
	DrugName      string          `json:"drug_name" db:"drug_name"`
	Specification string          `json:"specification" db:"specification"`
	Manufacturer  string          `json:"manufacturer" db:"manufacturer"`
	Price         decimal.Decimal `json:"price" db:"price"`
}
