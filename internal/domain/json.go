package domain

import "github.com/shopspring/decimal"

// The backend models money as JSON numbers; decimal quotes them by default.
// Decoding accepts both forms.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}
