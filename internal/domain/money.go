package domain

import "github.com/shopspring/decimal"

// RoundMoney rounds a derived amount to cents for display. Stored amounts
// stay unrounded so they can always be recomputed from the items.
func RoundMoney(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// FormatMoney renders an amount with exactly two decimals.
func FormatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
