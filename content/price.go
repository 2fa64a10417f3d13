package content

import "github.com/shopspring/decimal"

// FormatPrice renders p with two decimal places behind symbol, e.g. "£4.50".
// Negative prices are rendered as given.
func FormatPrice(symbol string, p float64) string {
	d := decimal.NewFromFloat(p)
	if d.IsNegative() {
		return "-" + symbol + d.Neg().StringFixed(2)
	}
	return symbol + d.StringFixed(2)
}
