// internal/pkg/currency/currency.go
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Supported currency codes
const (
	USD = "USD"
	BIF = "BIF"
	EUR = "EUR"
)

// rates converts one unit of the base currency into the display currency.
var rates = map[string]decimal.Decimal{
	USD: decimal.NewFromInt(1),
	BIF: decimal.NewFromInt(2850),
	EUR: decimal.RequireFromString("0.92"),
}

var grouping = message.NewPrinter(language.English)

// Rate returns the fixed rate for code. Unknown codes convert at 1.
func Rate(code string) decimal.Decimal {
	if r, ok := rates[normalize(code)]; ok {
		return r
	}
	return decimal.NewFromInt(1)
}

// Supported reports whether code has a rate of its own.
func Supported(code string) bool {
	_, ok := rates[normalize(code)]
	return ok
}

// Convert turns a base-currency amount into the display currency.
func Convert(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Mul(Rate(code))
}

// Format converts and renders an amount for display.
func Format(amount decimal.Decimal, code string) string {
	converted := Convert(amount, code)
	switch normalize(code) {
	case BIF:
		return "FBu " + grouping.Sprintf("%d", converted.Round(0).IntPart())
	case EUR:
		return "€" + converted.StringFixed(2)
	default:
		return "$" + converted.StringFixed(2)
	}
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
