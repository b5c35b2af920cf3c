package currency_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/ammerola/storefront-ledger/internal/pkg/currency"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		code   string
		want   string
	}{
		{name: "usd_is_identity", amount: "10", code: "USD", want: "10"},
		{name: "bif", amount: "10", code: "BIF", want: "28500"},
		{name: "eur", amount: "10", code: "EUR", want: "9.2"},
		{name: "lowercase_code", amount: "1", code: "eur", want: "0.92"},
		{name: "unknown_code_uses_one", amount: "7.5", code: "XYZ", want: "7.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := currency.Convert(decimal.RequireFromString(tt.amount), tt.code)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		code   string
		want   string
	}{
		{name: "usd_two_decimals", amount: "10", code: "USD", want: "$10.00"},
		{name: "eur_symbol", amount: "10", code: "EUR", want: "€9.20"},
		{name: "bif_grouped_integer", amount: "10", code: "BIF", want: "FBu 28,500"},
		{name: "bif_rounds", amount: "1234.5678", code: "BIF", want: "FBu 3,518,518"},
		{name: "unknown_falls_back_to_dollar", amount: "3.456", code: "GBP", want: "$3.46"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, currency.Format(decimal.RequireFromString(tt.amount), tt.code))
		})
	}
}

func TestFormat_IsDeterministic(t *testing.T) {
	amount := decimal.RequireFromString("99.99")
	first := currency.Format(amount, "BIF")
	for range 10 {
		assert.Equal(t, first, currency.Format(amount, "BIF"))
	}
}
