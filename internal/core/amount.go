package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string into an exact amount.
//
// It accepts both dot (12.34) and comma (12,34) separators. Signs are
// rejected; amounts below 0.01 are rejected.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("0")     -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, newValidationError("amount", "amount is required")
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, newValidationError("amount", "must be a positive amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, newValidationError("amount", "not a valid decimal number")
	}
	if d.LessThan(minAmount) {
		return decimal.Zero, newValidationError("amount", "must be at least 0.01")
	}
	return d, nil
}

// FormatAmount renders an amount with the display symbol of the given
// currency code, rounded half-up to two fractional digits.
func FormatAmount(d decimal.Decimal, currency string) string {
	return CurrencySymbol(currency) + d.StringFixed(2)
}
