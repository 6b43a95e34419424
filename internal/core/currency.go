package core

// DefaultCurrency is assumed when a stored event predates currency support.
const DefaultCurrency = "USD"

// CurrencyInfo describes one supported currency.
type CurrencyInfo struct {
	Code   string
	Symbol string
	Name   string
}

// currencies is the closed set of supported currency codes.
var currencies = map[string]CurrencyInfo{
	"AUD": {Code: "AUD", Symbol: "A$", Name: "Australian Dollar"},
	"BRL": {Code: "BRL", Symbol: "R$", Name: "Brazilian Real"},
	"CAD": {Code: "CAD", Symbol: "C$", Name: "Canadian Dollar"},
	"CHF": {Code: "CHF", Symbol: "Fr", Name: "Swiss Franc"},
	"CNY": {Code: "CNY", Symbol: "¥", Name: "Chinese Yuan"},
	"EUR": {Code: "EUR", Symbol: "€", Name: "Euro"},
	"GBP": {Code: "GBP", Symbol: "£", Name: "British Pound"},
	"HKD": {Code: "HKD", Symbol: "HK$", Name: "Hong Kong Dollar"},
	"INR": {Code: "INR", Symbol: "₹", Name: "Indian Rupee"},
	"JPY": {Code: "JPY", Symbol: "¥", Name: "Japanese Yen"},
	"KRW": {Code: "KRW", Symbol: "₩", Name: "South Korean Won"},
	"MXN": {Code: "MXN", Symbol: "Mex$", Name: "Mexican Peso"},
	"NOK": {Code: "NOK", Symbol: "kr", Name: "Norwegian Krone"},
	"NZD": {Code: "NZD", Symbol: "NZ$", Name: "New Zealand Dollar"},
	"RUB": {Code: "RUB", Symbol: "₽", Name: "Russian Ruble"},
	"SEK": {Code: "SEK", Symbol: "kr", Name: "Swedish Krona"},
	"SGD": {Code: "SGD", Symbol: "S$", Name: "Singapore Dollar"},
	"TRY": {Code: "TRY", Symbol: "₺", Name: "Turkish Lira"},
	"USD": {Code: "USD", Symbol: "$", Name: "US Dollar"},
	"ZAR": {Code: "ZAR", Symbol: "R", Name: "South African Rand"},
}

// ValidCurrency reports whether code is a supported currency.
func ValidCurrency(code string) bool {
	_, ok := currencies[code]
	return ok
}

// LookupCurrency returns the currency description for a code.
func LookupCurrency(code string) (CurrencyInfo, bool) {
	info, ok := currencies[code]
	return info, ok
}

// CurrencySymbol returns the display symbol for a code, falling back to the
// default currency's symbol for unknown codes.
func CurrencySymbol(code string) string {
	if info, ok := currencies[code]; ok {
		return info.Symbol
	}
	return currencies[DefaultCurrency].Symbol
}
