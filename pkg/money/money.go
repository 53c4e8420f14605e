// Package money formats minor-unit amounts for display.
package money

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var symbols = map[string]string{
	"NGN": "₦",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"KES": "KSh",
	"GHS": "GH₵",
	"ZAR": "R",
}

var printer = message.NewPrinter(language.English)

// Format renders amount (in minor units, 1/100 of the major unit) with the
// currency's symbol, thousands grouping and two decimals:
//
//	Format(500000, "NGN") == "₦5,000.00"
//
// Currencies without a known symbol are prefixed with their ISO code.
func Format(amount int64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	major := printer.Sprintf("%d", amount/100)
	minor := amount % 100
	return fmt.Sprintf("%s%s%s.%02d", sign, Symbol(code), major, minor)
}

// Symbol returns the display prefix for an ISO 4217 code.
func Symbol(code string) string {
	if s, ok := symbols[code]; ok {
		return s
	}
	if unit, err := currency.ParseISO(code); err == nil {
		return unit.String() + " "
	}
	return code + " "
}

// Valid reports whether code is a recognised ISO 4217 currency.
func Valid(code string) bool {
	_, err := currency.ParseISO(code)
	return err == nil
}
