// Package money holds the decimal helpers shared by every amount-handling
// package. Amounts are INR (1 Health Point = 1 INR) kept to paise precision.
package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round rounds to paise.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent converts a percentage (30 for 30%) into a fraction.
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Div(hundred)
}

// Of returns rate*amount rounded to paise.
func Of(amount, rate decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(rate))
}

// MustParse parses s or panics. Meant for constants.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// IsPaise reports whether d has no precision finer than paise.
func IsPaise(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}
