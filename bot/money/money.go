// Package money centralises amount parsing, arithmetic, and rendering for
// expense splitting. All amounts are shopspring decimals; float64 never
// touches money.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SumTolerance is the maximum absolute difference allowed between the sum of
// custom split entries and the expense total.
var SumTolerance = decimal.NewFromFloat(0.01)

// ErrNotPositive is returned for amounts that parse but are zero or negative.
var ErrNotPositive = fmt.Errorf("amount must be positive")

// Parse converts free-text user input into a positive decimal amount.
func Parse(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", text, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrNotPositive
	}
	return d, nil
}

// Format renders an amount with the group's currency symbol and two decimals.
func Format(symbol string, amount decimal.Decimal) string {
	if symbol == "" {
		symbol = "$"
	}
	return symbol + amount.StringFixed(2)
}

// PerHead computes the equal-split share: total divided by the full count of
// selected participants (payer included), rounded to two decimals.
func PerHead(total decimal.Decimal, participants int) decimal.Decimal {
	if participants <= 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(participants)), 2)
}

// SumMatches reports whether sum equals total within SumTolerance.
func SumMatches(sum, total decimal.Decimal) bool {
	return sum.Sub(total).Abs().LessThanOrEqual(SumTolerance)
}
