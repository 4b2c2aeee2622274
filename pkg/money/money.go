// Package money converts between the backend's decimal amounts and the integer
// cents the cart and checkout core compute with.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is a non-negative amount in minor units.
type Cents = int64

// FromDecimal rounds a decimal amount to cents. Negative amounts are rejected.
func FromDecimal(amount decimal.Decimal) (Cents, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount %s is negative", amount.String())
	}
	return amount.Shift(2).Round(0).IntPart(), nil
}

// ToDecimal renders cents as a decimal amount with two places.
func ToDecimal(cents Cents) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-2)
}

// LineTotal multiplies a unit price by a quantity.
func LineTotal(unit Cents, qty int) Cents {
	return unit * int64(qty)
}

// Format renders cents as a fixed two-decimal string.
func Format(cents Cents) string {
	return ToDecimal(cents).StringFixed(2)
}
