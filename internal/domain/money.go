package domain

import (
	"github.com/shopspring/decimal"
)

// MinorUnitsPerMajor is the number of kopecks in a rouble
const MinorUnitsPerMajor = 100

var (
	minorFactor = decimal.NewFromInt(MinorUnitsPerMajor)

	// NegligibleDebt is the smallest amount worth billing
	NegligibleDebt = decimal.RequireFromString("0.01")
)

// ToMinorUnits converts a currency amount to integer kopecks.
// Fractions of a kopeck are rounded half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorFactor).Round(0).IntPart()
}

// FromMinorUnits converts integer kopecks back to a currency amount
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// IsNegligible reports whether an amount is below one kopeck in absolute value
func IsNegligible(amount decimal.Decimal) bool {
	return amount.Abs().LessThan(NegligibleDebt)
}

// MinDecimal returns the smaller of a and b
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
