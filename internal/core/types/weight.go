// Package types provides weight arithmetic shared by the production and
// deduction ledgers.
package types

import (
	"github.com/shopspring/decimal"
)

// KgPlaces is the number of decimal places kept for weights.
const KgPlaces = 3

// Kg is a weight in kilograms.
// Uses decimal.Decimal to avoid floating-point errors.
type Kg = decimal.Decimal

// ZeroKg returns a zero weight.
func ZeroKg() Kg {
	return decimal.Zero
}

// NewKgFromString parses a weight and rounds it to KgPlaces.
func NewKgFromString(s string) (Kg, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return RoundKg(d), nil
}

// MustKg parses a weight, panics on error.
// Use only for constants and tests.
func MustKg(s string) Kg {
	d, err := NewKgFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// RoundKg rounds half away from zero to KgPlaces.
func RoundKg(d decimal.Decimal) Kg {
	return d.Round(KgPlaces)
}

// KgPerPiece returns the unrounded weight of one piece.
// Zero pieces yields a zero ratio.
func KgPerPiece(totalKg Kg, totalPc int64) decimal.Decimal {
	if totalPc <= 0 {
		return decimal.Zero
	}
	return totalKg.Div(decimal.NewFromInt(totalPc))
}

// PiecesToKg converts pieces to weight with the given ratio, rounded to KgPlaces.
func PiecesToKg(pieces int64, ratio decimal.Decimal) Kg {
	return RoundKg(ratio.Mul(decimal.NewFromInt(pieces)))
}
