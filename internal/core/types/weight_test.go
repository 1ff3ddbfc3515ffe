package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPiecesToKg_RoundsToThreePlaces(t *testing.T) {
	ratio := KgPerPiece(MustKg("100"), 3) // 33.333...

	assert.Equal(t, "33.333", PiecesToKg(1, ratio).StringFixed(KgPlaces))
	assert.Equal(t, "66.667", PiecesToKg(2, ratio).StringFixed(KgPlaces))
	assert.True(t, PiecesToKg(3, ratio).Equal(decimal.NewFromInt(100)))
}

func TestKgPerPiece_ZeroPieces(t *testing.T) {
	assert.True(t, KgPerPiece(MustKg("12.5"), 0).IsZero())
}

func TestNewKgFromString(t *testing.T) {
	kg, err := NewKgFromString("1.23456")
	assert.NoError(t, err)
	assert.Equal(t, "1.235", kg.String())

	_, err = NewKgFromString("abc")
	assert.Error(t, err)
}
