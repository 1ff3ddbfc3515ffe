package deduction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodflow/internal/core/apperror"
	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
)

var t0 = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func lot(stage order.GranularStage, pcs int64, kg string, created time.Time, seq int) production.Event {
	return production.Event{
		ID:         id.New(),
		Stage:      stage,
		QuantityPc: pcs,
		QuantityKg: types.MustKg(kg),
		Lot:        lotcode.Code{Base: "19102026-0800", OrderNumber: "P1", Purpose: lotcode.PurposePackaging, Sequence: seq},
		CreatedAt:  created,
	}
}

func TestBalances_IgnoresReversedAndUnpackaged(t *testing.T) {
	packaged := lot(order.StageAwaitingPackaging, 40, "100", t0, 1)
	pending := lot(order.StageAwaitingInspection, 10, "25", t0, 2)

	deductions := []Deduction{
		{EventID: packaged.ID, QuantityPc: 30, QuantityKg: types.MustKg("75")},
		{EventID: packaged.ID, QuantityPc: 5, QuantityKg: types.MustKg("12.5"), Reversed: true},
	}

	got := Balances([]production.Event{pending, packaged}, deductions)

	require.Len(t, got, 1)
	assert.Equal(t, packaged.ID, got[0].Event.ID)
	assert.Equal(t, int64(30), got[0].DeductedPc)
	assert.Equal(t, int64(10), got[0].RemainingPc)
	assert.Equal(t, "25", got[0].RemainingKg.String())
}

func TestSelectLot_OldestThatCovers(t *testing.T) {
	older := lot(order.StageAwaitingPackaging, 5, "5", t0, 1)
	newer := lot(order.StageShipToA, 40, "40", t0.Add(time.Hour), 2)
	balances := Balances([]production.Event{newer, older}, nil)

	b, err := SelectLot(balances, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, older.ID, b.Event.ID)

	b, err = SelectLot(balances, 30, nil)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, b.Event.ID)

	_, err = SelectLot(balances, 41, nil)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientBalance, appErr.Code)
	assert.Equal(t, apperror.ScopeLot, appErr.Details["scope"])
	assert.Equal(t, int64(40), appErr.Details["available"])
}

func TestSelectLot_Target(t *testing.T) {
	a := lot(order.StageAwaitingPackaging, 40, "40", t0, 1)
	balances := Balances([]production.Event{a}, []Deduction{{EventID: a.ID, QuantityPc: 40, QuantityKg: types.MustKg("40")}})

	_, err := SelectLot(balances, 1, &a.Lot)
	assert.Equal(t, apperror.CodeNoPendingLot, apperror.Code(err))

	unknown := lotcode.Code{Base: "x", OrderNumber: "y"}
	_, err = SelectLot(balances, 1, &unknown)
	assert.Equal(t, apperror.CodeNoPendingLot, apperror.Code(err))
}

func TestSelectLot_NothingLeft(t *testing.T) {
	_, err := SelectLot(nil, 1, nil)
	assert.Equal(t, apperror.CodeNoPendingLot, apperror.Code(err))
}

func TestLotBalance_KgFor(t *testing.T) {
	a := lot(order.StageAwaitingPackaging, 3, "10", t0, 1)
	b := Balances([]production.Event{a}, nil)[0]

	assert.Equal(t, "3.333", b.KgFor(1).String())
	assert.Equal(t, "10", b.KgFor(3).String())
}

func TestHasLiveDeductions(t *testing.T) {
	eid := id.New()
	assert.False(t, HasLiveDeductions([]Deduction{{EventID: eid, Reversed: true}}, eid))
	assert.True(t, HasLiveDeductions([]Deduction{{EventID: eid}}, eid))
}
