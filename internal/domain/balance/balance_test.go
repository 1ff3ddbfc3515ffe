package balance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodflow/internal/core/apperror"
	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/deduction"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
)

var now = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func newOrder(t *testing.T, f order.Facility, pcs int64, kg string) *order.Order {
	t.Helper()
	o, err := order.New(order.NewParams{
		Number: "PED-1", Client: "ACME", Tool: "T-100",
		OrderedPc: pcs, OrderedKg: types.MustKg(kg), Facility: f,
	}, now)
	require.NoError(t, err)
	return o
}

func event(o *order.Order, stage order.GranularStage, pcs int64, kg string) production.Event {
	return production.Event{ID: id.New(), OrderID: o.ID, Stage: stage, QuantityPc: pcs, QuantityKg: types.MustKg(kg), CreatedAt: now}
}

func TestCompute_FacilityB(t *testing.T) {
	o := newOrder(t, order.FacilityB, 100, "250")
	o.Track = order.FacilityBTrack{Stage: order.StageAwaitingMachining}
	require.NoError(t, o.Produce(50, o.KgFor(50), now))

	insp := event(o, order.StageAwaitingInspection, 10, "25")
	pack := event(o, order.StageAwaitingPackaging, 40, "100")
	deds := []deduction.Deduction{
		{EventID: pack.ID, QuantityPc: 15, QuantityKg: types.MustKg("37.5")},
		{EventID: pack.ID, QuantityPc: 5, QuantityKg: types.MustKg("12.5"), Reversed: true},
	}

	p := Compute(o, []production.Event{insp, pack}, deds)

	assert.Equal(t, int64(50), p.AvailablePc)
	assert.Equal(t, int64(50), p.ProducedPc)
	assert.Equal(t, int64(40), p.PackagedPc)
	assert.Equal(t, "100", p.PackagedKg.String())
	assert.Equal(t, 1, p.PendingInspection)
	assert.Equal(t, int64(15), p.ConsumedPc)
	assert.Equal(t, int64(25), p.StockPc())
	require.Len(t, p.Lots, 1)
	assert.Equal(t, int64(25), p.Lots[0].RemainingPc)
	assert.Equal(t, int64(10), p.Stages[order.StageAwaitingInspection].Pieces)
}

func TestCompute_FacilityADerivesFromStage(t *testing.T) {
	o := newOrder(t, order.FacilityA, 80, "160")
	o.ProduceAll(now)

	o.Track = order.FacilityATrack{Stage: order.StageInspection}
	p := Compute(o, nil, nil)
	assert.Equal(t, 1, p.PendingInspection)
	assert.Zero(t, p.PackagedPc)
	assert.Nil(t, p.Stages)

	o.Track = order.FacilityATrack{Stage: order.StageShipToClient}
	p = Compute(o, nil, nil)
	assert.Zero(t, p.PendingInspection)
	assert.Equal(t, int64(80), p.PackagedPc)
	assert.Empty(t, CheckFinalize(p))
}

func TestCheckFinalize(t *testing.T) {
	tests := []struct {
		name string
		p    Projection
		want []Reason
	}{
		{
			name: "complete",
			p:    Projection{OrderedPc: 100, ProducedPc: 100, PackagedPc: 100},
		},
		{
			name: "pending inspection only",
			p:    Projection{OrderedPc: 100, ProducedPc: 100, PackagedPc: 90, PendingInspection: 1},
			want: []Reason{ReasonPendingInspection, ReasonPackagingMismatch},
		},
		{
			name: "nothing produced",
			p:    Projection{OrderedPc: 100},
			want: []Reason{ReasonIncompleteProduction},
		},
		{
			name: "everything wrong",
			p:    Projection{OrderedPc: 100, ProducedPc: 50, PackagedPc: 40, PendingInspection: 2},
			want: []Reason{ReasonIncompleteProduction, ReasonPendingInspection, ReasonPackagingMismatch},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckFinalize(tt.p))
		})
	}
}

func TestGuardFinalize(t *testing.T) {
	assert.NoError(t, GuardFinalize(Projection{OrderedPc: 1, ProducedPc: 1, PackagedPc: 1}))

	err := GuardFinalize(Projection{OrderedPc: 100, ProducedPc: 100, PackagedPc: 90, PendingInspection: 1})
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeFinalizeBlocked, appErr.Code)
	assert.Equal(t, []string{"pending_inspection", "packaging_mismatch"}, appErr.Details["reasons"])
}
