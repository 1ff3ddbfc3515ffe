package flow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodflow/internal/core/apperror"
	appctx "prodflow/internal/core/context"
	"prodflow/internal/core/id"
	"prodflow/internal/core/lock"
	"prodflow/internal/core/numerator"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/balance"
	"prodflow/internal/domain/deduction"
	"prodflow/internal/domain/flow"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
	"prodflow/internal/infrastructure/storage/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type harness struct {
	store *memory.Store
	svc   *flow.Service
}

func newHarness(t *testing.T, customize ...func(*flow.Deps)) *harness {
	t.Helper()
	store := memory.New()
	deps := flow.Deps{
		Orders:     store.Orders(),
		Events:     store.Events(),
		Deductions: store.Deductions(),
		Movements:  store.Movements(),
		TxManager:  store,
		Publisher:  store,
		Now:        (&clock{t: time.Date(2026, 10, 19, 14, 32, 0, 0, time.UTC)}).Now,
	}
	for _, fn := range customize {
		fn(&deps)
	}
	return &harness{store: store, svc: flow.NewService(deps)}
}

func ctx() context.Context {
	return appctx.WithOperator(context.Background(), &appctx.Operator{ID: "42", Name: "Joana"})
}

func (h *harness) createB(t *testing.T, number string, pcs int64, kg string) *order.Order {
	t.Helper()
	o, err := h.svc.CreateOrder(ctx(), order.NewParams{
		Number: number, Client: "ACME", Tool: "TL-7",
		OrderedPc: pcs, OrderedKg: types.MustKg(kg), Facility: order.FacilityB,
	})
	require.NoError(t, err)
	o, err = h.svc.AdvanceFacilityB(ctx(), o.ID, order.ActionSchedule)
	require.NoError(t, err)
	return o
}

func (h *harness) record(orderID id.ID, total, inspection int64) ([]production.Event, error) {
	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	return h.svc.RecordProduction(ctx(), flow.RecordRequest{
		OrderID:      orderID,
		TotalPc:      total,
		InspectionPc: inspection,
		StartedAt:    start,
		FinishedAt:   start.Add(2 * time.Hour),
	})
}

func (h *harness) mustRecord(t *testing.T, orderID id.ID, total, inspection int64) []production.Event {
	t.Helper()
	events, err := h.record(orderID, total, inspection)
	require.NoError(t, err)
	return events
}

func (h *harness) order(t *testing.T, orderID id.ID) *order.Order {
	t.Helper()
	o, err := h.svc.GetOrder(ctx(), orderID)
	require.NoError(t, err)
	require.NoError(t, o.CheckConservation())
	return o
}

func requireCode(t *testing.T, err error, code string) *apperror.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, code, appErr.Code, appErr.Message)
	return appErr
}

func TestRecordProduction_SplitsBetweenInspectionAndPackaging(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-4512", 100, "250")

	events := h.mustRecord(t, o.ID, 50, 20)

	require.Len(t, events, 2)
	assert.Equal(t, order.StageAwaitingInspection, events[0].Stage)
	assert.Equal(t, int64(20), events[0].QuantityPc)
	assert.Equal(t, "50", events[0].QuantityKg.String())
	assert.Equal(t, lotcode.PurposeInspection, events[0].Lot.Purpose)
	assert.Equal(t, 1, events[0].Lot.Sequence)

	assert.Equal(t, order.StageAwaitingPackaging, events[1].Stage)
	assert.Equal(t, int64(30), events[1].QuantityPc)
	assert.Equal(t, "75", events[1].QuantityKg.String())
	assert.Equal(t, lotcode.PurposePackaging, events[1].Lot.Purpose)
	assert.Equal(t, events[0].Lot.Base, events[1].Lot.Base)
	assert.Equal(t, "Joana", events[0].Operator)

	got := h.order(t, o.ID)
	assert.Equal(t, int64(50), got.AvailablePc)
	assert.Equal(t, int64(50), got.ProducedPc)
	assert.Equal(t, "125", got.AvailableKg.String())

	stored, err := h.svc.ListEvents(ctx(), o.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	var recorded int
	for _, e := range h.store.Published() {
		if e.Type == flow.EventProductionRecorded {
			recorded++
		}
	}
	assert.Equal(t, 2, recorded)
}

func TestRecordProduction_SmallPartialInspectionRejected(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")

	_, err := h.record(o.ID, 50, 10)
	requireCode(t, err, apperror.CodeInvalidQuantity)

	_, err = h.record(o.ID, 10, 5)
	requireCode(t, err, apperror.CodeInvalidQuantity)

	assert.Equal(t, int64(100), h.order(t, o.ID).AvailablePc)

	events := h.mustRecord(t, o.ID, 10, 10)
	require.Len(t, events, 1)
	assert.Equal(t, order.StageAwaitingInspection, events[0].Stage)
}

func TestRecordProduction_InsufficientBalance(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")
	h.mustRecord(t, o.ID, 50, 0)

	_, err := h.record(o.ID, 60, 0)
	appErr := requireCode(t, err, apperror.CodeInsufficientBalance)
	assert.Equal(t, apperror.ScopeOrder, appErr.Details["scope"])
	assert.Equal(t, int64(50), appErr.Details["available"])
	assert.NotContains(t, appErr.Details, "stale")

	observed := int64(100)
	_, err = h.svc.RecordProduction(ctx(), flow.RecordRequest{
		OrderID: o.ID, TotalPc: 60,
		StartedAt:           time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		FinishedAt:          time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		ObservedAvailablePc: &observed,
	})
	appErr = requireCode(t, err, apperror.CodeInsufficientBalance)
	assert.Equal(t, true, appErr.Details["stale"])
}

func TestRecordProduction_Validation(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")
	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  flow.RecordRequest
		code string
	}{
		{"zero quantity", flow.RecordRequest{OrderID: o.ID, StartedAt: start, FinishedAt: start.Add(time.Hour)}, apperror.CodeInvalidQuantity},
		{"missing times", flow.RecordRequest{OrderID: o.ID, TotalPc: 5}, apperror.CodeInvalidTimeRange},
		{"end before start", flow.RecordRequest{OrderID: o.ID, TotalPc: 5, StartedAt: start, FinishedAt: start.Add(-time.Minute)}, apperror.CodeInvalidTimeRange},
		{"end equals start", flow.RecordRequest{OrderID: o.ID, TotalPc: 5, StartedAt: start, FinishedAt: start}, apperror.CodeInvalidTimeRange},
		{"wrong stage", flow.RecordRequest{OrderID: o.ID, Stage: order.StageAwaitingPackaging, TotalPc: 5, StartedAt: start, FinishedAt: start.Add(time.Hour)}, apperror.CodeValidation},
		{"unknown order", flow.RecordRequest{OrderID: id.New(), TotalPc: 5, StartedAt: start, FinishedAt: start.Add(time.Hour)}, apperror.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.RecordProduction(ctx(), tt.req)
			requireCode(t, err, tt.code)
		})
	}
}

func TestRecordProduction_OnlyWhileAwaitingMachining(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")
	_, err := h.svc.AdvanceFacilityB(ctx(), o.ID, order.ActionReturnToStock)
	require.NoError(t, err)

	_, err = h.record(o.ID, 10, 0)
	requireCode(t, err, apperror.CodeInvalidTransition)
}

func TestRecordProduction_FinalBatchTakesExactKg(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 3, "10")

	first := h.mustRecord(t, o.ID, 1, 0)
	assert.Equal(t, "3.333", first[0].QuantityKg.String())
	last := h.mustRecord(t, o.ID, 2, 0)
	assert.Equal(t, "6.667", last[0].QuantityKg.String())

	got := h.order(t, o.ID)
	assert.Equal(t, "10", got.ProducedKg.String())
	assert.True(t, got.AvailableKg.IsZero())
}

func TestFinalizeOrder_Guard(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")
	h.mustRecord(t, o.ID, 90, 0)
	pending := h.mustRecord(t, o.ID, 10, 10)
	require.Zero(t, h.order(t, o.ID).AvailablePc)

	err := h.svc.FinalizeOrder(ctx(), o.ID)
	appErr := requireCode(t, err, apperror.CodeFinalizeBlocked)
	assert.Equal(t, []string{"pending_inspection", "packaging_mismatch"}, appErr.Details["reasons"])

	_, err = h.svc.ApproveInspectionLot(ctx(), o.ID, pending[0].Lot)
	require.NoError(t, err)

	require.NoError(t, h.svc.FinalizeOrder(ctx(), o.ID))
	assert.True(t, h.order(t, o.ID).IsFinalized())

	require.NoError(t, h.svc.FinalizeOrder(ctx(), o.ID), "finalizing twice is a no-op")

	_, err = h.svc.AdvanceFacilityB(ctx(), o.ID, order.ActionReopenShipment)
	requireCode(t, err, apperror.CodeOrderFinalized)
}

func TestFinalizeOrder_IncompleteProduction(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")
	h.mustRecord(t, o.ID, 40, 0)

	err := h.svc.FinalizeOrder(ctx(), o.ID)
	appErr := requireCode(t, err, apperror.CodeFinalizeBlocked)
	assert.Equal(t, []string{"incomplete_production"}, appErr.Details["reasons"])
}

func TestApproveInspectionLot_SecondApproveHasNothingPending(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")
	lots := h.mustRecord(t, o.ID, 30, 30)
	code := lots[0].Lot

	moved, err := h.svc.ApproveInspectionLot(ctx(), o.ID, code)
	require.NoError(t, err)
	assert.Equal(t, order.StageAwaitingPackaging, moved.Stage)
	assert.Equal(t, lotcode.PurposePackaging, moved.Lot.Purpose)
	assert.Equal(t, code.Base, moved.Lot.Base)
	assert.Equal(t, int64(30), moved.QuantityPc)
	assert.Equal(t, code.Base, moved.ExternalLot)

	_, err = h.svc.ApproveInspectionLot(ctx(), o.ID, code)
	requireCode(t, err, apperror.CodeNoPendingLot)

	_, err = h.svc.ApproveInspectionLot(ctx(), o.ID, moved.Lot)
	requireCode(t, err, apperror.CodeNoPendingLot)
}

func TestLotMoves_ShipAndReopen(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")
	lot := h.mustRecord(t, o.ID, 40, 0)[0]

	shipped, err := h.svc.FinalizePackagingLot(ctx(), o.ID, lot.Lot)
	require.NoError(t, err)
	assert.Equal(t, order.StageShipToA, shipped.Stage)
	assert.Equal(t, lotcode.PurposeExpedition, shipped.Lot.Purpose)

	back, err := h.svc.ReopenLot(ctx(), o.ID, shipped.Lot)
	require.NoError(t, err)
	assert.Equal(t, order.StageAwaitingPackaging, back.Stage)

	insp, err := h.svc.ReopenLot(ctx(), o.ID, back.Lot)
	require.NoError(t, err)
	assert.Equal(t, order.StageAwaitingInspection, insp.Stage)
	assert.Equal(t, lotcode.PurposeInspection, insp.Lot.Purpose)

	_, err = h.svc.ReopenLot(ctx(), o.ID, insp.Lot)
	requireCode(t, err, apperror.CodeNoPendingLot)

	_, err = h.svc.FinalizePackagingLot(ctx(), o.ID, insp.Lot)
	requireCode(t, err, apperror.CodeNoPendingLot)
}

func TestReopenLot_RefusesConsumedLot(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")
	lot := h.mustRecord(t, o.ID, 40, 0)[0]

	d, err := h.svc.DeductStock(ctx(), flow.DeductRequest{OrderID: o.ID, QuantityPc: 5, Reason: "sale"})
	require.NoError(t, err)

	_, err = h.svc.ReopenLot(ctx(), o.ID, lot.Lot)
	requireCode(t, err, apperror.CodeLotConsumed)

	require.NoError(t, h.svc.ReverseDeduction(ctx(), d.ID))
	_, err = h.svc.ReopenLot(ctx(), o.ID, lot.Lot)
	require.NoError(t, err)
}

func TestBulkLotActions(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")
	h.mustRecord(t, o.ID, 40, 20)
	h.mustRecord(t, o.ID, 40, 20)

	moved, err := h.svc.ApproveAllInspection(ctx(), o.ID)
	require.NoError(t, err)
	require.Len(t, moved, 2)

	events, err := h.svc.ListEvents(ctx(), o.ID, order.StageAwaitingPackaging)
	require.NoError(t, err)
	require.Len(t, events, 4)
	seen := map[lotcode.Code]bool{}
	for _, e := range events {
		assert.False(t, seen[e.Lot], "duplicate lot code %s", e.Lot)
		seen[e.Lot] = true
	}

	_, err = h.svc.ApproveAllInspection(ctx(), o.ID)
	requireCode(t, err, apperror.CodeNoPendingLot)

	reopened, err := h.svc.ReopenAll(ctx(), o.ID, order.StageAwaitingPackaging)
	require.NoError(t, err)
	assert.Len(t, reopened, 4)

	_, err = h.svc.ReopenAll(ctx(), o.ID, order.StageAwaitingInspection)
	requireCode(t, err, apperror.CodeValidation)
}

func TestDeductStock_ReversalRestoresBalance(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 40, "80")
	lot := h.mustRecord(t, o.ID, 40, 0)[0]

	first, err := h.svc.DeductStock(ctx(), flow.DeductRequest{OrderID: o.ID, Product: "tl-7", QuantityPc: 30, Reason: "consumption"})
	require.NoError(t, err)
	assert.Equal(t, lot.ID, first.EventID)
	assert.Equal(t, lot.Lot, first.LotCode)
	assert.Equal(t, "60", first.QuantityKg.String())

	_, err = h.svc.DeductStock(ctx(), flow.DeductRequest{OrderID: o.ID, QuantityPc: 40, Reason: "consumption"})
	appErr := requireCode(t, err, apperror.CodeInsufficientBalance)
	assert.Equal(t, apperror.ScopeLot, appErr.Details["scope"])

	require.NoError(t, h.svc.ReverseDeduction(ctx(), first.ID))

	second, err := h.svc.DeductStock(ctx(), flow.DeductRequest{OrderID: o.ID, QuantityPc: 40, Reason: "sale"})
	require.NoError(t, err)
	assert.Equal(t, "80", second.QuantityKg.String())

	requireCode(t, h.svc.ReverseDeduction(ctx(), first.ID), apperror.CodeConflict)

	all, err := h.svc.ListDeductions(ctx(), deduction.Filter{OrderID: o.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListLotDeductions_ByCurrentCode(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 60, "120")
	events := h.mustRecord(t, o.ID, 60, 0)
	require.Len(t, events, 1)
	lot := events[0]

	d, err := h.svc.DeductStock(ctx(), flow.DeductRequest{OrderID: o.ID, QuantityPc: 10, Reason: "sale"})
	require.NoError(t, err)

	got, err := h.svc.ListLotDeductions(ctx(), o.ID, lot.Lot)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, d.ID, got[0].ID)

	unknown := lot.Lot
	unknown.Sequence += 9
	_, err = h.svc.ListLotDeductions(ctx(), o.ID, unknown)
	requireCode(t, err, apperror.CodeNotFound)
}

func TestDeductStock_Validation(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 40, "80")

	_, err := h.svc.DeductStock(ctx(), flow.DeductRequest{OrderID: o.ID, QuantityPc: 1, Reason: "sale"})
	requireCode(t, err, apperror.CodeNoPendingLot)

	h.mustRecord(t, o.ID, 40, 40)
	_, err = h.svc.DeductStock(ctx(), flow.DeductRequest{OrderID: o.ID, QuantityPc: 1, Reason: "sale"})
	requireCode(t, err, apperror.CodeNoPendingLot)

	_, err = h.svc.DeductStock(ctx(), flow.DeductRequest{OrderID: o.ID, QuantityPc: 0, Reason: "sale"})
	requireCode(t, err, apperror.CodeInvalidQuantity)

	_, err = h.svc.DeductStock(ctx(), flow.DeductRequest{OrderID: o.ID, QuantityPc: 1, Reason: "gift"})
	requireCode(t, err, apperror.CodeValidation)

	_, err = h.svc.DeductStock(ctx(), flow.DeductRequest{OrderID: o.ID, Product: "OTHER", QuantityPc: 1, Reason: "sale"})
	requireCode(t, err, apperror.CodeValidation)
}

func TestDeductStock_AllowedAfterFinalize(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 40, "80")
	h.mustRecord(t, o.ID, 40, 0)
	require.NoError(t, h.svc.FinalizeOrder(ctx(), o.ID))

	_, err := h.svc.DeductStock(ctx(), flow.DeductRequest{OrderID: o.ID, QuantityPc: 10, Reason: "sale"})
	require.NoError(t, err)
}

func TestProductStock_AcrossOrders(t *testing.T) {
	h := newHarness(t)
	a := h.createB(t, "PED-A", 40, "40")
	b := h.createB(t, "PED-B", 60, "60")
	h.mustRecord(t, a.ID, 40, 0)
	h.mustRecord(t, b.ID, 60, 20)

	_, err := h.svc.DeductStock(ctx(), flow.DeductRequest{OrderID: a.ID, QuantityPc: 15, Reason: "sale"})
	require.NoError(t, err)

	stock, err := h.svc.ProductStock(ctx(), "TL-7")
	require.NoError(t, err)
	assert.Equal(t, int64(25+40), stock.RemainingPc)
	assert.Equal(t, "65", stock.RemainingKg.String())
	assert.Len(t, stock.Lots, 2)

	_, err = h.svc.ProductStock(ctx(), " ")
	requireCode(t, err, apperror.CodeValidation)
}

func TestGetBalance(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")
	h.mustRecord(t, o.ID, 60, 20)

	view, err := h.svc.GetBalance(ctx(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), view.Projection.AvailablePc)
	assert.Equal(t, int64(40), view.Projection.PackagedPc)
	assert.Equal(t, 1, view.Projection.PendingInspection)
	assert.Equal(t, []balance.Reason{
		balance.ReasonIncompleteProduction, balance.ReasonPendingInspection, balance.ReasonPackagingMismatch,
	}, view.Blockers)
	assert.Contains(t, view.Actions, order.ActionSendToInspection)
}

func TestFacilityA_Lifecycle(t *testing.T) {
	h := newHarness(t)
	o, err := h.svc.CreateOrder(ctx(), order.NewParams{
		Number: "A-77", Tool: "TL-9", OrderedPc: 80, OrderedKg: types.MustKg("160"), Facility: order.FacilityA,
	})
	require.NoError(t, err)

	o, err = h.svc.AdvanceFacilityA(ctx(), o.ID, order.ActionProduce)
	require.NoError(t, err)
	assert.Equal(t, order.FacilityATrack{Stage: order.StageProduced}, o.Track)
	assert.Zero(t, o.AvailablePc)
	assert.Equal(t, int64(80), o.ProducedPc)

	o, err = h.svc.AdvanceFacilityA(ctx(), o.ID, order.ActionRevise)
	require.NoError(t, err)
	assert.Equal(t, int64(80), o.AvailablePc)

	for _, a := range []order.Action{order.ActionProduce, order.ActionInspect} {
		_, err = h.svc.AdvanceFacilityA(ctx(), o.ID, a)
		require.NoError(t, err)
	}
	requireCode(t, h.svc.FinalizeOrder(ctx(), o.ID), apperror.CodeFinalizeBlocked)

	_, err = h.svc.AdvanceFacilityA(ctx(), o.ID, order.ActionFinalize)
	appErr := requireCode(t, err, apperror.CodeInvalidTransition)
	assert.Contains(t, appErr.Details["allowed"], order.ActionPack)

	for _, a := range []order.Action{order.ActionPack, order.ActionShipToClient, order.ActionFinalize} {
		_, err = h.svc.AdvanceFacilityA(ctx(), o.ID, a)
		require.NoError(t, err)
	}
	assert.True(t, h.order(t, o.ID).IsFinalized())

	movements, err := h.svc.ListMovements(ctx(), o.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, movements)
	assert.Equal(t, "finalize", string(movements[0].Kind))
	assert.Equal(t, "order_created", string(movements[len(movements)-1].Kind))
}

func TestFacilityA_HandoffToB(t *testing.T) {
	h := newHarness(t)
	o, err := h.svc.CreateOrder(ctx(), order.NewParams{
		Number: "A-78", OrderedPc: 50, OrderedKg: types.MustKg("50"), Facility: order.FacilityA,
	})
	require.NoError(t, err)

	for _, a := range []order.Action{order.ActionProduce, order.ActionInspect, order.ActionShipToB, order.ActionHandoffToB} {
		o, err = h.svc.AdvanceFacilityA(ctx(), o.ID, a)
		require.NoError(t, err, a)
	}
	assert.Equal(t, order.FacilityBTrack{Stage: order.StageStock}, o.Track)
	assert.Equal(t, int64(50), o.AvailablePc)

	_, err = h.svc.AdvanceFacilityA(ctx(), o.ID, order.ActionProduce)
	requireCode(t, err, apperror.CodeWrongFacility)

	_, err = h.svc.AdvanceFacilityB(ctx(), o.ID, order.ActionSchedule)
	require.NoError(t, err)
	h.mustRecord(t, o.ID, 50, 0)
}

func TestFacilityA_FinalizeAtShipToBClosesHandoff(t *testing.T) {
	h := newHarness(t)
	o, err := h.svc.CreateOrder(ctx(), order.NewParams{
		Number: "A-79", OrderedPc: 30, OrderedKg: types.MustKg("30"), Facility: order.FacilityA,
	})
	require.NoError(t, err)

	for _, a := range []order.Action{order.ActionProduce, order.ActionInspect, order.ActionShipToB} {
		_, err = h.svc.AdvanceFacilityA(ctx(), o.ID, a)
		require.NoError(t, err, a)
	}

	// the guard only looks at quantities, so a packaged order in transit can close
	require.NoError(t, h.svc.FinalizeOrder(ctx(), o.ID))
	assert.True(t, h.order(t, o.ID).IsFinalized())

	_, err = h.svc.AdvanceFacilityA(ctx(), o.ID, order.ActionHandoffToB)
	requireCode(t, err, apperror.CodeOrderFinalized)
}

func TestRecordProduction_WrongFacility(t *testing.T) {
	h := newHarness(t)
	o, err := h.svc.CreateOrder(ctx(), order.NewParams{
		Number: "A-1", OrderedPc: 10, OrderedKg: types.MustKg("1"), Facility: order.FacilityA,
	})
	require.NoError(t, err)

	_, err = h.record(o.ID, 5, 0)
	requireCode(t, err, apperror.CodeWrongFacility)

	_, err = h.svc.AdvanceFacilityB(ctx(), o.ID, order.ActionSchedule)
	requireCode(t, err, apperror.CodeWrongFacility)
}

func TestRecordProduction_ConcurrentOperatorsNeverOverbook(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.record(o.ID, 20, 0)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if apperror.Is(err, apperror.CodeInsufficientBalance) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, workers-5, rejected)

	got := h.order(t, o.ID)
	assert.Zero(t, got.AvailablePc)
	events, err := h.svc.ListEvents(ctx(), o.ID)
	require.NoError(t, err)
	var total int64
	for _, e := range events {
		total += e.QuantityPc
	}
	assert.Equal(t, got.ProducedPc, total)
}

// staleOrders hands out orders whose concurrency marker is already
// outdated, as if another writer committed in between.
type staleOrders struct {
	order.Repository
}

func (r staleOrders) GetForUpdate(ctx context.Context, orderID id.ID) (*order.Order, error) {
	o, err := r.Repository.GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.BalanceUpdatedAt = o.BalanceUpdatedAt.Add(-time.Second)
	return o, nil
}

func TestRecordProduction_OptimisticConflictRollsBack(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")

	stale := flow.NewService(flow.Deps{
		Orders:     staleOrders{h.store.Orders()},
		Events:     h.store.Events(),
		Deductions: h.store.Deductions(),
		Movements:  h.store.Movements(),
		TxManager:  h.store,
	})
	_, err := stale.RecordProduction(ctx(), flow.RecordRequest{
		OrderID: o.ID, TotalPc: 10,
		StartedAt:  time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	})
	requireCode(t, err, apperror.CodeConcurrencyConflict)

	assert.Equal(t, int64(100), h.order(t, o.ID).AvailablePc)
	events, err := h.svc.ListEvents(ctx(), o.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

type busyLocker struct{}

func (busyLocker) Obtain(context.Context, string) (func(), error) {
	return nil, lock.ErrNotObtained
}

func TestLockHeldElsewhere(t *testing.T) {
	h := newHarness(t)
	o := h.createB(t, "PED-1", 100, "100")

	busy := flow.NewService(flow.Deps{
		Orders:     h.store.Orders(),
		Events:     h.store.Events(),
		Deductions: h.store.Deductions(),
		Movements:  h.store.Movements(),
		TxManager:  h.store,
		Locker:     busyLocker{},
	})
	_, err := busy.AdvanceFacilityB(ctx(), o.ID, order.ActionReturnToStock)
	requireCode(t, err, apperror.CodeConcurrencyConflict)
}

func TestLotSequenceFromSequencer(t *testing.T) {
	seq := &numerator.MockSequencer{}
	h := newHarness(t, func(d *flow.Deps) { d.Sequencer = seq })
	o := h.createB(t, "PED-1", 100, "100")

	first := h.mustRecord(t, o.ID, 20, 20)[0]
	moved, err := h.svc.ApproveInspectionLot(ctx(), o.ID, first.Lot)
	require.NoError(t, err)
	second := h.mustRecord(t, o.ID, 20, 20)[0]

	assert.Equal(t, 1, first.Lot.Sequence)
	assert.Equal(t, 1, moved.Lot.Sequence)
	assert.Equal(t, 2, second.Lot.Sequence)

	calls := 0
	seq.NextFunc = func(_ context.Context, key string) (int64, error) {
		calls++
		assert.Equal(t, lotcode.SequenceKey(o.ID.String(), lotcode.PurposePackaging), key)
		return 7, nil
	}
	moved, err = h.svc.ApproveInspectionLot(ctx(), o.ID, second.Lot)
	require.NoError(t, err)
	assert.Equal(t, 7, moved.Lot.Sequence)
	assert.Equal(t, 1, calls)
}
