package flow

import (
	"context"
	"fmt"
	"time"

	"prodflow/internal/core/apperror"
	appctx "prodflow/internal/core/context"
	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/domain/movement"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
	"prodflow/internal/domain/split"
	"prodflow/pkg/logger"
)

// RecordRequest is one production entry made at Awaiting-Machining.
type RecordRequest struct {
	OrderID id.ID
	// Stage is the stage the operator recorded from. Empty means
	// awaiting_machining.
	Stage        order.GranularStage
	TotalPc      int64
	InspectionPc int64
	StartedAt    time.Time
	FinishedAt   time.Time
	Note         string
	ExternalLot  string

	// ObservedAvailablePc is the balance the operator saw when opening the
	// form. It is only used to flag a stale view in the error.
	ObservedAvailablePc *int64
}

func (r RecordRequest) validate() error {
	if r.Stage != "" && r.Stage != order.StageAwaitingMachining {
		return apperror.NewValidation("production is recorded at awaiting_machining").
			WithDetail("stage", string(r.Stage))
	}
	if r.TotalPc <= 0 {
		return apperror.NewInvalidQuantity("produced quantity must be greater than zero").
			WithDetail("total", r.TotalPc)
	}
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return apperror.NewInvalidTimeRange("start and end times are required")
	}
	if !r.FinishedAt.After(r.StartedAt) {
		return apperror.NewInvalidTimeRange("end time must be after start time").
			WithDetail("started_at", r.StartedAt).
			WithDetail("finished_at", r.FinishedAt)
	}
	return nil
}

// RecordProduction splits a produced batch between inspection and
// packaging, appends one event per non-empty share and moves the pieces
// from available to produced.
func (s *Service) RecordProduction(ctx context.Context, req RecordRequest) ([]production.Event, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	share, err := split.Divide(req.TotalPc, req.InspectionPc)
	if err != nil {
		return nil, err
	}

	var created []production.Event
	err = s.run(ctx, "record_production", req.OrderID, func(ctx context.Context, o *order.Order) error {
		if err := ensureActive(o); err != nil {
			return err
		}
		if err := requireFacilityB(o); err != nil {
			return err
		}
		if stage, _ := o.StageB(); stage != order.StageAwaitingMachining {
			return apperror.NewBusinessRule(apperror.CodeInvalidTransition,
				"production can only be recorded while the order awaits machining").
				WithDetail("stage", string(stage))
		}

		if req.TotalPc > o.AvailablePc {
			e := apperror.NewInsufficientBalance(apperror.ScopeOrder, req.TotalPc, o.AvailablePc)
			if req.ObservedAvailablePc != nil && *req.ObservedAvailablePc != o.AvailablePc {
				e = e.WithDetail("stale", true).WithDetail("observed", *req.ObservedAvailablePc)
			}
			return e
		}

		now := s.now()
		expected := o.BalanceUpdatedAt
		totalKg := o.KgFor(req.TotalPc)
		ratio := o.KgPerPiece()
		if err := o.Produce(req.TotalPc, totalKg, now); err != nil {
			return err
		}

		existing, err := s.events.List(ctx, production.Filter{OrderID: o.ID})
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}

		inspectionKg := types.ZeroKg()
		if share.Inspection > 0 {
			inspectionKg = types.PiecesToKg(share.Inspection, ratio)
			if share.Packaging == 0 {
				inspectionKg = totalKg
			}
		}
		base := lotcode.BaseToken(now)

		shares := []struct {
			stage   order.GranularStage
			purpose lotcode.Purpose
			pcs     int64
			kg      types.Kg
		}{
			{order.StageAwaitingInspection, lotcode.PurposeInspection, share.Inspection, inspectionKg},
			{order.StageAwaitingPackaging, lotcode.PurposePackaging, share.Packaging, totalKg.Sub(inspectionKg)},
		}
		for _, sh := range shares {
			if sh.pcs == 0 {
				continue
			}
			seq, err := s.nextSequence(ctx, o, sh.purpose, existing)
			if err != nil {
				return err
			}
			e := production.Event{
				ID:          id.New(),
				OrderID:     o.ID,
				Stage:       sh.stage,
				QuantityPc:  sh.pcs,
				QuantityKg:  sh.kg,
				Lot:         lotcode.New(o.Number, sh.purpose, base, seq, now),
				ExternalLot: req.ExternalLot,
				StartedAt:   req.StartedAt,
				FinishedAt:  req.FinishedAt,
				Note:        req.Note,
				Operator:    appctx.OperatorName(ctx),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.events.Append(ctx, &e); err != nil {
				return fmt.Errorf("append event: %w", err)
			}
			existing = append(existing, e)
			created = append(created, e)
		}

		if err := s.commitBalance(ctx, o, expected); err != nil {
			return err
		}

		for _, e := range created {
			if err := s.record(ctx, o, movement.Movement{
				Kind:       movement.KindProduction,
				FromStage:  string(order.StageAwaitingMachining),
				ToStage:    string(e.Stage),
				Reason:     req.Note,
				QuantityPc: e.QuantityPc,
				QuantityKg: e.QuantityKg,
				LotCode:    e.Lot.String(),
				At:         now,
			}); err != nil {
				return err
			}
			if err := s.publish(ctx, EventProductionRecorded, o.ID, lotPayload(o, e, "", lotcode.Code{})); err != nil {
				return err
			}
		}

		logger.Info(ctx, "production recorded",
			"order_id", o.ID, "total_pc", req.TotalPc, "inspection_pc", share.Inspection,
			"packaging_pc", share.Packaging, "available_pc", o.AvailablePc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// nextSequence allocates the next lot sequence for purpose, from the
// sequencer when configured and by scanning existing codes otherwise.
func (s *Service) nextSequence(ctx context.Context, o *order.Order, purpose lotcode.Purpose, existing []production.Event) (int, error) {
	if s.sequencer == nil {
		return lotcode.NextSequence(production.Codes(existing), purpose), nil
	}
	n, err := s.sequencer.Next(ctx, lotcode.SequenceKey(o.ID.String(), purpose))
	if err != nil {
		return 0, fmt.Errorf("next lot sequence: %w", err)
	}
	return int(n), nil
}

func lotPayload(o *order.Order, e production.Event, from order.GranularStage, prev lotcode.Code) LotPayload {
	return LotPayload{
		EventID:    e.ID.String(),
		Number:     o.Number,
		Stage:      string(e.Stage),
		FromStage:  string(from),
		LotCode:    e.Lot.String(),
		PrevCode:   prev.String(),
		QuantityPc: e.QuantityPc,
		QuantityKg: e.QuantityKg.String(),
	}
}
