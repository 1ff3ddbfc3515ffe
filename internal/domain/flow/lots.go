package flow

import (
	"context"
	"fmt"

	"prodflow/internal/core/apperror"
	"prodflow/internal/core/id"
	"prodflow/internal/domain/deduction"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/domain/movement"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
	"prodflow/pkg/logger"
)

// ApproveInspectionLot releases the whole lot from Awaiting-Inspection to
// Awaiting-Packaging under a new packaging code. Approving the same code
// twice fails with NO_PENDING_LOT.
func (s *Service) ApproveInspectionLot(ctx context.Context, orderID id.ID, code lotcode.Code) (production.Event, error) {
	return s.moveOne(ctx, "approve_inspection_lot", orderID, code, func(production.Event) (production.LotMove, bool) {
		return production.MoveApprove, true
	})
}

// FinalizePackagingLot ships a packaged lot toward Facility A under a new
// expedition code.
func (s *Service) FinalizePackagingLot(ctx context.Context, orderID id.ID, code lotcode.Code) (production.Event, error) {
	return s.moveOne(ctx, "finalize_packaging_lot", orderID, code, func(production.Event) (production.LotMove, bool) {
		return production.MoveShip, true
	})
}

// ReopenLot sends a lot one step back: packaging to inspection, or
// ship-to-A to packaging.
func (s *Service) ReopenLot(ctx context.Context, orderID id.ID, code lotcode.Code) (production.Event, error) {
	return s.moveOne(ctx, "reopen_lot", orderID, code, func(e production.Event) (production.LotMove, bool) {
		return production.ReopenMove(e.Stage)
	})
}

// ApproveAllInspection approves every lot waiting for inspection, oldest
// first.
func (s *Service) ApproveAllInspection(ctx context.Context, orderID id.ID) ([]production.Event, error) {
	return s.moveAll(ctx, "approve_all_inspection", orderID, production.MoveApprove)
}

// ReopenAll sends every lot at stage one step back.
func (s *Service) ReopenAll(ctx context.Context, orderID id.ID, stage order.GranularStage) ([]production.Event, error) {
	mv, ok := production.ReopenMove(stage)
	if !ok {
		return nil, apperror.NewValidation(fmt.Sprintf("lots at %s cannot be reopened", stage)).
			WithDetail("stage", string(stage))
	}
	return s.moveAll(ctx, "reopen_all", orderID, mv)
}

func (s *Service) moveOne(
	ctx context.Context,
	op string,
	orderID id.ID,
	code lotcode.Code,
	pick func(production.Event) (production.LotMove, bool),
) (production.Event, error) {
	var moved production.Event
	err := s.run(ctx, op, orderID, func(ctx context.Context, o *order.Order) error {
		if err := ensureActive(o); err != nil {
			return err
		}
		if err := requireFacilityB(o); err != nil {
			return err
		}
		events, deductions, err := s.ledgers(ctx, o.ID)
		if err != nil {
			return err
		}

		e, found := production.FindLot(events, code)
		if !found {
			return apperror.NewNoPendingLot("any", code.String())
		}
		mv, ok := pick(e)
		if !ok || e.Stage != mv.From {
			stage := string(e.Stage)
			if ok {
				stage = string(mv.From)
			}
			return apperror.NewNoPendingLot(stage, code.String())
		}
		if err := guardConsumed(mv, e, deductions); err != nil {
			return err
		}

		moved, err = s.moveLot(ctx, o, events, e, mv)
		return err
	})
	return moved, err
}

func (s *Service) moveAll(ctx context.Context, op string, orderID id.ID, mv production.LotMove) ([]production.Event, error) {
	var moved []production.Event
	err := s.run(ctx, op, orderID, func(ctx context.Context, o *order.Order) error {
		if err := ensureActive(o); err != nil {
			return err
		}
		if err := requireFacilityB(o); err != nil {
			return err
		}
		events, deductions, err := s.ledgers(ctx, o.ID)
		if err != nil {
			return err
		}

		pending := production.AtStage(events, mv.From)
		if len(pending) == 0 {
			return apperror.NewNoPendingLot(string(mv.From), "")
		}
		for _, e := range pending {
			if err := guardConsumed(mv, e, deductions); err != nil {
				return err
			}
		}

		for _, e := range pending {
			m, err := s.moveLot(ctx, o, events, e, mv)
			if err != nil {
				return err
			}
			events = replaceEvent(events, m)
			moved = append(moved, m)
		}
		return nil
	})
	return moved, err
}

// guardConsumed refuses to pull a lot out of packaged stock while live
// deductions still reference it.
func guardConsumed(mv production.LotMove, e production.Event, deductions []deduction.Deduction) error {
	if production.IsPackaged(mv.To) {
		return nil
	}
	if deduction.HasLiveDeductions(deductions, e.ID) {
		return apperror.NewBusinessRule(apperror.CodeLotConsumed,
			"lot has stock deductions; reverse them before reopening").
			WithDetail("lot_code", e.Lot.String())
	}
	return nil
}

// moveLot relabels e along mv. Quantities never change.
func (s *Service) moveLot(ctx context.Context, o *order.Order, events []production.Event, e production.Event, mv production.LotMove) (production.Event, error) {
	now := s.now()
	seq, err := s.nextSequence(ctx, o, mv.Purpose, events)
	if err != nil {
		return production.Event{}, err
	}

	prev := e.Lot
	external := e.ExternalLot
	if mv == production.MoveApprove && external == "" {
		external = prev.Base
	}

	r := production.Relabel{
		EventID:     e.ID,
		FromStage:   mv.From,
		Stage:       mv.To,
		Lot:         prev.Relabel(mv.Purpose, seq, now),
		ExternalLot: external,
		At:          now,
	}
	if err := s.events.Relabel(ctx, r); err != nil {
		return production.Event{}, err
	}

	e.Stage = r.Stage
	e.Lot = r.Lot
	e.ExternalLot = r.ExternalLot
	e.UpdatedAt = now

	if err := s.record(ctx, o, movement.Movement{
		Kind:       movement.KindLotRelabel,
		FromStage:  string(mv.From),
		ToStage:    string(mv.To),
		Reason:     mv.Name,
		QuantityPc: e.QuantityPc,
		QuantityKg: e.QuantityKg,
		LotCode:    e.Lot.String(),
		At:         now,
	}); err != nil {
		return production.Event{}, err
	}
	if err := s.publish(ctx, EventLotMoved, o.ID, lotPayload(o, e, mv.From, prev)); err != nil {
		return production.Event{}, err
	}

	logger.Info(ctx, "lot moved",
		"order_id", o.ID, "move", mv.Name, "from", mv.From, "to", mv.To,
		"lot_code", e.Lot.String(), "prev_lot_code", prev.String(), "quantity_pc", e.QuantityPc)
	return e, nil
}

func replaceEvent(events []production.Event, e production.Event) []production.Event {
	for i := range events {
		if events[i].ID == e.ID {
			events[i] = e
			break
		}
	}
	return events
}
