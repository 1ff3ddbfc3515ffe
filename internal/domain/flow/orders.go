package flow

import (
	"context"
	"fmt"
	"time"

	"prodflow/internal/core/id"
	"prodflow/internal/domain/balance"
	"prodflow/internal/domain/movement"
	"prodflow/internal/domain/order"
	"prodflow/pkg/logger"
)

// CreateOrder registers a new order at the start of its facility.
func (s *Service) CreateOrder(ctx context.Context, p order.NewParams) (*order.Order, error) {
	o, err := order.New(p, s.now())
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := s.record(ctx, o, movement.Movement{
			Kind:       movement.KindOrderCreated,
			ToStage:    o.Track.StageName(),
			QuantityPc: o.OrderedPc,
			QuantityKg: o.OrderedKg,
			At:         o.CreatedAt,
		}); err != nil {
			return err
		}
		return s.publish(ctx, EventOrderCreated, o.ID, map[string]any{
			"number":     o.Number,
			"client":     o.Client,
			"tool":       o.Tool,
			"facility":   string(o.Track.Facility()),
			"ordered_pc": o.OrderedPc,
			"ordered_kg": o.OrderedKg.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "order created", "order_id", o.ID, "number", o.Number, "facility", o.Track.Facility())
	return o, nil
}

// AdvanceFacilityA applies a Facility-A action. The whole order moves as
// one lot; crossing into or out of intake changes the balance.
func (s *Service) AdvanceFacilityA(ctx context.Context, orderID id.ID, action order.Action) (*order.Order, error) {
	var result *order.Order
	err := s.run(ctx, "advance_facility_a", orderID, func(ctx context.Context, o *order.Order) error {
		if err := ensureActive(o); err != nil {
			return err
		}
		from, ok := o.Track.(order.FacilityATrack)
		if !ok {
			return wrongFacility(o, order.FacilityA)
		}
		tr, err := order.Resolve(from, action)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, o, tr); err != nil {
			return err
		}
		result = o
		return nil
	})
	return result, err
}

// AdvanceFacilityB applies an order-level Facility-B action. Lots are
// moved with the lot operations instead.
func (s *Service) AdvanceFacilityB(ctx context.Context, orderID id.ID, action order.Action) (*order.Order, error) {
	var result *order.Order
	err := s.run(ctx, "advance_facility_b", orderID, func(ctx context.Context, o *order.Order) error {
		if err := ensureActive(o); err != nil {
			return err
		}
		if err := requireFacilityB(o); err != nil {
			return err
		}
		tr, err := order.Resolve(o.Track, action)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, o, tr); err != nil {
			return err
		}
		result = o
		return nil
	})
	return result, err
}

// FinalizeOrder closes the order if the finalize guard passes.
// Finalizing a finalized order succeeds without changes.
func (s *Service) FinalizeOrder(ctx context.Context, orderID id.ID) error {
	return s.run(ctx, "finalize_order", orderID, func(ctx context.Context, o *order.Order) error {
		if o.IsFinalized() {
			return nil
		}
		return s.finalize(ctx, o, "finalize_order", s.now())
	})
}

// apply performs a resolved transition and its balance effect.
func (s *Service) apply(ctx context.Context, o *order.Order, tr order.Transition) error {
	now := s.now()
	if tr.Effect == order.EffectFinalize {
		return s.finalize(ctx, o, string(tr.Action), now)
	}

	from := o.Track
	expected := o.BalanceUpdatedAt

	switch tr.Effect {
	case order.EffectProduceAll:
		o.ProduceAll(now)
	case order.EffectReopen, order.EffectHandoff:
		o.Reopen(now)
	}
	o.MoveTo(tr.To, now)

	var err error
	if tr.Effect == order.EffectNone {
		err = s.orders.UpdateState(ctx, o)
	} else {
		err = s.commitBalance(ctx, o, expected)
	}
	if err != nil {
		return err
	}

	m := movement.Movement{
		Kind:      movement.KindStageChange,
		FromStage: stageLabel(from),
		ToStage:   stageLabel(o.Track),
		Reason:    string(tr.Action),
		At:        now,
	}
	if tr.Effect == order.EffectProduceAll {
		m.QuantityPc, m.QuantityKg = o.ProducedPc, o.ProducedKg
	}
	if err := s.record(ctx, o, m); err != nil {
		return err
	}
	if err := s.publish(ctx, EventStageChanged, o.ID, StageChangedPayload{
		Number:       o.Number,
		Action:       string(tr.Action),
		FromFacility: string(from.Facility()),
		FromStage:    from.StageName(),
		ToFacility:   string(o.Track.Facility()),
		ToStage:      o.Track.StageName(),
		AvailablePc:  o.AvailablePc,
		ProducedPc:   o.ProducedPc,
	}); err != nil {
		return err
	}

	logger.Info(ctx, "order stage changed",
		"order_id", o.ID, "action", tr.Action, "from", stageLabel(from), "to", stageLabel(o.Track))
	return nil
}

// finalize re-verifies the guard against a fresh projection and closes o.
func (s *Service) finalize(ctx context.Context, o *order.Order, reason string, now time.Time) error {
	p, err := s.project(ctx, o)
	if err != nil {
		return err
	}
	if err := balance.GuardFinalize(p); err != nil {
		return err
	}

	o.Finalize(now)
	if err := s.orders.UpdateState(ctx, o); err != nil {
		return err
	}
	if err := s.record(ctx, o, movement.Movement{
		Kind:       movement.KindFinalize,
		FromStage:  stageLabel(o.Track),
		ToStage:    stageLabel(o.Track),
		Reason:     reason,
		QuantityPc: p.ProducedPc,
		QuantityKg: p.ProducedKg,
		At:         now,
	}); err != nil {
		return err
	}
	if err := s.publish(ctx, EventOrderFinalized, o.ID, map[string]any{
		"number":      o.Number,
		"produced_pc": p.ProducedPc,
		"packaged_pc": p.PackagedPc,
	}); err != nil {
		return err
	}

	logger.Info(ctx, "order finalized", "order_id", o.ID, "number", o.Number, "produced_pc", p.ProducedPc)
	return nil
}

// project computes the balance projection from the ledgers.
func (s *Service) project(ctx context.Context, o *order.Order) (balance.Projection, error) {
	if _, ok := o.Track.(order.FacilityATrack); ok {
		return balance.Compute(o, nil, nil), nil
	}
	events, deductions, err := s.ledgers(ctx, o.ID)
	if err != nil {
		return balance.Projection{}, err
	}
	return balance.Compute(o, events, deductions), nil
}

func stageLabel(t order.Track) string {
	return string(t.Facility()) + ":" + t.StageName()
}
