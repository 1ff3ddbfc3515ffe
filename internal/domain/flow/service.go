// Package flow is the stage transition engine. It is the only writer of
// order balances, production events and stock deductions.
//
// Every balance-affecting operation runs under a per-order lock and inside
// one transaction that re-reads the order before validating the request.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"prodflow/internal/core/apperror"
	appctx "prodflow/internal/core/context"
	"prodflow/internal/core/id"
	"prodflow/internal/core/lock"
	"prodflow/internal/core/numerator"
	"prodflow/internal/core/tx"
	"prodflow/internal/domain/deduction"
	"prodflow/internal/domain/movement"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
)

var tracer = otel.Tracer("prodflow/flow")

// Publisher receives domain events inside the writing transaction.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Observer records the outcome of every engine operation.
type Observer interface {
	ObserveOperation(op string, err error, took time.Duration)
}

// Deps wires the engine. Locker, Sequencer, Publisher, Observer and Now
// are optional.
type Deps struct {
	Orders     order.Repository
	Events     production.Repository
	Deductions deduction.Repository
	Movements  movement.Repository
	TxManager  tx.Manager

	Locker lock.Locker
	// Sequencer hands out lot sequence numbers. Without it the next number
	// is derived by scanning the order's current lot codes.
	Sequencer numerator.Sequencer
	Publisher Publisher
	Observer  Observer
	Now       func() time.Time
}

// Service implements the order operations.
type Service struct {
	orders     order.Repository
	events     production.Repository
	deductions deduction.Repository
	movements  movement.Repository
	txManager  tx.Manager
	locker     lock.Locker
	sequencer  numerator.Sequencer
	publisher  Publisher
	observer   Observer
	now        func() time.Time
}

// NewService creates the engine.
func NewService(d Deps) *Service {
	s := &Service{
		orders:     d.Orders,
		events:     d.Events,
		deductions: d.Deductions,
		movements:  d.Movements,
		txManager:  d.TxManager,
		locker:     d.Locker,
		sequencer:  d.Sequencer,
		publisher:  d.Publisher,
		observer:   d.Observer,
		now:        d.Now,
	}
	if s.txManager == nil {
		s.txManager = tx.Passthrough
	}
	if s.locker == nil {
		s.locker = lock.Noop{}
	}
	if s.publisher == nil {
		s.publisher = discard{}
	}
	if s.observer == nil {
		s.observer = discard{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

type discard struct{}

func (discard) Publish(context.Context, Event) error          { return nil }
func (discard) ObserveOperation(string, error, time.Duration) {}

// LockKey is the distributed lock key guarding an order.
func LockKey(orderID id.ID) string {
	return "prodflow:order:" + orderID.String()
}

// run executes fn under the order lock, inside a transaction, with the
// order freshly read FOR UPDATE.
func (s *Service) run(ctx context.Context, op string, orderID id.ID, fn func(ctx context.Context, o *order.Order) error) error {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
		attribute.String("operator", appctx.OperatorName(ctx)),
	))
	defer span.End()

	started := time.Now()
	err := s.withLock(ctx, orderID, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			o, err := s.orders.GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			return fn(ctx, o)
		})
	})
	s.observer.ObserveOperation(op, err, time.Since(started))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.Code(err))
	}
	return err
}

func (s *Service) withLock(ctx context.Context, orderID id.ID, fn func(ctx context.Context) error) error {
	release, err := s.locker.Obtain(ctx, LockKey(orderID))
	if errors.Is(err, lock.ErrNotObtained) {
		return apperror.NewConcurrencyConflict("order", orderID.String())
	}
	if err != nil {
		return apperror.NewStorageUnavailable(fmt.Errorf("obtain order lock: %w", err))
	}
	defer release()
	return fn(ctx)
}

func ensureActive(o *order.Order) error {
	if o.IsFinalized() {
		return apperror.NewBusinessRule(apperror.CodeOrderFinalized, "order is finalized").
			WithDetail("order_id", o.ID.String()).
			WithDetail("number", o.Number)
	}
	return nil
}

func wrongFacility(o *order.Order, want order.Facility) error {
	return apperror.NewBusinessRule(apperror.CodeWrongFacility,
		fmt.Sprintf("operation requires a Facility %s order", want)).
		WithDetail("order_id", o.ID.String()).
		WithDetail("facility", string(o.Track.Facility()))
}

func requireFacilityB(o *order.Order) error {
	if _, ok := o.Track.(order.FacilityBTrack); !ok {
		return wrongFacility(o, order.FacilityB)
	}
	return nil
}

// commitBalance checks conservation and writes the order optimistically.
func (s *Service) commitBalance(ctx context.Context, o *order.Order, expected time.Time) error {
	if err := o.CheckConservation(); err != nil {
		return apperror.NewInternal(err)
	}
	return s.orders.UpdateBalance(ctx, o, expected)
}

type snapshot struct {
	Facility    order.Facility `json:"facility"`
	Stage       string         `json:"stage"`
	Status      order.Status   `json:"status"`
	AvailablePc int64          `json:"available_pc"`
	AvailableKg string         `json:"available_kg"`
	ProducedPc  int64          `json:"produced_pc"`
	ProducedKg  string         `json:"produced_kg"`
}

// record appends a movement carrying the order's current balance.
func (s *Service) record(ctx context.Context, o *order.Order, m movement.Movement) error {
	raw, err := json.Marshal(snapshot{
		Facility:    o.Track.Facility(),
		Stage:       o.Track.StageName(),
		Status:      o.Status,
		AvailablePc: o.AvailablePc,
		AvailableKg: o.AvailableKg.String(),
		ProducedPc:  o.ProducedPc,
		ProducedKg:  o.ProducedKg.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal movement snapshot: %w", err)
	}

	m.ID = id.New()
	m.OrderID = o.ID
	m.Operator = appctx.OperatorName(ctx)
	m.Snapshot = raw
	if m.At.IsZero() {
		m.At = s.now()
	}
	if err := s.movements.Append(ctx, &m); err != nil {
		return fmt.Errorf("append movement: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, orderID id.ID, payload any) error {
	if err := s.publisher.Publish(ctx, Event{Type: eventType, OrderID: orderID, Payload: payload}); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}
