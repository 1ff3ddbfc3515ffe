// Package memory is an in-process store implementing every repository of
// the flow engine plus tx.Manager. Transactions are serialized and roll
// back by restoring a snapshot taken when they began.
package memory

import (
	"context"
	"sync"

	"prodflow/internal/core/id"
	"prodflow/internal/core/tx"
	"prodflow/internal/domain/deduction"
	"prodflow/internal/domain/flow"
	"prodflow/internal/domain/movement"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
)

var _ tx.Manager = (*Store)(nil)

type txKey struct{}

type state struct {
	orders     map[id.ID]order.Order
	events     []production.Event
	deductions []deduction.Deduction
	movements  []movement.Movement
	outbox     []flow.Event
}

func (st *state) clone() state {
	orders := make(map[id.ID]order.Order, len(st.orders))
	for k, v := range st.orders {
		orders[k] = v
	}
	return state{
		orders:     orders,
		events:     append([]production.Event(nil), st.events...),
		deductions: append([]deduction.Deduction(nil), st.deductions...),
		movements:  append([]movement.Movement(nil), st.movements...),
		outbox:     append([]flow.Event(nil), st.outbox...),
	}
}

// Store holds all state behind one mutex.
type Store struct {
	mu sync.Mutex
	st state
}

// New creates an empty store.
func New() *Store {
	return &Store{st: state{orders: make(map[id.ID]order.Order)}}
}

// RunInTransaction implements tx.Manager. Nested calls join the outer
// transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.st = saved
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// with runs fn holding the store mutex unless ctx already owns it.
func (s *Store) with(ctx context.Context, fn func(st *state) error) error {
	if !s.inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(&s.st)
}

// Orders returns the order repository.
func (s *Store) Orders() order.Repository { return orderRepo{s} }

// Events returns the production ledger.
func (s *Store) Events() production.Repository { return eventRepo{s} }

// Deductions returns the stock reconciliation ledger.
func (s *Store) Deductions() deduction.Repository { return deductionRepo{s} }

// Movements returns the audit trail.
func (s *Store) Movements() movement.Repository { return movementRepo{s} }

// Publish implements flow.Publisher by keeping events in a committed
// outbox.
func (s *Store) Publish(ctx context.Context, e flow.Event) error {
	return s.with(ctx, func(st *state) error {
		st.outbox = append(st.outbox, e)
		return nil
	})
}

// Published returns a copy of the committed outbox.
func (s *Store) Published() []flow.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]flow.Event(nil), s.st.outbox...)
}
