package flow

import (
	"context"
	"fmt"

	"prodflow/internal/core/apperror"
	"prodflow/internal/core/id"
	"prodflow/internal/domain/balance"
	"prodflow/internal/domain/deduction"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/domain/movement"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
)

// GetOrder reads one order.
func (s *Service) GetOrder(ctx context.Context, orderID id.ID) (*order.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// ListOrders lists orders.
func (s *Service) ListOrders(ctx context.Context, filter order.ListFilter) ([]*order.Order, error) {
	return s.orders.List(ctx, filter)
}

// BalanceView is the projection of an order together with what blocks
// finalizing it and which actions its stage offers.
type BalanceView struct {
	Order      *order.Order
	Projection balance.Projection
	Blockers   []balance.Reason
	Actions    []order.Action
}

// GetBalance computes the order's projection on demand.
func (s *Service) GetBalance(ctx context.Context, orderID id.ID) (BalanceView, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return BalanceView{}, err
	}
	p, err := s.project(ctx, o)
	if err != nil {
		return BalanceView{}, err
	}

	view := BalanceView{Order: o, Projection: p}
	if !o.IsFinalized() {
		view.Blockers = balance.CheckFinalize(p)
		view.Actions = order.Available(o.Track)
	}
	return view, nil
}

// ListEvents returns the order's production events, oldest first,
// optionally restricted to stages.
func (s *Service) ListEvents(ctx context.Context, orderID id.ID, stages ...order.GranularStage) ([]production.Event, error) {
	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.events.List(ctx, production.Filter{OrderID: orderID, Stages: stages})
}

// ListDeductions returns deductions matching filter, reversed ones included.
func (s *Service) ListDeductions(ctx context.Context, filter deduction.Filter) ([]deduction.Deduction, error) {
	filter.IncludeReversed = true
	return s.deductions.List(ctx, filter)
}

// ListLotDeductions returns the deductions of the lot currently labelled
// code. Deductions follow the lot through relabels because they reference
// its event, not the code printed at deduction time.
func (s *Service) ListLotDeductions(ctx context.Context, orderID id.ID, code lotcode.Code) ([]deduction.Deduction, error) {
	events, err := s.events.List(ctx, production.Filter{OrderID: orderID})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	for _, e := range events {
		if e.Lot == code {
			return s.ListDeductions(ctx, deduction.Filter{OrderID: orderID, EventID: e.ID})
		}
	}
	return nil, apperror.NewNotFound("lot", code.String())
}

// ListMovements returns the order's audit trail, newest first.
func (s *Service) ListMovements(ctx context.Context, orderID id.ID, limit int) ([]movement.Movement, error) {
	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.movements.List(ctx, orderID, limit)
}

// ledgers reads the order's events and every deduction, reversed included.
func (s *Service) ledgers(ctx context.Context, orderID id.ID) ([]production.Event, []deduction.Deduction, error) {
	events, err := s.events.List(ctx, production.Filter{OrderID: orderID})
	if err != nil {
		return nil, nil, fmt.Errorf("list events: %w", err)
	}
	deductions, err := s.deductions.List(ctx, deduction.Filter{OrderID: orderID, IncludeReversed: true})
	if err != nil {
		return nil, nil, fmt.Errorf("list deductions: %w", err)
	}
	return events, deductions, nil
}
