package memory

import (
	"context"
	"sort"
	"time"

	"prodflow/internal/core/apperror"
	"prodflow/internal/core/id"
	"prodflow/internal/domain/deduction"
	"prodflow/internal/domain/movement"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
)

type orderRepo struct{ s *Store }

func (r orderRepo) Create(ctx context.Context, o *order.Order) error {
	return r.s.with(ctx, func(st *state) error {
		if _, ok := st.orders[o.ID]; ok {
			return apperror.NewConflict("order already exists").WithDetail("id", o.ID.String())
		}
		for _, existing := range st.orders {
			if existing.Number == o.Number {
				return apperror.NewConflict("order number already exists").WithDetail("number", o.Number)
			}
		}
		st.orders[o.ID] = *o
		return nil
	})
}

func (r orderRepo) Get(ctx context.Context, orderID id.ID) (*order.Order, error) {
	var out *order.Order
	err := r.s.with(ctx, func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return apperror.NewNotFound("order", orderID.String())
		}
		out = &o
		return nil
	})
	return out, err
}

// GetForUpdate is Get: the transaction already holds the store mutex.
func (r orderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*order.Order, error) {
	return r.Get(ctx, orderID)
}

func (r orderRepo) UpdateBalance(ctx context.Context, o *order.Order, expected time.Time) error {
	return r.s.with(ctx, func(st *state) error {
		stored, ok := st.orders[o.ID]
		if !ok {
			return apperror.NewNotFound("order", o.ID.String())
		}
		if !stored.BalanceUpdatedAt.Equal(expected) {
			return apperror.NewConcurrencyConflict("order", o.ID.String())
		}
		st.orders[o.ID] = *o
		return nil
	})
}

func (r orderRepo) UpdateState(ctx context.Context, o *order.Order) error {
	return r.s.with(ctx, func(st *state) error {
		stored, ok := st.orders[o.ID]
		if !ok {
			return apperror.NewNotFound("order", o.ID.String())
		}
		stored.Track = o.Track
		stored.Status = o.Status
		stored.FinalizedAt = o.FinalizedAt
		stored.UpdatedAt = o.UpdatedAt
		st.orders[o.ID] = stored
		return nil
	})
}

func (r orderRepo) List(ctx context.Context, f order.ListFilter) ([]*order.Order, error) {
	var out []*order.Order
	err := r.s.with(ctx, func(st *state) error {
		for _, o := range st.orders {
			if f.Tool != "" && o.Tool != f.Tool {
				continue
			}
			if f.Facility != "" && o.Track.Facility() != f.Facility {
				continue
			}
			if f.Status != "" && o.Status != f.Status {
				continue
			}
			o := o
			out = append(out, &o)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return id.Compare(out[i].ID, out[j].ID) > 0
	})
	return page(out, f.Offset, f.Limit), err
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func toolOrders(st *state, tool string) map[id.ID]bool {
	ids := make(map[id.ID]bool)
	for _, o := range st.orders {
		if o.Tool == tool {
			ids[o.ID] = true
		}
	}
	return ids
}

type eventRepo struct{ s *Store }

func (r eventRepo) Append(ctx context.Context, e *production.Event) error {
	return r.s.with(ctx, func(st *state) error {
		st.events = append(st.events, *e)
		return nil
	})
}

func (r eventRepo) List(ctx context.Context, f production.Filter) ([]production.Event, error) {
	var out []production.Event
	err := r.s.with(ctx, func(st *state) error {
		var tool map[id.ID]bool
		if f.Tool != "" {
			tool = toolOrders(st, f.Tool)
		}
		for _, e := range st.events {
			if !id.IsNil(f.OrderID) && e.OrderID != f.OrderID {
				continue
			}
			if tool != nil && !tool[e.OrderID] {
				continue
			}
			if len(f.Stages) > 0 && !containsStage(f.Stages, e.Stage) {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	production.SortOldestFirst(out)
	return out, err
}

func containsStage(stages []order.GranularStage, s order.GranularStage) bool {
	for _, x := range stages {
		if x == s {
			return true
		}
	}
	return false
}

func (r eventRepo) Relabel(ctx context.Context, rl production.Relabel) error {
	return r.s.with(ctx, func(st *state) error {
		for i := range st.events {
			e := &st.events[i]
			if e.ID != rl.EventID {
				continue
			}
			if e.Stage != rl.FromStage {
				return apperror.NewNoPendingLot(string(rl.FromStage), e.Lot.String())
			}
			e.Stage = rl.Stage
			e.Lot = rl.Lot
			e.ExternalLot = rl.ExternalLot
			e.UpdatedAt = rl.At
			return nil
		}
		return apperror.NewNotFound("production event", rl.EventID.String())
	})
}

type deductionRepo struct{ s *Store }

func (r deductionRepo) Append(ctx context.Context, d *deduction.Deduction) error {
	return r.s.with(ctx, func(st *state) error {
		st.deductions = append(st.deductions, *d)
		return nil
	})
}

func (r deductionRepo) Get(ctx context.Context, deductionID id.ID) (*deduction.Deduction, error) {
	var out *deduction.Deduction
	err := r.s.with(ctx, func(st *state) error {
		for _, d := range st.deductions {
			if d.ID == deductionID {
				d := d
				out = &d
				return nil
			}
		}
		return apperror.NewNotFound("deduction", deductionID.String())
	})
	return out, err
}

func (r deductionRepo) List(ctx context.Context, f deduction.Filter) ([]deduction.Deduction, error) {
	var out []deduction.Deduction
	err := r.s.with(ctx, func(st *state) error {
		var tool map[id.ID]bool
		if f.Tool != "" {
			tool = toolOrders(st, f.Tool)
		}
		for _, d := range st.deductions {
			if !id.IsNil(f.OrderID) && d.OrderID != f.OrderID {
				continue
			}
			if !id.IsNil(f.EventID) && d.EventID != f.EventID {
				continue
			}
			if tool != nil && !tool[d.OrderID] {
				continue
			}
			if d.Reversed && !f.IncludeReversed {
				continue
			}
			out = append(out, d)
		}
		return nil
	})
	return out, err
}

func (r deductionRepo) MarkReversed(ctx context.Context, deductionID id.ID, by string, at time.Time) error {
	return r.s.with(ctx, func(st *state) error {
		for i := range st.deductions {
			d := &st.deductions[i]
			if d.ID != deductionID {
				continue
			}
			if d.Reversed {
				return apperror.NewConflict("deduction is already reversed").
					WithDetail("deduction_id", deductionID.String())
			}
			d.Reversed = true
			d.ReversedAt = &at
			d.ReversedBy = by
			return nil
		}
		return apperror.NewNotFound("deduction", deductionID.String())
	})
}

type movementRepo struct{ s *Store }

func (r movementRepo) Append(ctx context.Context, m *movement.Movement) error {
	return r.s.with(ctx, func(st *state) error {
		st.movements = append(st.movements, *m)
		return nil
	})
}

func (r movementRepo) List(ctx context.Context, orderID id.ID, limit int) ([]movement.Movement, error) {
	var out []movement.Movement
	err := r.s.with(ctx, func(st *state) error {
		for i := len(st.movements) - 1; i >= 0; i-- {
			if st.movements[i].OrderID == orderID {
				out = append(out, st.movements[i])
			}
		}
		return nil
	})
	return page(out, 0, limit), err
}
