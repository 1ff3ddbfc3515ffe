package flow

import (
	"context"
	"fmt"
	"strings"

	"prodflow/internal/core/apperror"
	appctx "prodflow/internal/core/context"
	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/deduction"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/domain/movement"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
	"prodflow/pkg/logger"
)

// DeductRequest withdraws pieces from a packaged lot of an order.
type DeductRequest struct {
	OrderID id.ID
	// Product must match the order's tool when set.
	Product string
	// Lot targets a specific lot. Nil picks the oldest lot that covers
	// the quantity.
	Lot        *lotcode.Code
	QuantityPc int64
	Reason     deduction.Reason
	Note       string
}

func (r DeductRequest) validate() error {
	if r.QuantityPc <= 0 {
		return apperror.NewInvalidQuantity("deducted quantity must be greater than zero").
			WithDetail("quantity_pc", r.QuantityPc)
	}
	if !r.Reason.Valid() {
		return apperror.NewValidation("reason must be consumption or sale").
			WithDetail("reason", string(r.Reason))
	}
	return nil
}

// DeductStock appends a deduction against one lot. The lot's remaining
// balance is recomputed inside the transaction.
func (s *Service) DeductStock(ctx context.Context, req DeductRequest) (*deduction.Deduction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var created *deduction.Deduction
	err := s.run(ctx, "deduct_stock", req.OrderID, func(ctx context.Context, o *order.Order) error {
		if req.Product != "" && !strings.EqualFold(strings.TrimSpace(req.Product), o.Tool) {
			return apperror.NewValidation("product does not match the order's tool").
				WithDetail("product", req.Product).
				WithDetail("tool", o.Tool)
		}

		events, deductions, err := s.ledgers(ctx, o.ID)
		if err != nil {
			return err
		}
		lot, err := deduction.SelectLot(deduction.Balances(events, deductions), req.QuantityPc, req.Lot)
		if err != nil {
			return err
		}

		now := s.now()
		d := &deduction.Deduction{
			ID:         id.New(),
			OrderID:    o.ID,
			EventID:    lot.Event.ID,
			LotCode:    lot.Event.Lot,
			Reason:     req.Reason,
			QuantityPc: req.QuantityPc,
			QuantityKg: lot.KgFor(req.QuantityPc),
			Note:       strings.TrimSpace(req.Note),
			Operator:   appctx.OperatorName(ctx),
			CreatedAt:  now,
		}
		if err := s.deductions.Append(ctx, d); err != nil {
			return fmt.Errorf("append deduction: %w", err)
		}

		if err := s.record(ctx, o, movement.Movement{
			Kind:       movement.KindDeduction,
			FromStage:  string(lot.Event.Stage),
			Reason:     string(d.Reason),
			QuantityPc: d.QuantityPc,
			QuantityKg: d.QuantityKg,
			LotCode:    d.LotCode.String(),
			At:         now,
		}); err != nil {
			return err
		}
		if err := s.publish(ctx, EventStockDeducted, o.ID, deductionPayload(d)); err != nil {
			return err
		}

		logger.Info(ctx, "stock deducted",
			"order_id", o.ID, "lot_code", d.LotCode.String(), "quantity_pc", d.QuantityPc,
			"remaining_pc", lot.RemainingPc-d.QuantityPc)
		created = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ReverseDeduction flags a deduction as reversed, restoring exactly its
// quantity to the lot. The row is kept.
func (s *Service) ReverseDeduction(ctx context.Context, deductionID id.ID) error {
	d, err := s.deductions.Get(ctx, deductionID)
	if err != nil {
		return err
	}

	return s.run(ctx, "reverse_deduction", d.OrderID, func(ctx context.Context, o *order.Order) error {
		current, err := s.deductions.Get(ctx, deductionID)
		if err != nil {
			return err
		}
		if current.Reversed {
			return apperror.NewConflict("deduction is already reversed").
				WithDetail("deduction_id", deductionID.String())
		}

		now := s.now()
		operator := appctx.OperatorName(ctx)
		if err := s.deductions.MarkReversed(ctx, deductionID, operator, now); err != nil {
			return err
		}
		current.Reversed = true
		current.ReversedAt = &now
		current.ReversedBy = operator

		if err := s.record(ctx, o, movement.Movement{
			Kind:       movement.KindReversal,
			Reason:     string(current.Reason),
			QuantityPc: current.QuantityPc,
			QuantityKg: current.QuantityKg,
			LotCode:    current.LotCode.String(),
			At:         now,
		}); err != nil {
			return err
		}
		if err := s.publish(ctx, EventDeductionReversed, o.ID, deductionPayload(current)); err != nil {
			return err
		}

		logger.Info(ctx, "deduction reversed",
			"order_id", o.ID, "deduction_id", deductionID, "quantity_pc", current.QuantityPc)
		return nil
	})
}

// ProductStock is the remaining packaged stock of one tool across orders.
type ProductStock struct {
	Tool        string
	RemainingPc int64
	RemainingKg types.Kg
	Lots        []deduction.LotBalance
}

// ProductStock sums remaining lot balances of every order producing tool,
// finalized orders included.
func (s *Service) ProductStock(ctx context.Context, tool string) (ProductStock, error) {
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return ProductStock{}, apperror.NewValidation("tool is required")
	}

	events, err := s.events.List(ctx, production.Filter{Tool: tool})
	if err != nil {
		return ProductStock{}, fmt.Errorf("list events: %w", err)
	}
	deductions, err := s.deductions.List(ctx, deduction.Filter{Tool: tool})
	if err != nil {
		return ProductStock{}, fmt.Errorf("list deductions: %w", err)
	}

	out := ProductStock{Tool: tool, RemainingKg: types.ZeroKg()}
	for _, b := range deduction.Balances(events, deductions) {
		if b.RemainingPc <= 0 {
			continue
		}
		out.RemainingPc += b.RemainingPc
		out.RemainingKg = out.RemainingKg.Add(b.RemainingKg)
		out.Lots = append(out.Lots, b)
	}
	return out, nil
}

func deductionPayload(d *deduction.Deduction) DeductionPayload {
	return DeductionPayload{
		DeductionID: d.ID.String(),
		EventID:     d.EventID.String(),
		LotCode:     d.LotCode.String(),
		Reason:      string(d.Reason),
		QuantityPc:  d.QuantityPc,
		QuantityKg:  d.QuantityKg.String(),
	}
}
