package dto

import (
	"time"

	"prodflow/internal/core/id"
	"prodflow/internal/domain/deduction"
	"prodflow/internal/domain/flow"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/domain/movement"
)

// DeductRequest withdraws pieces from produced stock.
type DeductRequest struct {
	Product    string `json:"product"`
	LotCode    string `json:"lot_code"`
	QuantityPc int64  `json:"quantity_pc" binding:"required,gt=0"`
	Reason     string `json:"reason" binding:"required,oneof=consumption sale"`
	Note       string `json:"note" binding:"max=1000"`
}

// ToRequest converts to the engine request. A malformed lot code is
// returned as a parse error.
func (r DeductRequest) ToRequest(orderID id.ID) (flow.DeductRequest, error) {
	req := flow.DeductRequest{
		OrderID:    orderID,
		Product:    r.Product,
		QuantityPc: r.QuantityPc,
		Reason:     deduction.Reason(r.Reason),
		Note:       r.Note,
	}
	if r.LotCode != "" {
		lot, err := lotcode.Parse(r.LotCode)
		if err != nil {
			return flow.DeductRequest{}, err
		}
		req.Lot = &lot
	}
	return req, nil
}

// DeductionResponse is one deduction.
type DeductionResponse struct {
	ID         string     `json:"id"`
	OrderID    string     `json:"order_id"`
	EventID    string     `json:"event_id"`
	LotCode    string     `json:"lot_code"`
	Reason     string     `json:"reason"`
	QuantityPc int64      `json:"quantity_pc"`
	QuantityKg string     `json:"quantity_kg"`
	Note       string     `json:"note,omitempty"`
	Operator   string     `json:"operator"`
	Reversed   bool       `json:"reversed"`
	ReversedAt *time.Time `json:"reversed_at,omitempty"`
	ReversedBy string     `json:"reversed_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// FromDeduction maps a deduction.
func FromDeduction(d deduction.Deduction) DeductionResponse {
	return DeductionResponse{
		ID:         d.ID.String(),
		OrderID:    d.OrderID.String(),
		EventID:    d.EventID.String(),
		LotCode:    d.LotCode.String(),
		Reason:     string(d.Reason),
		QuantityPc: d.QuantityPc,
		QuantityKg: Kg(d.QuantityKg),
		Note:       d.Note,
		Operator:   d.Operator,
		Reversed:   d.Reversed,
		ReversedAt: d.ReversedAt,
		ReversedBy: d.ReversedBy,
		CreatedAt:  d.CreatedAt,
	}
}

// LotBalanceResponse is the remaining stock of one packaged lot.
type LotBalanceResponse struct {
	EventID     string `json:"event_id"`
	OrderID     string `json:"order_id"`
	LotCode     string `json:"lot_code"`
	Stage       string `json:"stage"`
	ProducedPc  int64  `json:"produced_pc"`
	DeductedPc  int64  `json:"deducted_pc"`
	RemainingPc int64  `json:"remaining_pc"`
	RemainingKg string `json:"remaining_kg"`
}

// FromLotBalance maps a lot balance.
func FromLotBalance(b deduction.LotBalance) LotBalanceResponse {
	return LotBalanceResponse{
		EventID:     b.Event.ID.String(),
		OrderID:     b.Event.OrderID.String(),
		LotCode:     b.Event.Lot.String(),
		Stage:       string(b.Event.Stage),
		ProducedPc:  b.Event.QuantityPc,
		DeductedPc:  b.DeductedPc,
		RemainingPc: b.RemainingPc,
		RemainingKg: Kg(b.RemainingKg),
	}
}

// ProductStockResponse sums remaining stock of one product.
type ProductStockResponse struct {
	Tool        string               `json:"tool"`
	RemainingPc int64                `json:"remaining_pc"`
	RemainingKg string               `json:"remaining_kg"`
	Lots        []LotBalanceResponse `json:"lots"`
}

// FromProductStock maps a product stock summary.
func FromProductStock(s flow.ProductStock) ProductStockResponse {
	return ProductStockResponse{
		Tool:        s.Tool,
		RemainingPc: s.RemainingPc,
		RemainingKg: Kg(s.RemainingKg),
		Lots:        Map(s.Lots, FromLotBalance),
	}
}

// MovementResponse is one audit row.
type MovementResponse struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	FromStage  string    `json:"from_stage,omitempty"`
	ToStage    string    `json:"to_stage,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	QuantityPc int64     `json:"quantity_pc"`
	QuantityKg string    `json:"quantity_kg"`
	LotCode    string    `json:"lot_code,omitempty"`
	Operator   string    `json:"operator"`
	At         time.Time `json:"at"`
}

// FromMovement maps a movement. Snapshots are not exposed.
func FromMovement(m movement.Movement) MovementResponse {
	return MovementResponse{
		ID:         m.ID.String(),
		Kind:       string(m.Kind),
		FromStage:  m.FromStage,
		ToStage:    m.ToStage,
		Reason:     m.Reason,
		QuantityPc: m.QuantityPc,
		QuantityKg: Kg(m.QuantityKg),
		LotCode:    m.LotCode,
		Operator:   m.Operator,
		At:         m.At,
	}
}
