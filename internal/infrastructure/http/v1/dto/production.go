package dto

import (
	"time"

	"prodflow/internal/core/id"
	"prodflow/internal/domain/balance"
	"prodflow/internal/domain/flow"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
)

// RecordProductionRequest records one machining batch.
type RecordProductionRequest struct {
	Stage               string    `json:"stage"`
	TotalPc             int64     `json:"total_pc" binding:"required,gt=0"`
	InspectionPc        int64     `json:"inspection_pc" binding:"gte=0"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	Note                string    `json:"note" binding:"max=1000"`
	ExternalLot         string    `json:"external_lot" binding:"max=100"`
	ObservedAvailablePc *int64    `json:"observed_available_pc"`
}

// ToRequest converts to the engine request.
func (r RecordProductionRequest) ToRequest(orderID id.ID) flow.RecordRequest {
	return flow.RecordRequest{
		OrderID:             orderID,
		Stage:               order.GranularStage(r.Stage),
		TotalPc:             r.TotalPc,
		InspectionPc:        r.InspectionPc,
		StartedAt:           r.StartedAt,
		FinishedAt:          r.FinishedAt,
		Note:                r.Note,
		ExternalLot:         r.ExternalLot,
		ObservedAvailablePc: r.ObservedAvailablePc,
	}
}

// LotRequest names one lot by its code.
type LotRequest struct {
	LotCode string `json:"lot_code" binding:"required"`
}

// ReopenAllRequest sends every lot at Stage back one step.
type ReopenAllRequest struct {
	Stage string `json:"stage" binding:"required,oneof=awaiting_packaging ship_to_a"`
}

// EventResponse is one production lot.
type EventResponse struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Stage       string    `json:"stage"`
	LotCode     string    `json:"lot_code"`
	ExternalLot string    `json:"external_lot,omitempty"`
	QuantityPc  int64     `json:"quantity_pc"`
	QuantityKg  string    `json:"quantity_kg"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Note        string    `json:"note,omitempty"`
	Operator    string    `json:"operator"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FromEvent maps a ledger event.
func FromEvent(e production.Event) EventResponse {
	return EventResponse{
		ID:          e.ID.String(),
		OrderID:     e.OrderID.String(),
		Stage:       string(e.Stage),
		LotCode:     e.Lot.String(),
		ExternalLot: e.ExternalLot,
		QuantityPc:  e.QuantityPc,
		QuantityKg:  Kg(e.QuantityKg),
		StartedAt:   e.StartedAt,
		FinishedAt:  e.FinishedAt,
		Note:        e.Note,
		Operator:    e.Operator,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// StageTotalResponse aggregates one stage.
type StageTotalResponse struct {
	Pieces int64  `json:"pieces"`
	Kg     string `json:"kg"`
	Lots   int    `json:"lots"`
}

// BalanceResponse is the order projection plus the finalize check.
type BalanceResponse struct {
	Order             OrderResponse                 `json:"order"`
	OrderedPc         int64                         `json:"ordered_pc"`
	AvailablePc       int64                         `json:"available_pc"`
	AvailableKg       string                        `json:"available_kg"`
	ProducedPc        int64                         `json:"produced_pc"`
	ProducedKg        string                        `json:"produced_kg"`
	Stages            map[string]StageTotalResponse `json:"stages,omitempty"`
	PackagedPc        int64                         `json:"packaged_pc"`
	PackagedKg        string                        `json:"packaged_kg"`
	PendingInspection int                           `json:"pending_inspection"`
	ConsumedPc        int64                         `json:"consumed_pc"`
	ConsumedKg        string                        `json:"consumed_kg"`
	StockPc           int64                         `json:"stock_pc"`
	CanFinalize       bool                          `json:"can_finalize"`
	Blockers          []string                      `json:"blockers"`
	Lots              []LotBalanceResponse          `json:"lots"`
}

// FromBalance maps a balance view.
func FromBalance(v flow.BalanceView) BalanceResponse {
	p := v.Projection
	resp := BalanceResponse{
		Order:             FromOrder(v.Order),
		OrderedPc:         p.OrderedPc,
		AvailablePc:       p.AvailablePc,
		AvailableKg:       Kg(p.AvailableKg),
		ProducedPc:        p.ProducedPc,
		ProducedKg:        Kg(p.ProducedKg),
		PackagedPc:        p.PackagedPc,
		PackagedKg:        Kg(p.PackagedKg),
		PendingInspection: p.PendingInspection,
		ConsumedPc:        p.ConsumedPc,
		ConsumedKg:        Kg(p.ConsumedKg),
		StockPc:           p.StockPc(),
		CanFinalize:       len(v.Blockers) == 0 && !v.Order.IsFinalized(),
		Blockers:          Map(v.Blockers, func(r balance.Reason) string { return string(r) }),
		Lots:              Map(p.Lots, FromLotBalance),
	}
	if len(p.Stages) > 0 {
		resp.Stages = make(map[string]StageTotalResponse, len(p.Stages))
		for stage, t := range p.Stages {
			resp.Stages[string(stage)] = StageTotalResponse{Pieces: t.Pieces, Kg: Kg(t.Kg), Lots: t.Lots}
		}
	}
	return resp
}
