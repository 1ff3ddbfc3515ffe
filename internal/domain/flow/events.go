package flow

import (
	"prodflow/internal/core/id"
)

// Domain event types written to the outbox.
const (
	EventOrderCreated       = "order.created"
	EventStageChanged       = "order.stage_changed"
	EventOrderFinalized     = "order.finalized"
	EventProductionRecorded = "production.recorded"
	EventLotMoved           = "production.lot_moved"
	EventStockDeducted      = "stock.deducted"
	EventDeductionReversed  = "stock.deduction_reversed"
)

// AggregateOrder is the aggregate type of every event.
const AggregateOrder = "Order"

// Event is one domain event about an order.
type Event struct {
	Type    string
	OrderID id.ID
	Payload any
}

// StageChangedPayload describes an order-level transition.
type StageChangedPayload struct {
	Number       string `json:"number"`
	Action       string `json:"action"`
	FromFacility string `json:"from_facility"`
	FromStage    string `json:"from_stage"`
	ToFacility   string `json:"to_facility"`
	ToStage      string `json:"to_stage"`
	AvailablePc  int64  `json:"available_pc"`
	ProducedPc   int64  `json:"produced_pc"`
}

// LotPayload describes a lot that was created or moved.
type LotPayload struct {
	EventID    string `json:"event_id"`
	Number     string `json:"number"`
	Stage      string `json:"stage"`
	FromStage  string `json:"from_stage,omitempty"`
	LotCode    string `json:"lot_code"`
	PrevCode   string `json:"prev_lot_code,omitempty"`
	QuantityPc int64  `json:"quantity_pc"`
	QuantityKg string `json:"quantity_kg"`
}

// DeductionPayload describes a deduction or its reversal.
type DeductionPayload struct {
	DeductionID string `json:"deduction_id"`
	EventID     string `json:"event_id"`
	LotCode     string `json:"lot_code"`
	Reason      string `json:"reason"`
	QuantityPc  int64  `json:"quantity_pc"`
	QuantityKg  string `json:"quantity_kg"`
}
