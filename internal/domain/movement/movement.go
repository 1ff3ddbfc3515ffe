// Package movement is the order's audit trail: one row per stage change,
// production record, lot relabel, deduction, reversal and finalize.
package movement

import (
	"context"
	"encoding/json"
	"time"

	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
)

// Kind classifies a movement.
type Kind string

const (
	KindOrderCreated Kind = "order_created"
	KindStageChange  Kind = "stage_change"
	KindProduction   Kind = "production"
	KindLotRelabel   Kind = "lot_relabel"
	KindDeduction    Kind = "deduction"
	KindReversal     Kind = "reversal"
	KindFinalize     Kind = "finalize"
)

// Movement is one audit row. Rows are never updated.
type Movement struct {
	ID         id.ID
	OrderID    id.ID
	Kind       Kind
	FromStage  string
	ToStage    string
	Reason     string
	QuantityPc int64
	QuantityKg types.Kg
	LotCode    string
	Operator   string
	At         time.Time

	// Snapshot is the order's balance after the movement, as JSON.
	Snapshot json.RawMessage
}

// Repository stores the trail.
type Repository interface {
	Append(ctx context.Context, m *Movement) error
	// List returns the order's movements, newest first. limit <= 0 means all.
	List(ctx context.Context, orderID id.ID, limit int) ([]Movement, error)
}
