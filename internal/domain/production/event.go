// Package production holds the Facility-B production event ledger.
//
// Events are appended when production is recorded. The only permitted
// update is a relabel, which moves a lot to another stage under a new
// lot code; quantities never change.
package production

import (
	"context"
	"time"

	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/domain/order"
)

// Event is one lot sitting at a Facility-B stage.
type Event struct {
	ID          id.ID
	OrderID     id.ID
	Stage       order.GranularStage
	QuantityPc  int64
	QuantityKg  types.Kg
	Lot         lotcode.Code
	ExternalLot string
	StartedAt   time.Time
	FinishedAt  time.Time
	Note        string
	Operator    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Relabel describes a controlled stage/lot update of one event.
type Relabel struct {
	EventID     id.ID
	FromStage   order.GranularStage
	Stage       order.GranularStage
	Lot         lotcode.Code
	ExternalLot string
	At          time.Time
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	OrderID id.ID
	// Tool selects events of every order producing this tool/product.
	Tool   string
	Stages []order.GranularStage
}

// Repository is the persistence contract for the ledger.
type Repository interface {
	// Append stores a new event.
	Append(ctx context.Context, e *Event) error

	// List returns events matching filter, oldest first (created_at, id).
	List(ctx context.Context, filter Filter) ([]Event, error)

	// Relabel moves an event to a new stage and lot code. It must fail with
	// NO_PENDING_LOT if the event is no longer at r.FromStage, so two
	// operators cannot move the same lot twice.
	Relabel(ctx context.Context, r Relabel) error
}
