package order

import (
	"context"
	"time"

	"prodflow/internal/core/id"
)

// ListFilter narrows order listings. Zero fields match everything.
type ListFilter struct {
	Tool     string
	Facility Facility
	Status   Status
	Limit    int
	Offset   int
}

// Repository is the persistence contract for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error

	// Get reads an order without locking. NOT_FOUND if absent.
	Get(ctx context.Context, orderID id.ID) (*Order, error)

	// GetForUpdate reads and row-locks the order inside the current
	// transaction.
	GetForUpdate(ctx context.Context, orderID id.ID) (*Order, error)

	// UpdateBalance writes balance, track and status fields only if the
	// stored balance_updated_at still equals expected. Otherwise it fails
	// with CONCURRENCY_CONFLICT and writes nothing.
	UpdateBalance(ctx context.Context, o *Order, expected time.Time) error

	// UpdateState writes track, status and finalized_at.
	UpdateState(ctx context.Context, o *Order) error

	List(ctx context.Context, filter ListFilter) ([]*Order, error)
}
