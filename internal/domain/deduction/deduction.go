// Package deduction holds the stock reconciliation ledger: append-only
// withdrawals ("baixas") against produced lots.
package deduction

import (
	"context"
	"time"

	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/lotcode"
)

// Reason categorizes a withdrawal.
type Reason string

const (
	ReasonConsumption Reason = "consumption"
	ReasonSale        Reason = "sale"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	return r == ReasonConsumption || r == ReasonSale
}

// Deduction withdraws pieces from one lot. Reversal flips Reversed and
// excludes it from balance math; rows are never deleted.
type Deduction struct {
	ID         id.ID
	OrderID    id.ID
	EventID    id.ID
	LotCode    lotcode.Code
	Reason     Reason
	QuantityPc int64
	QuantityKg types.Kg
	Note       string
	Operator   string
	Reversed   bool
	ReversedAt *time.Time
	ReversedBy string
	CreatedAt  time.Time
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	OrderID id.ID
	EventID id.ID
	// Tool selects deductions of every order producing this tool/product.
	Tool            string
	IncludeReversed bool
}

// Repository is the persistence contract for deductions.
type Repository interface {
	Append(ctx context.Context, d *Deduction) error
	Get(ctx context.Context, deductionID id.ID) (*Deduction, error)
	List(ctx context.Context, filter Filter) ([]Deduction, error)

	// MarkReversed flips the reversed flag. It must fail with CONFLICT if
	// the deduction is already reversed.
	MarkReversed(ctx context.Context, deductionID id.ID, by string, at time.Time) error
}
