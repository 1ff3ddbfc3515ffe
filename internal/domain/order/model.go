// Package order holds the tracked production order and its stage graphs.
package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"prodflow/internal/core/apperror"
	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
)

// Status of an order's lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusFinalized Status = "finalized"
)

// Order is one tracked production order.
//
// Balance fields obey AvailablePc + ProducedPc == OrderedPc (kg mirrors it).
// Only the flow service mutates them.
type Order struct {
	ID     id.ID
	Number string
	Client string
	Tool   string

	OrderedPc int64
	OrderedKg types.Kg

	AvailablePc int64
	AvailableKg types.Kg
	ProducedPc  int64
	ProducedKg  types.Kg

	Track  Track
	Status Status

	// BalanceUpdatedAt is the optimistic concurrency marker for balance writes.
	BalanceUpdatedAt time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	FinalizedAt      *time.Time
}

// NewParams describes an order at intake.
type NewParams struct {
	Number    string
	Client    string
	Tool      string
	OrderedPc int64
	OrderedKg types.Kg
	Facility  Facility
}

// New validates params and creates an order at the start of its facility.
func New(p NewParams, now time.Time) (*Order, error) {
	number := strings.TrimSpace(p.Number)
	if number == "" {
		return nil, apperror.NewValidation("order number is required")
	}
	if strings.Contains(number, " ") {
		return nil, apperror.NewValidation("order number cannot contain spaces").WithDetail("number", number)
	}
	if p.OrderedPc <= 0 {
		return nil, apperror.NewInvalidQuantity("ordered pieces must be greater than zero").
			WithDetail("ordered_pc", p.OrderedPc)
	}
	if p.OrderedKg.IsNegative() {
		return nil, apperror.NewInvalidQuantity("ordered weight cannot be negative").
			WithDetail("ordered_kg", p.OrderedKg.String())
	}
	track, err := StartTrack(p.Facility)
	if err != nil {
		return nil, apperror.NewValidation(err.Error())
	}

	kg := types.RoundKg(p.OrderedKg)
	return &Order{
		ID:               id.New(),
		Number:           number,
		Client:           strings.TrimSpace(p.Client),
		Tool:             strings.TrimSpace(p.Tool),
		OrderedPc:        p.OrderedPc,
		OrderedKg:        kg,
		AvailablePc:      p.OrderedPc,
		AvailableKg:      kg,
		ProducedKg:       types.ZeroKg(),
		Track:            track,
		Status:           StatusActive,
		BalanceUpdatedAt: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// IsFinalized reports whether the order is closed.
func (o *Order) IsFinalized() bool {
	return o.Status == StatusFinalized
}

// KgPerPiece is the fixed weight ratio set at intake.
func (o *Order) KgPerPiece() decimal.Decimal {
	return types.KgPerPiece(o.OrderedKg, o.OrderedPc)
}

// KgFor converts produced pieces to weight. A batch that consumes the whole
// remaining balance takes the exact remaining kg.
func (o *Order) KgFor(pcs int64) types.Kg {
	if pcs == o.AvailablePc {
		return o.AvailableKg
	}
	return types.PiecesToKg(pcs, o.KgPerPiece())
}

// Produce moves pcs/kg from available to produced.
func (o *Order) Produce(pcs int64, kg types.Kg, now time.Time) error {
	if pcs <= 0 {
		return apperror.NewInvalidQuantity("produced quantity must be greater than zero")
	}
	if pcs > o.AvailablePc {
		return apperror.NewInsufficientBalance(apperror.ScopeOrder, pcs, o.AvailablePc)
	}
	o.AvailablePc -= pcs
	o.ProducedPc += pcs
	o.AvailableKg = o.AvailableKg.Sub(kg)
	o.ProducedKg = o.ProducedKg.Add(kg)
	if o.AvailablePc == 0 {
		o.AvailableKg = types.ZeroKg()
		o.ProducedKg = o.OrderedKg
	}
	o.touchBalance(now)
	return nil
}

// ProduceAll marks the whole order as produced (Facility-A single lot).
func (o *Order) ProduceAll(now time.Time) {
	o.AvailablePc, o.AvailableKg = 0, types.ZeroKg()
	o.ProducedPc, o.ProducedKg = o.OrderedPc, o.OrderedKg
	o.touchBalance(now)
}

// Reopen returns the whole ordered quantity to available.
func (o *Order) Reopen(now time.Time) {
	o.AvailablePc, o.AvailableKg = o.OrderedPc, o.OrderedKg
	o.ProducedPc, o.ProducedKg = 0, types.ZeroKg()
	o.touchBalance(now)
}

// Finalize closes the order. Guards live in the balance package.
func (o *Order) Finalize(now time.Time) {
	o.Status = StatusFinalized
	o.FinalizedAt = &now
	o.UpdatedAt = now
}

// MoveTo sets a new track position.
func (o *Order) MoveTo(t Track, now time.Time) {
	o.Track = t
	o.UpdatedAt = now
}

// CheckConservation verifies available + produced == ordered.
func (o *Order) CheckConservation() error {
	if o.AvailablePc < 0 {
		return fmt.Errorf("order %s: negative available pieces %d", o.Number, o.AvailablePc)
	}
	if o.AvailablePc+o.ProducedPc != o.OrderedPc {
		return fmt.Errorf("order %s: available %d + produced %d != ordered %d",
			o.Number, o.AvailablePc, o.ProducedPc, o.OrderedPc)
	}
	if !o.AvailableKg.Add(o.ProducedKg).Equal(o.OrderedKg) {
		return fmt.Errorf("order %s: available %s kg + produced %s kg != ordered %s kg",
			o.Number, o.AvailableKg, o.ProducedKg, o.OrderedKg)
	}
	return nil
}

// StageA returns the Facility-A stage, if the order is on that track.
func (o *Order) StageA() (LinearStage, bool) {
	t, ok := o.Track.(FacilityATrack)
	return t.Stage, ok
}

// StageB returns the Facility-B stage, if the order is on that track.
func (o *Order) StageB() (GranularStage, bool) {
	t, ok := o.Track.(FacilityBTrack)
	return t.Stage, ok
}

func (o *Order) touchBalance(now time.Time) {
	o.BalanceUpdatedAt = now
	o.UpdatedAt = now
}
