// Package balance derives an order's quantities from its ledgers and
// decides whether the order may be finalized.
package balance

import (
	"prodflow/internal/core/types"
	"prodflow/internal/domain/deduction"
	"prodflow/internal/domain/order"
	"prodflow/internal/domain/production"
)

// Projection is a read-only snapshot computed on demand. It is never
// cached across writes.
type Projection struct {
	OrderedPc   int64
	OrderedKg   types.Kg
	AvailablePc int64
	AvailableKg types.Kg
	ProducedPc  int64
	ProducedKg  types.Kg

	// Stages is only populated for Facility-B orders.
	Stages map[order.GranularStage]production.StageTotal

	PackagedPc        int64
	PackagedKg        types.Kg
	PendingInspection int
	ConsumedPc        int64
	ConsumedKg        types.Kg

	Lots []deduction.LotBalance
}

// Compute builds the projection of o from its events and deductions.
//
// Facility-A orders carry no events: the whole order is one lot whose
// position is the order's stage, so totals are derived from it.
func Compute(o *order.Order, events []production.Event, deductions []deduction.Deduction) Projection {
	p := Projection{
		OrderedPc:   o.OrderedPc,
		OrderedKg:   o.OrderedKg,
		AvailablePc: o.AvailablePc,
		AvailableKg: o.AvailableKg,
		ProducedPc:  o.ProducedPc,
		ProducedKg:  o.ProducedKg,
		PackagedKg:  types.ZeroKg(),
		ConsumedKg:  types.ZeroKg(),
	}

	if stage, ok := o.StageA(); ok {
		switch stage {
		case order.StageInspection:
			p.PendingInspection = 1
		case order.StagePackaging, order.StageShipToB, order.StageShipToClient:
			p.PackagedPc, p.PackagedKg = o.ProducedPc, o.ProducedKg
		}
		return p
	}

	p.Stages = production.Summarize(events)
	for _, s := range production.PackagedStages {
		t := p.Stages[s]
		p.PackagedPc += t.Pieces
		p.PackagedKg = p.PackagedKg.Add(t.Kg)
	}
	p.PendingInspection = p.Stages[order.StageAwaitingInspection].Lots

	for _, d := range deductions {
		if d.Reversed {
			continue
		}
		p.ConsumedPc += d.QuantityPc
		p.ConsumedKg = p.ConsumedKg.Add(d.QuantityKg)
	}
	p.Lots = deduction.Balances(events, deductions)
	return p
}

// StockPc is what remains on packaged lots after live deductions.
func (p Projection) StockPc() int64 {
	return p.PackagedPc - p.ConsumedPc
}
