package deduction

import (
	"prodflow/internal/core/apperror"
	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/domain/production"
)

// LotBalance is what remains of a packaged lot after live deductions.
type LotBalance struct {
	Event       production.Event
	DeductedPc  int64
	DeductedKg  types.Kg
	RemainingPc int64
	RemainingKg types.Kg
}

// Balances computes per-lot remaining stock for lots at packaging and
// beyond, oldest lot first. Reversed deductions are ignored.
func Balances(events []production.Event, deductions []Deduction) []LotBalance {
	used := make(map[id.ID]LotBalance)
	for _, d := range deductions {
		if d.Reversed {
			continue
		}
		b := used[d.EventID]
		b.DeductedPc += d.QuantityPc
		b.DeductedKg = b.DeductedKg.Add(d.QuantityKg)
		used[d.EventID] = b
	}

	lots := make([]production.Event, 0, len(events))
	for _, e := range events {
		if production.IsPackaged(e.Stage) {
			lots = append(lots, e)
		}
	}
	production.SortOldestFirst(lots)

	out := make([]LotBalance, 0, len(lots))
	for _, e := range lots {
		b := used[e.ID]
		b.Event = e
		b.RemainingPc = e.QuantityPc - b.DeductedPc
		b.RemainingKg = e.QuantityKg.Sub(b.DeductedKg)
		out = append(out, b)
	}
	return out
}

// HasLiveDeductions reports whether any non-reversed deduction targets eventID.
func HasLiveDeductions(deductions []Deduction, eventID id.ID) bool {
	for _, d := range deductions {
		if !d.Reversed && d.EventID == eventID {
			return true
		}
	}
	return false
}

// SelectLot picks the lot to deduct pcs from.
//
// With a target code, that lot must be packaged and hold pcs. Without one,
// the oldest lot whose remaining balance covers pcs is chosen.
func SelectLot(balances []LotBalance, pcs int64, target *lotcode.Code) (LotBalance, error) {
	if target != nil {
		for _, b := range balances {
			if b.Event.Lot != *target {
				continue
			}
			if b.RemainingPc <= 0 {
				return LotBalance{}, apperror.NewNoPendingLot(string(b.Event.Stage), target.String())
			}
			if pcs > b.RemainingPc {
				return LotBalance{}, apperror.NewInsufficientBalance(apperror.ScopeLot, pcs, b.RemainingPc).
					WithDetail("lot_code", target.String())
			}
			return b, nil
		}
		return LotBalance{}, apperror.NewNoPendingLot("packaged", target.String())
	}

	var best int64
	for _, b := range balances {
		if b.RemainingPc >= pcs {
			return b, nil
		}
		if b.RemainingPc > best {
			best = b.RemainingPc
		}
	}
	if best == 0 {
		return LotBalance{}, apperror.NewNoPendingLot("packaged", "")
	}
	return LotBalance{}, apperror.NewInsufficientBalance(apperror.ScopeLot, pcs, best)
}

// KgFor converts pcs taken from b to weight using the lot's own ratio.
// Taking the whole remainder takes the exact remaining kg.
func (b LotBalance) KgFor(pcs int64) types.Kg {
	if pcs == b.RemainingPc {
		return b.RemainingKg
	}
	ratio := types.KgPerPiece(b.Event.QuantityKg, b.Event.QuantityPc)
	return types.PiecesToKg(pcs, ratio)
}
