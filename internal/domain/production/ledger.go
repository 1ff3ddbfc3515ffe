package production

import (
	"sort"

	"prodflow/internal/core/id"
	"prodflow/internal/core/types"
	"prodflow/internal/domain/lotcode"
	"prodflow/internal/domain/order"
)

// LotMove is a permitted relabel of a lot between two stages.
type LotMove struct {
	Name    string
	From    order.GranularStage
	To      order.GranularStage
	Purpose lotcode.Purpose
}

var (
	// MoveApprove releases an inspected lot to packaging.
	MoveApprove = LotMove{Name: "approve", From: order.StageAwaitingInspection, To: order.StageAwaitingPackaging, Purpose: lotcode.PurposePackaging}
	// MoveShip sends a packaged lot toward Facility A.
	MoveShip = LotMove{Name: "ship", From: order.StageAwaitingPackaging, To: order.StageShipToA, Purpose: lotcode.PurposeExpedition}
	// MoveReopenInspection sends a packaged lot back to inspection.
	MoveReopenInspection = LotMove{Name: "reopen", From: order.StageAwaitingPackaging, To: order.StageAwaitingInspection, Purpose: lotcode.PurposeInspection}
	// MoveReopenPackaging pulls a shipped lot back to packaging.
	MoveReopenPackaging = LotMove{Name: "reopen", From: order.StageShipToA, To: order.StageAwaitingPackaging, Purpose: lotcode.PurposePackaging}
)

// ReopenMove returns the reverse edge for a lot at stage.
func ReopenMove(stage order.GranularStage) (LotMove, bool) {
	switch stage {
	case order.StageAwaitingPackaging:
		return MoveReopenInspection, true
	case order.StageShipToA:
		return MoveReopenPackaging, true
	}
	return LotMove{}, false
}

// PackagedStages are the stages counted as "reached packaging".
var PackagedStages = []order.GranularStage{order.StageAwaitingPackaging, order.StageShipToA}

// IsPackaged reports whether stage is packaging or beyond.
func IsPackaged(stage order.GranularStage) bool {
	for _, s := range PackagedStages {
		if s == stage {
			return true
		}
	}
	return false
}

// StageTotal aggregates the lots at one stage.
type StageTotal struct {
	Pieces int64
	Kg     types.Kg
	Lots   int
}

// Summarize groups events by stage.
func Summarize(events []Event) map[order.GranularStage]StageTotal {
	totals := make(map[order.GranularStage]StageTotal)
	for _, e := range events {
		t := totals[e.Stage]
		t.Pieces += e.QuantityPc
		t.Kg = t.Kg.Add(e.QuantityKg)
		t.Lots++
		totals[e.Stage] = t
	}
	return totals
}

// AtStage returns events at stage, oldest first.
func AtStage(events []Event, stage order.GranularStage) []Event {
	var out []Event
	for _, e := range events {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	SortOldestFirst(out)
	return out
}

// FindLot returns the event currently carrying code.
func FindLot(events []Event, code lotcode.Code) (Event, bool) {
	for _, e := range events {
		if e.Lot == code {
			return e, true
		}
	}
	return Event{}, false
}

// Codes returns the current lot codes of events.
func Codes(events []Event) []lotcode.Code {
	codes := make([]lotcode.Code, 0, len(events))
	for _, e := range events {
		codes = append(codes, e.Lot)
	}
	return codes
}

// SortOldestFirst orders by creation time, then id.
func SortOldestFirst(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return id.Compare(events[i].ID, events[j].ID) < 0
	})
}
