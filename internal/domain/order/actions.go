package order

import (
	"fmt"
	"sort"

	"prodflow/internal/core/apperror"
)

// Action names an operator button on a stage card.
type Action string

// Facility-A actions.
const (
	ActionProduce           Action = "produce"
	ActionRevise            Action = "revise"
	ActionInspect           Action = "inspect"
	ActionReturnToProduced  Action = "return_to_produced"
	ActionPack              Action = "pack"
	ActionShipToB           Action = "ship_to_b"
	ActionShipToClient      Action = "ship_to_client"
	ActionReopenInspection  Action = "reopen_inspection"
	ActionReturnToPackaging Action = "return_to_packaging"
	ActionHandoffToB        Action = "handoff_to_b"
	ActionRestart           Action = "restart"
	ActionFinalize          Action = "finalize"
)

// Facility-B order-level actions. Lot approval and reopening are lot
// operations on the production ledger, not order actions.
const (
	ActionSchedule         Action = "schedule"
	ActionReturnToStock    Action = "return_to_stock"
	ActionSendToInspection Action = "send_to_inspection"
	ActionAdjustSchedule   Action = "adjust_schedule"
	ActionMoveToPackaging  Action = "move_to_packaging"
	ActionPrepareShipment  Action = "prepare_shipment"
	ActionReopenShipment   Action = "reopen_shipment"
)

// Effect is the balance side effect of a transition.
type Effect int

const (
	// EffectNone only moves the order.
	EffectNone Effect = iota
	// EffectProduceAll records the whole order as produced.
	EffectProduceAll
	// EffectReopen returns the whole order to available.
	EffectReopen
	// EffectHandoff switches to Facility B and reopens the balance for machining.
	EffectHandoff
	// EffectFinalize runs the finalize guard and closes the order.
	EffectFinalize
)

// Transition is one resolved row of an action table.
type Transition struct {
	Action Action
	To     Track
	Effect Effect
}

type edge struct {
	to     Track
	effect Effect
}

var facilityATable = map[LinearStage]map[Action]edge{
	StageIntake: {
		ActionProduce: {to: FacilityATrack{StageProduced}, effect: EffectProduceAll},
	},
	StageProduced: {
		ActionRevise:  {to: FacilityATrack{StageIntake}, effect: EffectReopen},
		ActionInspect: {to: FacilityATrack{StageInspection}},
	},
	StageInspection: {
		ActionReturnToProduced: {to: FacilityATrack{StageProduced}},
		ActionPack:             {to: FacilityATrack{StagePackaging}},
		ActionShipToB:          {to: FacilityATrack{StageShipToB}},
		ActionShipToClient:     {to: FacilityATrack{StageShipToClient}},
	},
	StagePackaging: {
		ActionReopenInspection: {to: FacilityATrack{StageInspection}},
		ActionShipToB:          {to: FacilityATrack{StageShipToB}},
		ActionShipToClient:     {to: FacilityATrack{StageShipToClient}},
	},
	StageShipToB: {
		ActionReturnToPackaging: {to: FacilityATrack{StagePackaging}},
		ActionHandoffToB:        {to: FacilityBTrack{StageStock}, effect: EffectHandoff},
	},
	StageShipToClient: {
		ActionRestart:  {to: FacilityATrack{StageIntake}, effect: EffectReopen},
		ActionFinalize: {to: FacilityATrack{StageShipToClient}, effect: EffectFinalize},
	},
}

var facilityBTable = map[GranularStage]map[Action]edge{
	StageStock: {
		ActionSchedule: {to: FacilityBTrack{StageAwaitingMachining}},
	},
	StageAwaitingMachining: {
		ActionReturnToStock:    {to: FacilityBTrack{StageStock}},
		ActionSendToInspection: {to: FacilityBTrack{StageAwaitingInspection}},
	},
	StageAwaitingInspection: {
		ActionAdjustSchedule:  {to: FacilityBTrack{StageAwaitingMachining}},
		ActionMoveToPackaging: {to: FacilityBTrack{StageAwaitingPackaging}},
	},
	StageAwaitingPackaging: {
		ActionReopenInspection: {to: FacilityBTrack{StageAwaitingInspection}},
		ActionPrepareShipment:  {to: FacilityBTrack{StageShipToA}},
		ActionFinalize:         {to: FacilityBTrack{StageAwaitingPackaging}, effect: EffectFinalize},
	},
	StageShipToA: {
		ActionReopenShipment: {to: FacilityBTrack{StageAwaitingPackaging}},
		ActionFinalize:       {to: FacilityBTrack{StageShipToA}, effect: EffectFinalize},
	},
}

// Resolve looks up action from the order's current track.
func Resolve(from Track, action Action) (Transition, error) {
	var (
		e  edge
		ok bool
	)
	switch t := from.(type) {
	case FacilityATrack:
		e, ok = facilityATable[t.Stage][action]
	case FacilityBTrack:
		e, ok = facilityBTable[t.Stage][action]
	default:
		return Transition{}, fmt.Errorf("unknown track %T", from)
	}
	if !ok {
		return Transition{}, apperror.NewBusinessRule(apperror.CodeInvalidTransition,
			fmt.Sprintf("action %q is not available at stage %s", action, from.StageName())).
			WithDetail("facility", string(from.Facility())).
			WithDetail("stage", from.StageName()).
			WithDetail("action", string(action)).
			WithDetail("allowed", Available(from))
	}
	return Transition{Action: action, To: e.to, Effect: e.effect}, nil
}

// Available lists the actions offered at the track's current stage, sorted.
func Available(from Track) []Action {
	var row map[Action]edge
	switch t := from.(type) {
	case FacilityATrack:
		row = facilityATable[t.Stage]
	case FacilityBTrack:
		row = facilityBTable[t.Stage]
	}
	actions := make([]Action, 0, len(row))
	for a := range row {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}
