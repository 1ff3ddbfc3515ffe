package order

import (
	"fmt"
)

// Facility identifies which plant tracks the order.
type Facility string

const (
	FacilityA Facility = "A"
	FacilityB Facility = "B"
)

// LinearStage is a Facility-A stage. The whole order moves as one lot.
type LinearStage string

const (
	StageIntake       LinearStage = "intake"
	StageProduced     LinearStage = "produced"
	StageInspection   LinearStage = "inspection"
	StagePackaging    LinearStage = "packaging"
	StageShipToB      LinearStage = "ship_to_b"
	StageShipToClient LinearStage = "ship_to_client"
)

// LinearStages lists Facility-A stages in flow order.
var LinearStages = []LinearStage{
	StageIntake, StageProduced, StageInspection, StagePackaging, StageShipToB, StageShipToClient,
}

// GranularStage is a Facility-B stage. Several partial lots may sit at
// the same stage, so lots carry their own stage in the production ledger.
type GranularStage string

const (
	StageStock              GranularStage = "stock"
	StageAwaitingMachining  GranularStage = "awaiting_machining"
	StageAwaitingInspection GranularStage = "awaiting_inspection"
	StageAwaitingPackaging  GranularStage = "awaiting_packaging"
	StageShipToA            GranularStage = "ship_to_a"
)

// GranularStages lists Facility-B stages in flow order.
var GranularStages = []GranularStage{
	StageStock, StageAwaitingMachining, StageAwaitingInspection, StageAwaitingPackaging, StageShipToA,
}

// Track is the order's position: exactly one of FacilityATrack or
// FacilityBTrack.
type Track interface {
	Facility() Facility
	StageName() string
	isTrack()
}

// FacilityATrack places the order on the linear Facility-A flow.
type FacilityATrack struct {
	Stage LinearStage
}

func (FacilityATrack) Facility() Facility  { return FacilityA }
func (t FacilityATrack) StageName() string { return string(t.Stage) }
func (FacilityATrack) isTrack()            {}

// FacilityBTrack places the order on the event-sourced Facility-B flow.
type FacilityBTrack struct {
	Stage GranularStage
}

func (FacilityBTrack) Facility() Facility  { return FacilityB }
func (t FacilityBTrack) StageName() string { return string(t.Stage) }
func (FacilityBTrack) isTrack()            {}

// ParseTrack rebuilds a Track from its stored facility and stage.
func ParseTrack(facility, stage string) (Track, error) {
	switch Facility(facility) {
	case FacilityA:
		for _, s := range LinearStages {
			if string(s) == stage {
				return FacilityATrack{Stage: s}, nil
			}
		}
	case FacilityB:
		for _, s := range GranularStages {
			if string(s) == stage {
				return FacilityBTrack{Stage: s}, nil
			}
		}
	default:
		return nil, fmt.Errorf("unknown facility %q", facility)
	}
	return nil, fmt.Errorf("unknown stage %q for facility %s", stage, facility)
}

// StartTrack is where a new order enters its facility.
func StartTrack(f Facility) (Track, error) {
	switch f {
	case FacilityA:
		return FacilityATrack{Stage: StageIntake}, nil
	case FacilityB:
		return FacilityBTrack{Stage: StageStock}, nil
	}
	return nil, fmt.Errorf("unknown facility %q", f)
}
