package solver

import (
	"time"

	"github.com/Wbench12/logistic/internal/domain"
)

// Travel answers deadhead and in-trip travel queries for the solver. It is
// backed by an immutable matrix snapshot so both objective passes see the
// same values.
type Travel interface {
	Minutes(from, to domain.LatLng) int
	Km(from, to domain.LatLng) float64
}

// Trip is the solver-facing view of a shipment. Times are integer minutes
// from midnight of the batch date.
type Trip struct {
	ID        string
	CompanyID string
	Orig      domain.LatLng
	Dest      domain.LatLng
	Earliest  int // departure window opens
	Latest    int // planned arrival
	Duration  int // in-trip driving time
	Service   int // on-site service time
	WeightKg  float64
	VolumeM3  *float64
	ReturnKm  float64 // solo return estimate dest -> own depot (r_i0)
}

// LatestStart returns the latest minute the trip may begin and still meet
// its planned arrival
func (t *Trip) LatestStart() int {
	ls := t.Latest - t.Duration
	if ls < t.Earliest {
		return t.Earliest
	}
	return ls
}

// Finish returns the earliest minute the vehicle is free again after the
// trip when started at start
func (t *Trip) Finish(start int) int {
	return start + t.Duration + t.Service
}

// Vehicle is the solver-facing view of a truck. All vehicles handed to one
// solve share a category.
type Vehicle struct {
	ID         string
	CompanyID  string
	Depot      domain.LatLng
	CapacityKg float64
	CapacityM3 *float64
}

// Fits reports whether the trip's shipment fits the vehicle. Shipments are
// independent; the chain is temporal, so capacity is checked per trip.
func (v *Vehicle) Fits(t *Trip) bool {
	if t.WeightKg > v.CapacityKg {
		return false
	}
	if t.VolumeM3 != nil && v.CapacityM3 != nil && *t.VolumeM3 > *v.CapacityM3 {
		return false
	}
	return true
}

// Config carries the solver controls
type Config struct {
	Budget          time.Duration // wall-time per group, split across passes
	DefaultReturnKm float64
	DropPenalty     int64
}

// Assignment is one solved trip placement
type Assignment struct {
	TripID        string
	VehicleID     string
	SequenceOrder int  // dense 1-based position in the vehicle's chain
	StartMin      int  // minutes from midnight
	IsLast        bool // last trip of the vehicle's chain
}

// Unassigned records a trip left out of the plan with its reason
type Unassigned struct {
	TripID string
	Reason string
}

// Result is the outcome of solving one vehicle-category group
type Result struct {
	Assignments     []Assignment
	Unassigned      []Unassigned
	VehiclesUsed    int
	TotalDeadheadKm float64
	Fallback        bool // round-robin fallback was used
	TimedOut        bool // budget expired, best incumbent kept
	Diagnostics     []string
}
