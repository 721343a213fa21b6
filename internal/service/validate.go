package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Wbench12/logistic/internal/domain"
)

// ValidationFindings lists pre-solve input problems. The batch runner adds
// both errors and warnings to the report diagnostics; neither removes a trip
// from the solve.
type ValidationFindings struct {
	Errors   []string
	Warnings []string
}

// ValidateInputs sanity-checks the day's trips and fleet before solving
func ValidateInputs(trips []domain.Trip, vehicles []domain.Vehicle) ValidationFindings {
	var f ValidationFindings

	if len(trips) == 0 {
		f.Warnings = append(f.Warnings, "no trips provided")
	}
	if len(vehicles) == 0 {
		f.Warnings = append(f.Warnings, "no vehicles provided")
	}

	seen := make(map[uuid.UUID]struct{}, len(trips))
	for i := range trips {
		t := &trips[i]
		if _, dup := seen[t.ID]; dup {
			f.Errors = append(f.Errors, fmt.Sprintf("duplicate trip id: %s", t.ID))
		}
		seen[t.ID] = struct{}{}

		if t.CargoWeightKg <= 0 {
			f.Warnings = append(f.Warnings, fmt.Sprintf("trip %s has nonpositive cargo weight", t.ID))
		}
		if !t.PlannedArrival.After(t.DepartureTime) {
			f.Warnings = append(f.Warnings, fmt.Sprintf("trip %s has an inverted time window", t.ID))
		}
	}

	for i := range vehicles {
		v := &vehicles[i]
		if v.CapacityTons <= 0 {
			f.Warnings = append(f.Warnings, fmt.Sprintf("vehicle %s has no payload capacity", v.ID))
		}
	}

	return f
}
