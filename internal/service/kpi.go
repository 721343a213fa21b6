package service

import (
	"sort"

	"github.com/google/uuid"

	"github.com/Wbench12/logistic/pkg/config"
)

// TripMetrics carries the distances of one contributed trip after
// backfilling from the routing matrix
type TripMetrics struct {
	TripID    string
	CompanyID uuid.UUID
	RouteKm   float64
	ReturnKm  float64
}

// AssignmentInfo is the solved placement of one trip as the attributor
// sees it
type AssignmentInfo struct {
	VehicleID        string
	VehicleCompanyID uuid.UUID
	IsLast           bool
}

// KPIAttributor maps a solved plan to per-company savings against the
// serve-your-own baseline
type KPIAttributor struct {
	fuelPerKmL    float64
	co2PerLiterKg float64
	pricePerLiter float64
}

// NewKPIAttributor creates an attributor with the configured emission and
// cost factors
func NewKPIAttributor(cfg config.EmissionsConfig) *KPIAttributor {
	return &KPIAttributor{
		fuelPerKmL:    cfg.FuelPerKmL,
		co2PerLiterKg: cfg.CO2PerLiterKg,
		pricePerLiter: cfg.PricePerLiter,
	}
}

// Attribute computes the per-company KPIs. The baseline assumes every
// company serves its own trips and returns to depot after each one; the
// optimized plan pays a return only on last-in-chain trips served by the
// company's own fleet. Savings are clipped at zero.
func (k *KPIAttributor) Attribute(trips []TripMetrics, assigned map[string]AssignmentInfo) map[uuid.UUID]CompanyKPI {
	type companyAcc struct {
		contributed int
		assigned    int
		baseline    float64
		optimized   float64
		borrowed    int
		vehicles    map[string]struct{}
	}

	acc := make(map[uuid.UUID]*companyAcc)
	get := func(id uuid.UUID) *companyAcc {
		a, ok := acc[id]
		if !ok {
			a = &companyAcc{vehicles: make(map[string]struct{})}
			acc[id] = a
		}
		return a
	}

	sharedOut := make(map[uuid.UUID]int)

	for _, t := range trips {
		a := get(t.CompanyID)
		a.contributed++
		a.baseline += t.RouteKm + t.ReturnKm
		a.optimized += t.RouteKm

		info, ok := assigned[t.TripID]
		if !ok {
			continue
		}
		a.assigned++
		a.vehicles[info.VehicleID] = struct{}{}

		if info.VehicleCompanyID == t.CompanyID {
			if info.IsLast {
				a.optimized += t.ReturnKm
			}
		} else {
			a.borrowed++
			sharedOut[info.VehicleCompanyID]++
		}
	}

	result := make(map[uuid.UUID]CompanyKPI, len(acc))
	for id, a := range acc {
		kmSaved := a.baseline - a.optimized
		if kmSaved < 0 {
			kmSaved = 0
		}
		fuelSaved := kmSaved * k.fuelPerKmL
		result[id] = CompanyKPI{
			TripsContributed:  a.contributed,
			TripsAssigned:     a.assigned,
			VehiclesUsed:      len(a.vehicles),
			VehiclesBorrowed:  a.borrowed,
			VehiclesSharedOut: sharedOut[id],
			KmSaved:           kmSaved,
			FuelSavedL:        fuelSaved,
			CO2SavedKg:        fuelSaved * k.co2PerLiterKg,
			CostSaved:         fuelSaved * k.pricePerLiter,
		}
	}

	// Companies that only lent vehicles still appear in the results
	for id, count := range sharedOut {
		if _, ok := result[id]; !ok {
			result[id] = CompanyKPI{VehiclesSharedOut: count}
		}
	}

	return result
}

// Totals sums the per-company KPIs into the batch totals. Companies are
// visited in ID order so reruns produce identical floating-point sums.
func Totals(kpis map[uuid.UUID]CompanyKPI) ReportTotals {
	ids := make([]uuid.UUID, 0, len(kpis))
	for id := range kpis {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a].String() < ids[b].String() })

	var t ReportTotals
	for _, id := range ids {
		k := kpis[id]
		t.KmSaved += k.KmSaved
		t.FuelSavedL += k.FuelSavedL
		t.CO2SavedKg += k.CO2SavedKg
		t.CostSaved += k.CostSaved
	}
	return t
}
