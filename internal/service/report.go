package service

// BatchReport is the CLI/API-agnostic JSON summary of one optimization
// batch.
type BatchReport struct {
	BatchID                string                      `json:"batch_id"`
	Date                   string                      `json:"date"`
	Type                   string                      `json:"type"`
	TripsOptimized         int                         `json:"trips_optimized"`
	VehiclesUsed           int                         `json:"vehicles_used"`
	ParticipatingCompanies []string                    `json:"participating_companies"`
	Totals                 ReportTotals                `json:"totals"`
	Assignments            []ReportAssignment          `json:"assignments"`
	Unassigned             []ReportUnassigned          `json:"unassigned"`
	CompanyResults         map[string]CompanyKPI       `json:"company_results"`
	Valhalla               map[string]RoutingGroupInfo `json:"valhalla"`
	Diagnostics            []string                    `json:"diagnostics,omitempty"`
	Error                  string                      `json:"error,omitempty"`
}

// ReportTotals aggregates the batch-level savings
type ReportTotals struct {
	KmSaved     float64 `json:"km_saved"`
	FuelSavedL  float64 `json:"fuel_saved_L"`
	CO2SavedKg  float64 `json:"co2_saved_kg"`
	CostSaved   float64 `json:"cost_saved"`
}

// ReportAssignment is one trip placement in the day plan
type ReportAssignment struct {
	TripID            string `json:"trip_id"`
	AssignedVehicleID string `json:"assigned_vehicle_id"`
	OriginalCompanyID string `json:"original_company_id"`
	AssignedCompanyID string `json:"assigned_company_id"`
	SequenceOrder     int    `json:"sequence_order"`
	IsLastInChain     bool   `json:"is_last_in_chain"`
	StartTimeISO      string `json:"start_time_iso"`
}

// ReportUnassigned is one trip left out of the plan
type ReportUnassigned struct {
	TripID string `json:"trip_id"`
	Reason string `json:"reason"`
}

// CompanyKPI is the per-company savings attribution
type CompanyKPI struct {
	TripsContributed  int     `json:"trips_contributed"`
	TripsAssigned     int     `json:"trips_assigned"`
	VehiclesUsed      int     `json:"vehicles_used"`
	VehiclesBorrowed  int     `json:"vehicles_borrowed"`
	VehiclesSharedOut int     `json:"vehicles_shared_out"`
	KmSaved           float64 `json:"km_saved"`
	FuelSavedL        float64 `json:"fuel_saved_L"`
	CO2SavedKg        float64 `json:"co2_saved_kg"`
	CostSaved         float64 `json:"cost_saved"`
}

// RoutingGroupInfo reports the routing matrix health for one vehicle
// category group
type RoutingGroupInfo struct {
	MatrixOK     bool `json:"matrix_ok"`
	FallbackUsed bool `json:"fallback_used"`
	Locations    int  `json:"locations"`
	Fallback     bool `json:"fallback,omitempty"` // solver round-robin fallback
}
