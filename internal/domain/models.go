package domain

import (
	"time"

	"github.com/google/uuid"
)

// LatLng is a WGS84 coordinate pair
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TripStatus represents the lifecycle status of a trip
type TripStatus string

const (
	TripStatusPlanned    TripStatus = "PLANNED"
	TripStatusInProgress TripStatus = "IN_PROGRESS"
	TripStatusCompleted  TripStatus = "COMPLETED"
	TripStatusCancelled  TripStatus = "CANCELLED"
)

// IsTerminal reports whether the trip can no longer be planned
func (s TripStatus) IsTerminal() bool {
	return s == TripStatusCompleted || s == TripStatusCancelled
}

// OptimizationStatus tracks a trip through a batch
type OptimizationStatus string

const (
	OptimizationStatusPending  OptimizationStatus = "pending"
	OptimizationStatusAssigned OptimizationStatus = "assigned"
	OptimizationStatusComplete OptimizationStatus = "completed"
)

// Trip represents one shipment to be driven on the batch date
type Trip struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	CompanyID        uuid.UUID  `json:"company_id" db:"company_id"`
	DeparturePoint   string     `json:"departure_point" db:"departure_point"`
	ArrivalPoint     string     `json:"arrival_point" db:"arrival_point"`
	DepartureLat     *float64   `json:"departure_lat,omitempty" db:"departure_lat"`
	DepartureLng     *float64   `json:"departure_lng,omitempty" db:"departure_lng"`
	ArrivalLat       *float64   `json:"arrival_lat,omitempty" db:"arrival_lat"`
	ArrivalLng       *float64   `json:"arrival_lng,omitempty" db:"arrival_lng"`
	DepartureTime    time.Time  `json:"departure_time" db:"departure_time"`
	PlannedArrival   time.Time  `json:"planned_arrival_time" db:"planned_arrival_time"`
	CargoCategory    CargoCategory `json:"cargo_category" db:"cargo_category"`
	MaterialType     string     `json:"material_type,omitempty" db:"material_type"`
	CargoWeightKg    float64    `json:"cargo_weight_kg" db:"cargo_weight_kg"`
	CargoVolumeM3    *float64   `json:"cargo_volume_m3,omitempty" db:"cargo_volume_m3"`
	RequiredCategory *VehicleCategory `json:"required_vehicle_category,omitempty" db:"required_vehicle_category"`
	RouteDistanceKm  *float64   `json:"route_distance_km,omitempty" db:"route_distance_km"`
	RouteDurationMin *float64   `json:"route_duration_min,omitempty" db:"route_duration_min"`
	ReturnDistanceKm *float64   `json:"return_distance_km,omitempty" db:"return_distance_km"`
	Status           TripStatus `json:"status" db:"status"`

	// Optimization fields, written by the plan applier
	AssignedVehicleID   *uuid.UUID         `json:"assigned_vehicle_id,omitempty" db:"assigned_vehicle_id"`
	SequenceOrder       *int               `json:"sequence_order,omitempty" db:"sequence_order"`
	IsLastInChain       bool               `json:"is_last_in_chain" db:"is_last_in_chain"`
	OptimizationBatchID *uuid.UUID         `json:"optimization_batch_id,omitempty" db:"optimization_batch_id"`
	OptimizationStatus  OptimizationStatus `json:"optimization_status" db:"optimization_status"`
	EstimatedArrival    *time.Time         `json:"estimated_arrival,omitempty" db:"estimated_arrival"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasCoordinates reports whether both endpoints carry geocoordinates
func (t *Trip) HasCoordinates() bool {
	return t.DepartureLat != nil && t.DepartureLng != nil &&
		t.ArrivalLat != nil && t.ArrivalLng != nil
}

// Origin returns the departure coordinate; valid only when HasCoordinates
func (t *Trip) Origin() LatLng {
	return LatLng{Lat: *t.DepartureLat, Lng: *t.DepartureLng}
}

// Destination returns the arrival coordinate; valid only when HasCoordinates
func (t *Trip) Destination() LatLng {
	return LatLng{Lat: *t.ArrivalLat, Lng: *t.ArrivalLng}
}

// RequiredVehicleCategory resolves the category carried on the trip, or
// derives it from the cargo category
func (t *Trip) RequiredVehicleCategory() VehicleCategory {
	if t.RequiredCategory != nil {
		return *t.RequiredCategory
	}
	return t.CargoCategory.RequiredVehicleCategory()
}

// VehicleStatus represents the operational status of a vehicle
type VehicleStatus string

const (
	VehicleStatusAvailable   VehicleStatus = "AVAILABLE"
	VehicleStatusInMission   VehicleStatus = "IN_MISSION"
	VehicleStatusMaintenance VehicleStatus = "MAINTENANCE"
	VehicleStatusInactive    VehicleStatus = "INACTIVE"
)

// Vehicle represents one truck in a participating fleet
type Vehicle struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	CompanyID        uuid.UUID       `json:"company_id" db:"company_id"`
	Category         VehicleCategory `json:"category" db:"category"`
	CapacityTons     float64         `json:"capacity_tons" db:"capacity_tons"`
	CapacityM3       *float64        `json:"capacity_m3,omitempty" db:"capacity_m3"`
	DepotLat         *float64        `json:"depot_lat,omitempty" db:"depot_lat"`
	DepotLng         *float64        `json:"depot_lng,omitempty" db:"depot_lng"`
	CostPerKm        float64         `json:"cost_per_km" db:"cost_per_km"`
	FuelLPer100Km    float64         `json:"fuel_consumption_l_per_100km" db:"fuel_consumption_l_per_100km"`
	Status           VehicleStatus   `json:"status" db:"status"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// CapacityKg returns the payload capacity in kilograms
func (v *Vehicle) CapacityKg() float64 {
	return v.CapacityTons * 1000.0
}

// Depot resolves the vehicle depot, falling back to the company depot
func (v *Vehicle) Depot(company *Company) (LatLng, bool) {
	if v.DepotLat != nil && v.DepotLng != nil {
		return LatLng{Lat: *v.DepotLat, Lng: *v.DepotLng}, true
	}
	if company != nil && company.DepotLat != nil && company.DepotLng != nil {
		return LatLng{Lat: *company.DepotLat, Lng: *company.DepotLng}, true
	}
	return LatLng{}, false
}

// Company represents a participating carrier
type Company struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Name     string    `json:"name" db:"name"`
	DepotLat *float64  `json:"depot_lat,omitempty" db:"depot_lat"`
	DepotLng *float64  `json:"depot_lng,omitempty" db:"depot_lng"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// BatchStatus represents the lifecycle status of an optimization batch
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "PENDING"
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusCompleted  BatchStatus = "COMPLETED"
	BatchStatusFailed     BatchStatus = "FAILED"
)

// IsTerminal reports whether the batch can transition no further
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// BatchType distinguishes the two optimizer modes
type BatchType string

const (
	BatchTypeCrossCompany  BatchType = "cross_company"
	BatchTypeSingleCompany BatchType = "single_company"
)

// OptimizationBatch is one nightly optimization run for a calendar day
type OptimizationBatch struct {
	ID                     uuid.UUID   `json:"id" db:"id"`
	BatchDate              time.Time   `json:"batch_date" db:"batch_date"`
	Type                   BatchType   `json:"type" db:"optimization_type"`
	Status                 BatchStatus `json:"status" db:"status"`
	TotalTrips             int         `json:"total_trips" db:"total_trips"`
	VehiclesUsed           int         `json:"vehicles_used" db:"vehicles_used"`
	KmSaved                float64     `json:"km_saved" db:"km_saved"`
	FuelSavedLiters        float64     `json:"fuel_saved_liters" db:"fuel_saved_liters"`
	ParticipatingCompanies []uuid.UUID `json:"participating_companies" db:"participating_companies"`
	ErrorMessage           string      `json:"error_message,omitempty" db:"error_message"`
	SolverTimeS            float64     `json:"solver_time_s" db:"solver_time_s"`
	CreatedAt              time.Time   `json:"created_at" db:"created_at"`
	CompletedAt            *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}

// CompanyOptimizationResult is the per-company savings record of a batch
type CompanyOptimizationResult struct {
	ID                  uuid.UUID `json:"id" db:"id"`
	OptimizationBatchID uuid.UUID `json:"optimization_batch_id" db:"optimization_batch_id"`
	CompanyID           uuid.UUID `json:"company_id" db:"company_id"`
	TripsContributed    int       `json:"trips_contributed" db:"trips_contributed"`
	TripsAssigned       int       `json:"trips_assigned" db:"trips_assigned"`
	VehiclesUsed        int       `json:"vehicles_used" db:"vehicles_used"`
	VehiclesBorrowed    int       `json:"vehicles_borrowed" db:"vehicles_borrowed"`
	VehiclesSharedOut   int       `json:"vehicles_shared_out" db:"vehicles_shared_out"`
	KmSaved             float64   `json:"km_saved" db:"km_saved"`
	FuelSavedLiters     float64   `json:"fuel_saved_liters" db:"fuel_saved_liters"`
	CO2SavedKg          float64   `json:"co2_saved_kg" db:"co2_saved_kg"`
	CostSaved           float64   `json:"cost_saved" db:"cost_saved"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}
