package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Wbench12/logistic/internal/domain"
)

// TripFilter selects the day's optimizable trips
type TripFilter struct {
	Date      time.Time  // calendar day, batch granularity
	CompanyID *uuid.UUID // nil means all participating companies
}

// TripAssignment is the write applied to one trip at plan application
type TripAssignment struct {
	TripID              uuid.UUID
	BatchID             uuid.UUID
	AssignedVehicleID   uuid.UUID
	SequenceOrder       int
	IsLastInChain       bool
	EstimatedArrival    time.Time
}

// TripRepository reads the day's trips and persists plan assignments
type TripRepository interface {
	GetPlannedForDate(ctx context.Context, filter TripFilter) ([]domain.Trip, error)
	ApplyAssignment(ctx context.Context, a TripAssignment) error
	GetByBatchID(ctx context.Context, batchID uuid.UUID) ([]domain.Trip, error)
}

// VehicleRepository reads the available fleet
type VehicleRepository interface {
	GetAvailable(ctx context.Context, companyID *uuid.UUID) ([]domain.Vehicle, error)
}

// CompanyRepository resolves participating carriers
type CompanyRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Company, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Company, error)
}

// BatchRepository persists optimization batch rows
type BatchRepository interface {
	Create(ctx context.Context, batch *domain.OptimizationBatch) error
	Update(ctx context.Context, batch *domain.OptimizationBatch) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OptimizationBatch, error)
}

// ResultRepository persists per-company batch results
type ResultRepository interface {
	Create(ctx context.Context, result *domain.CompanyOptimizationResult) error
}

// Store bundles the entity access the batch runner needs
type Store struct {
	Trips     TripRepository
	Vehicles  VehicleRepository
	Companies CompanyRepository
	Batches   BatchRepository
	Results   ResultRepository
}
