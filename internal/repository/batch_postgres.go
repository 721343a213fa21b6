package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Wbench12/logistic/internal/domain"
)

// PostgresBatchRepository implements BatchRepository using PostgreSQL
type PostgresBatchRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBatchRepository creates a new PostgreSQL batch repository
func NewPostgresBatchRepository(pool *pgxpool.Pool) *PostgresBatchRepository {
	return &PostgresBatchRepository{pool: pool}
}

// Create inserts a new optimization batch row
func (r *PostgresBatchRepository) Create(ctx context.Context, batch *domain.OptimizationBatch) error {
	query := `
		INSERT INTO optimization_batches (
			id, batch_date, optimization_type, status,
			total_trips, vehicles_used, km_saved, fuel_saved_liters,
			participating_companies, error_message, solver_time_s,
			created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query,
		batch.ID,
		batch.BatchDate,
		batch.Type,
		batch.Status,
		batch.TotalTrips,
		batch.VehiclesUsed,
		batch.KmSaved,
		batch.FuelSavedLiters,
		batch.ParticipatingCompanies,
		batch.ErrorMessage,
		batch.SolverTimeS,
		batch.CreatedAt,
		batch.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// Update persists batch totals and status. Terminal batches never leave
// their state.
func (r *PostgresBatchRepository) Update(ctx context.Context, batch *domain.OptimizationBatch) error {
	query := `
		UPDATE optimization_batches SET
			status = $2,
			total_trips = $3,
			vehicles_used = $4,
			km_saved = $5,
			fuel_saved_liters = $6,
			participating_companies = $7,
			error_message = $8,
			solver_time_s = $9,
			completed_at = $10
		WHERE id = $1
		  AND status NOT IN ('COMPLETED', 'FAILED')`

	tag, err := r.pool.Exec(ctx, query,
		batch.ID,
		batch.Status,
		batch.TotalTrips,
		batch.VehiclesUsed,
		batch.KmSaved,
		batch.FuelSavedLiters,
		batch.ParticipatingCompanies,
		batch.ErrorMessage,
		batch.SolverTimeS,
		batch.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s not found or already terminal", batch.ID)
	}
	return nil
}

// GetByID retrieves a batch by ID
func (r *PostgresBatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OptimizationBatch, error) {
	query := `
		SELECT id, batch_date, optimization_type, status,
		       total_trips, vehicles_used, km_saved, fuel_saved_liters,
		       participating_companies, error_message, solver_time_s,
		       created_at, completed_at
		FROM optimization_batches
		WHERE id = $1`

	batch := &domain.OptimizationBatch{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&batch.ID, &batch.BatchDate, &batch.Type, &batch.Status,
		&batch.TotalTrips, &batch.VehiclesUsed, &batch.KmSaved, &batch.FuelSavedLiters,
		&batch.ParticipatingCompanies, &batch.ErrorMessage, &batch.SolverTimeS,
		&batch.CreatedAt, &batch.CompletedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return batch, nil
}

// PostgresResultRepository implements ResultRepository using PostgreSQL
type PostgresResultRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresResultRepository creates a new PostgreSQL result repository
func NewPostgresResultRepository(pool *pgxpool.Pool) *PostgresResultRepository {
	return &PostgresResultRepository{pool: pool}
}

// Create inserts one per-company batch result
func (r *PostgresResultRepository) Create(ctx context.Context, result *domain.CompanyOptimizationResult) error {
	query := `
		INSERT INTO company_optimization_results (
			id, optimization_batch_id, company_id,
			trips_contributed, trips_assigned,
			vehicles_used, vehicles_borrowed, vehicles_shared_out,
			km_saved, fuel_saved_liters, co2_saved_kg, cost_saved,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query,
		result.ID,
		result.OptimizationBatchID,
		result.CompanyID,
		result.TripsContributed,
		result.TripsAssigned,
		result.VehiclesUsed,
		result.VehiclesBorrowed,
		result.VehiclesSharedOut,
		result.KmSaved,
		result.FuelSavedLiters,
		result.CO2SavedKg,
		result.CostSaved,
		result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create company result: %w", err)
	}
	return nil
}
