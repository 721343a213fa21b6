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

// PostgresTripRepository implements TripRepository using PostgreSQL
type PostgresTripRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTripRepository creates a new PostgreSQL trip repository
func NewPostgresTripRepository(pool *pgxpool.Pool) *PostgresTripRepository {
	return &PostgresTripRepository{pool: pool}
}

const tripColumns = `
	id, company_id, departure_point, arrival_point,
	departure_lat, departure_lng, arrival_lat, arrival_lng,
	departure_time, planned_arrival_time,
	cargo_category, material_type, cargo_weight_kg, cargo_volume_m3,
	required_vehicle_category, route_distance_km, route_duration_min,
	return_distance_km, status,
	assigned_vehicle_id, sequence_order, is_last_in_chain,
	optimization_batch_id, optimization_status, estimated_arrival,
	created_at, updated_at`

// GetPlannedForDate returns the day's planned trips that still await
// optimization, ordered by departure time for deterministic input
func (r *PostgresTripRepository) GetPlannedForDate(ctx context.Context, filter TripFilter) ([]domain.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE departure_time >= $1
		  AND departure_time < $1 + INTERVAL '1 day'
		  AND status = $2
		  AND optimization_status = $3
		  AND assigned_vehicle_id IS NULL`
	args := []interface{}{
		filter.Date.Truncate(24 * time.Hour),
		domain.TripStatusPlanned,
		domain.OptimizationStatusPending,
	}

	if filter.CompanyID != nil {
		query += ` AND company_id = $4`
		args = append(args, *filter.CompanyID)
	}
	query += ` ORDER BY departure_time, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	defer rows.Close()

	return scanTrips(rows)
}

// ApplyAssignment writes one trip's optimization result
func (r *PostgresTripRepository) ApplyAssignment(ctx context.Context, a TripAssignment) error {
	query := `
		UPDATE trips SET
			optimization_batch_id = $2,
			assigned_vehicle_id = $3,
			sequence_order = $4,
			is_last_in_chain = $5,
			optimization_status = $6,
			estimated_arrival = $7,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		a.TripID,
		a.BatchID,
		a.AssignedVehicleID,
		a.SequenceOrder,
		a.IsLastInChain,
		domain.OptimizationStatusAssigned,
		a.EstimatedArrival,
	)
	if err != nil {
		return fmt.Errorf("failed to apply assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trip %s not found", a.TripID)
	}
	return nil
}

// GetByBatchID returns all trips assigned in a batch
func (r *PostgresTripRepository) GetByBatchID(ctx context.Context, batchID uuid.UUID) ([]domain.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE optimization_batch_id = $1
		ORDER BY assigned_vehicle_id, sequence_order`

	rows, err := r.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch trips: %w", err)
	}
	defer rows.Close()

	return scanTrips(rows)
}

func scanTrips(rows pgx.Rows) ([]domain.Trip, error) {
	var trips []domain.Trip
	for rows.Next() {
		var t domain.Trip
		err := rows.Scan(
			&t.ID, &t.CompanyID, &t.DeparturePoint, &t.ArrivalPoint,
			&t.DepartureLat, &t.DepartureLng, &t.ArrivalLat, &t.ArrivalLng,
			&t.DepartureTime, &t.PlannedArrival,
			&t.CargoCategory, &t.MaterialType, &t.CargoWeightKg, &t.CargoVolumeM3,
			&t.RequiredCategory, &t.RouteDistanceKm, &t.RouteDurationMin,
			&t.ReturnDistanceKm, &t.Status,
			&t.AssignedVehicleID, &t.SequenceOrder, &t.IsLastInChain,
			&t.OptimizationBatchID, &t.OptimizationStatus, &t.EstimatedArrival,
			&t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}
