package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Wbench12/logistic/internal/domain"
)

// PostgresVehicleRepository implements VehicleRepository using PostgreSQL
type PostgresVehicleRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresVehicleRepository creates a new PostgreSQL vehicle repository
func NewPostgresVehicleRepository(pool *pgxpool.Pool) *PostgresVehicleRepository {
	return &PostgresVehicleRepository{pool: pool}
}

// GetAvailable returns the available fleet, optionally for one company
func (r *PostgresVehicleRepository) GetAvailable(ctx context.Context, companyID *uuid.UUID) ([]domain.Vehicle, error) {
	query := `
		SELECT id, company_id, category, capacity_tons, capacity_m3,
		       depot_lat, depot_lng, cost_per_km, fuel_consumption_l_per_100km,
		       status, created_at, updated_at
		FROM vehicles
		WHERE status = $1`
	args := []interface{}{domain.VehicleStatusAvailable}

	if companyID != nil {
		query += ` AND company_id = $2`
		args = append(args, *companyID)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []domain.Vehicle
	for rows.Next() {
		var v domain.Vehicle
		err := rows.Scan(
			&v.ID, &v.CompanyID, &v.Category, &v.CapacityTons, &v.CapacityM3,
			&v.DepotLat, &v.DepotLng, &v.CostPerKm, &v.FuelLPer100Km,
			&v.Status, &v.CreatedAt, &v.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// PostgresCompanyRepository implements CompanyRepository using PostgreSQL
type PostgresCompanyRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCompanyRepository creates a new PostgreSQL company repository
func NewPostgresCompanyRepository(pool *pgxpool.Pool) *PostgresCompanyRepository {
	return &PostgresCompanyRepository{pool: pool}
}

// GetByID retrieves a company by ID
func (r *PostgresCompanyRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Company, error) {
	query := `
		SELECT id, name, depot_lat, depot_lng, created_at
		FROM companies
		WHERE id = $1`

	company := &domain.Company{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&company.ID, &company.Name, &company.DepotLat, &company.DepotLng, &company.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return company, nil
}

// GetByIDs resolves a set of companies in one round trip
func (r *PostgresCompanyRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Company, error) {
	result := make(map[uuid.UUID]*domain.Company, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT id, name, depot_lat, depot_lng, created_at
		FROM companies
		WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c := &domain.Company{}
		err := rows.Scan(&c.ID, &c.Name, &c.DepotLat, &c.DepotLng, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		result[c.ID] = c
	}
	return result, rows.Err()
}
