package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wbench12/logistic/internal/domain"
	"github.com/Wbench12/logistic/internal/repository"
	"github.com/Wbench12/logistic/internal/routing"
	"github.com/Wbench12/logistic/pkg/config"
	"github.com/Wbench12/logistic/pkg/kafka"
	"github.com/Wbench12/logistic/pkg/logger"
)

// =============================================================================
// MOCK REPOSITORIES
// =============================================================================

type mockTripRepo struct {
	trips      map[uuid.UUID]*domain.Trip
	applyCalls int
	applyErr   error
}

func newMockTripRepo(trips ...*domain.Trip) *mockTripRepo {
	m := &mockTripRepo{trips: make(map[uuid.UUID]*domain.Trip)}
	for _, t := range trips {
		m.trips[t.ID] = t
	}
	return m
}

func (m *mockTripRepo) GetPlannedForDate(ctx context.Context, filter repository.TripFilter) ([]domain.Trip, error) {
	var out []domain.Trip
	for _, t := range m.trips {
		if t.Status != domain.TripStatusPlanned || t.OptimizationStatus != domain.OptimizationStatusPending {
			continue
		}
		if t.AssignedVehicleID != nil {
			continue
		}
		if filter.CompanyID != nil && t.CompanyID != *filter.CompanyID {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].DepartureTime.Equal(out[b].DepartureTime) {
			return out[a].DepartureTime.Before(out[b].DepartureTime)
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	return out, nil
}

func (m *mockTripRepo) ApplyAssignment(ctx context.Context, a repository.TripAssignment) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	t, ok := m.trips[a.TripID]
	if !ok {
		return errors.New("trip not found")
	}
	m.applyCalls++
	t.OptimizationBatchID = &a.BatchID
	t.AssignedVehicleID = &a.AssignedVehicleID
	seq := a.SequenceOrder
	t.SequenceOrder = &seq
	t.IsLastInChain = a.IsLastInChain
	t.OptimizationStatus = domain.OptimizationStatusAssigned
	arrival := a.EstimatedArrival
	t.EstimatedArrival = &arrival
	return nil
}

func (m *mockTripRepo) GetByBatchID(ctx context.Context, batchID uuid.UUID) ([]domain.Trip, error) {
	var out []domain.Trip
	for _, t := range m.trips {
		if t.OptimizationBatchID != nil && *t.OptimizationBatchID == batchID {
			out = append(out, *t)
		}
	}
	return out, nil
}

type mockVehicleRepo struct {
	vehicles []domain.Vehicle
}

func (m *mockVehicleRepo) GetAvailable(ctx context.Context, companyID *uuid.UUID) ([]domain.Vehicle, error) {
	var out []domain.Vehicle
	for _, v := range m.vehicles {
		if v.Status != domain.VehicleStatusAvailable {
			continue
		}
		if companyID != nil && v.CompanyID != *companyID {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID.String() < out[b].ID.String() })
	return out, nil
}

type mockCompanyRepo struct {
	companies map[uuid.UUID]*domain.Company
}

func (m *mockCompanyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Company, error) {
	return m.companies[id], nil
}

func (m *mockCompanyRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Company, error) {
	out := make(map[uuid.UUID]*domain.Company)
	for _, id := range ids {
		if c, ok := m.companies[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

type mockBatchRepo struct {
	batches  map[uuid.UUID]*domain.OptimizationBatch
	statuses []domain.BatchStatus
}

func newMockBatchRepo() *mockBatchRepo {
	return &mockBatchRepo{batches: make(map[uuid.UUID]*domain.OptimizationBatch)}
}

func (m *mockBatchRepo) Create(ctx context.Context, batch *domain.OptimizationBatch) error {
	copied := *batch
	m.batches[batch.ID] = &copied
	m.statuses = append(m.statuses, batch.Status)
	return nil
}

func (m *mockBatchRepo) Update(ctx context.Context, batch *domain.OptimizationBatch) error {
	existing, ok := m.batches[batch.ID]
	if !ok {
		return errors.New("batch not found")
	}
	if existing.Status.IsTerminal() {
		return errors.New("batch already terminal")
	}
	copied := *batch
	m.batches[batch.ID] = &copied
	m.statuses = append(m.statuses, batch.Status)
	return nil
}

func (m *mockBatchRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.OptimizationBatch, error) {
	return m.batches[id], nil
}

type mockResultRepo struct {
	results []*domain.CompanyOptimizationResult
}

func (m *mockResultRepo) Create(ctx context.Context, result *domain.CompanyOptimizationResult) error {
	m.results = append(m.results, result)
	return nil
}

// stubRouting answers every request from the deterministic great-circle
// fallback, optionally pretending the engine is healthy
type stubRouting struct {
	engineOK bool
}

func (s stubRouting) Route(ctx context.Context, from, to domain.LatLng, departAt *time.Time) (routing.RouteResult, error) {
	km := routing.HaversineKm(from, to)
	return routing.RouteResult{
		DistanceKm:   km,
		DurationMin:  routing.FallbackDurationMin(km),
		OK:           s.engineOK,
		FallbackUsed: !s.engineOK,
	}, nil
}

func (s stubRouting) Matrix(ctx context.Context, points []domain.LatLng) (routing.MatrixResult, error) {
	m := routing.FallbackMatrix(points)
	if s.engineOK {
		m.OK = true
		m.FallbackUsed = false
	}
	return m, nil
}

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time { return c.at }

// =============================================================================
// FIXTURES
// =============================================================================

var (
	testDay = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tripOrigA = domain.LatLng{Lat: 36.7531, Lng: 2.9958}
	tripDestA = domain.LatLng{Lat: 36.7606, Lng: 3.0586}
	tripDestB = domain.LatLng{Lat: 36.7890, Lng: 3.0412}
)

func f64(v float64) *float64 { return &v }

func plannedTrip(companyID uuid.UUID, orig, dest domain.LatLng, depart, arrive time.Time) *domain.Trip {
	return &domain.Trip{
		ID:               uuid.New(),
		CompanyID:        companyID,
		DepartureLat:     f64(orig.Lat),
		DepartureLng:     f64(orig.Lng),
		ArrivalLat:       f64(dest.Lat),
		ArrivalLng:       f64(dest.Lng),
		DepartureTime:    depart,
		PlannedArrival:   arrive,
		CargoCategory:    domain.CargoFreshProduce,
		CargoWeightKg:    1000,
		RouteDurationMin: f64(30),
		Status:           domain.TripStatusPlanned,
		OptimizationStatus: domain.OptimizationStatusPending,
	}
}

func availableVehicle(companyID uuid.UUID, category domain.VehicleCategory, depot domain.LatLng) domain.Vehicle {
	return domain.Vehicle{
		ID:            uuid.New(),
		CompanyID:     companyID,
		Category:      category,
		CapacityTons:  6,
		DepotLat:      f64(depot.Lat),
		DepotLng:      f64(depot.Lng),
		FuelLPer100Km: 30,
		Status:        domain.VehicleStatusAvailable,
	}
}

func testCompany(depot domain.LatLng) *domain.Company {
	return &domain.Company{
		ID:       uuid.New(),
		Name:     "test carrier",
		DepotLat: f64(depot.Lat),
		DepotLng: f64(depot.Lng),
	}
}

type testEnv struct {
	trips    *mockTripRepo
	vehicles *mockVehicleRepo
	batches  *mockBatchRepo
	results  *mockResultRepo
	service  *OptimizationService
}

func newTestEnv(t *testing.T, tripRepo *mockTripRepo, vehicleRepo *mockVehicleRepo, companies map[uuid.UUID]*domain.Company, engineOK bool) *testEnv {
	t.Helper()

	batches := newMockBatchRepo()
	results := &mockResultRepo{}
	store := repository.Store{
		Trips:     tripRepo,
		Vehicles:  vehicleRepo,
		Companies: &mockCompanyRepo{companies: companies},
		Batches:   batches,
		Results:   results,
	}

	cfg := config.Load()
	cfg.Optimizer.SolverBudget = 5 * time.Second
	cfg.Optimizer.SingleGroupBudget = 2 * time.Second

	var producer *kafka.Producer // nil producer publishes nothing
	svc := NewOptimizationService(store, stubRouting{engineOK: engineOK}, producer, cfg,
		fixedClock{at: testDay.Add(22 * time.Hour)}, logger.Nop())

	return &testEnv{
		trips:    tripRepo,
		vehicles: vehicleRepo,
		batches:  batches,
		results:  results,
		service:  svc,
	}
}

// =============================================================================
// BATCH RUNNER TESTS
// =============================================================================

func TestRunBatchChainsTwoTrips(t *testing.T) {
	company := testCompany(tripOrigA)
	tripA := plannedTrip(company.ID, tripOrigA, tripDestA,
		testDay.Add(8*time.Hour), testDay.Add(10*time.Hour))
	tripB := plannedTrip(company.ID, tripDestA, tripDestB,
		testDay.Add(10*time.Hour+30*time.Minute), testDay.Add(12*time.Hour+30*time.Minute))
	vehicle := availableVehicle(company.ID, domain.VehicleRefrigerated, tripOrigA)

	env := newTestEnv(t, newMockTripRepo(tripA, tripB), &mockVehicleRepo{vehicles: []domain.Vehicle{vehicle}},
		map[uuid.UUID]*domain.Company{company.ID: company}, false)

	report, err := env.service.RunBatch(context.Background(), testDay, nil, domain.BatchTypeCrossCompany)
	require.NoError(t, err)
	require.Empty(t, report.Error)

	assert.Equal(t, 2, report.TripsOptimized)
	assert.Equal(t, 1, report.VehiclesUsed)
	assert.Empty(t, report.Unassigned)
	require.Len(t, report.Assignments, 2)

	first, second := report.Assignments[0], report.Assignments[1]
	assert.Equal(t, vehicle.ID.String(), first.AssignedVehicleID)
	assert.Equal(t, vehicle.ID.String(), second.AssignedVehicleID)
	assert.Equal(t, 1, first.SequenceOrder)
	assert.Equal(t, 2, second.SequenceOrder)
	assert.False(t, first.IsLastInChain)
	assert.True(t, second.IsLastInChain)
	assert.Equal(t, tripB.ID.String(), second.TripID)

	// The chain start honors the 10:30 window
	assert.Equal(t, testDay.Add(10*time.Hour+30*time.Minute).Format(time.RFC3339), second.StartTimeISO)

	// Routing outage surfaces in the report per category
	info, ok := report.Valhalla[string(domain.VehicleRefrigerated)]
	require.True(t, ok)
	assert.False(t, info.MatrixOK)
	assert.True(t, info.FallbackUsed)

	// The batch row is terminal COMPLETED with monotone transitions
	batch := env.batches.batches[mustParse(t, report.BatchID)]
	require.NotNil(t, batch)
	assert.Equal(t, domain.BatchStatusCompleted, batch.Status)
	assert.Equal(t, []domain.BatchStatus{domain.BatchStatusProcessing, domain.BatchStatusCompleted}, env.batches.statuses)
	assert.Equal(t, 2, batch.TotalTrips)
	require.NotNil(t, batch.CompletedAt)

	// Trip rows carry the plan
	assert.Equal(t, domain.OptimizationStatusAssigned, env.trips.trips[tripB.ID].OptimizationStatus)
	assert.True(t, env.trips.trips[tripB.ID].IsLastInChain)
}

func TestRunBatchCrossCompanyBenefit(t *testing.T) {
	origX := domain.LatLng{Lat: 36.70, Lng: 3.00}
	destX := domain.LatLng{Lat: 36.90, Lng: 3.20}
	origY := domain.LatLng{Lat: 36.901, Lng: 3.201}
	destY := domain.LatLng{Lat: 36.95, Lng: 3.25}
	farDepot := domain.LatLng{Lat: 37.20, Lng: 3.60}

	company1 := testCompany(origX)
	company2 := testCompany(farDepot)

	tripX := plannedTrip(company1.ID, origX, destX,
		testDay.Add(8*time.Hour), testDay.Add(10*time.Hour))
	tripY := plannedTrip(company2.ID, origY, destY,
		testDay.Add(9*time.Hour+30*time.Minute), testDay.Add(11*time.Hour+40*time.Minute))

	vehicle1 := availableVehicle(company1.ID, domain.VehicleRefrigerated, origX)
	vehicle2 := availableVehicle(company2.ID, domain.VehicleRefrigerated, farDepot)

	env := newTestEnv(t, newMockTripRepo(tripX, tripY),
		&mockVehicleRepo{vehicles: []domain.Vehicle{vehicle1, vehicle2}},
		map[uuid.UUID]*domain.Company{company1.ID: company1, company2.ID: company2}, false)

	report, err := env.service.RunBatch(context.Background(), testDay, nil, domain.BatchTypeCrossCompany)
	require.NoError(t, err)
	require.Empty(t, report.Error)
	require.Len(t, report.Assignments, 2)

	byTrip := make(map[string]ReportAssignment)
	for _, a := range report.Assignments {
		byTrip[a.TripID] = a
	}

	x := byTrip[tripX.ID.String()]
	y := byTrip[tripY.ID.String()]
	assert.Equal(t, vehicle1.ID.String(), x.AssignedVehicleID)
	assert.Equal(t, vehicle1.ID.String(), y.AssignedVehicleID)
	assert.False(t, x.IsLastInChain)
	assert.True(t, y.IsLastInChain)
	assert.Equal(t, company2.ID.String(), y.OriginalCompanyID)
	assert.Equal(t, company1.ID.String(), y.AssignedCompanyID)

	k2 := report.CompanyResults[company2.ID.String()]
	assert.Equal(t, 1, k2.VehiclesBorrowed)
	assert.Greater(t, k2.KmSaved, 0.0)

	k1 := report.CompanyResults[company1.ID.String()]
	assert.Equal(t, 1, k1.VehiclesSharedOut)

	assert.Len(t, env.results.results, 2)
}

func TestRunBatchNoCompatibleVehicleCategory(t *testing.T) {
	company := testCompany(tripOrigA)
	trip := plannedTrip(company.ID, tripOrigA, tripDestA,
		testDay.Add(8*time.Hour), testDay.Add(10*time.Hour))
	trip.CargoCategory = domain.CargoFrozenProduce // needs AG2
	vehicle := availableVehicle(company.ID, domain.VehicleRefrigerated, tripOrigA)

	env := newTestEnv(t, newMockTripRepo(trip), &mockVehicleRepo{vehicles: []domain.Vehicle{vehicle}},
		map[uuid.UUID]*domain.Company{company.ID: company}, false)

	report, err := env.service.RunBatch(context.Background(), testDay, nil, domain.BatchTypeCrossCompany)
	require.NoError(t, err)
	require.Empty(t, report.Error)

	assert.Zero(t, report.TripsOptimized)
	require.Len(t, report.Unassigned, 1)
	assert.Equal(t, trip.ID.String(), report.Unassigned[0].TripID)
	assert.Equal(t, "no_vehicles_for_category:AG2", report.Unassigned[0].Reason)

	batch := env.batches.batches[mustParse(t, report.BatchID)]
	assert.Equal(t, domain.BatchStatusCompleted, batch.Status)
}

func TestRunBatchMissingCoordinates(t *testing.T) {
	company := testCompany(tripOrigA)
	trip := plannedTrip(company.ID, tripOrigA, tripDestA,
		testDay.Add(8*time.Hour), testDay.Add(10*time.Hour))
	trip.ArrivalLat = nil
	trip.ArrivalLng = nil
	vehicle := availableVehicle(company.ID, domain.VehicleRefrigerated, tripOrigA)

	env := newTestEnv(t, newMockTripRepo(trip), &mockVehicleRepo{vehicles: []domain.Vehicle{vehicle}},
		map[uuid.UUID]*domain.Company{company.ID: company}, false)

	report, err := env.service.RunBatch(context.Background(), testDay, nil, domain.BatchTypeCrossCompany)
	require.NoError(t, err)

	require.Len(t, report.Unassigned, 1)
	assert.Equal(t, "missing_coordinates", report.Unassigned[0].Reason)
}

func TestRunBatchEmptyDayCompletes(t *testing.T) {
	company := testCompany(tripOrigA)
	env := newTestEnv(t, newMockTripRepo(), &mockVehicleRepo{},
		map[uuid.UUID]*domain.Company{company.ID: company}, false)

	report, err := env.service.RunBatch(context.Background(), testDay, nil, domain.BatchTypeCrossCompany)
	require.NoError(t, err)
	require.Empty(t, report.Error)

	assert.Zero(t, report.TripsOptimized)
	batch := env.batches.batches[mustParse(t, report.BatchID)]
	assert.Equal(t, domain.BatchStatusCompleted, batch.Status)
}

func TestRunBatchPersistenceFailureMarksFailed(t *testing.T) {
	company := testCompany(tripOrigA)
	trip := plannedTrip(company.ID, tripOrigA, tripDestA,
		testDay.Add(8*time.Hour), testDay.Add(10*time.Hour))
	vehicle := availableVehicle(company.ID, domain.VehicleRefrigerated, tripOrigA)

	tripRepo := newMockTripRepo(trip)
	tripRepo.applyErr = errors.New("write refused")

	env := newTestEnv(t, tripRepo, &mockVehicleRepo{vehicles: []domain.Vehicle{vehicle}},
		map[uuid.UUID]*domain.Company{company.ID: company}, false)

	report, err := env.service.RunBatch(context.Background(), testDay, nil, domain.BatchTypeCrossCompany)
	require.NoError(t, err)

	assert.NotEmpty(t, report.Error)
	batch := env.batches.batches[mustParse(t, report.BatchID)]
	assert.Equal(t, domain.BatchStatusFailed, batch.Status)
	assert.Contains(t, batch.ErrorMessage, "apply plan")
}

func TestRunBatchCancellation(t *testing.T) {
	company := testCompany(tripOrigA)
	trip := plannedTrip(company.ID, tripOrigA, tripDestA,
		testDay.Add(8*time.Hour), testDay.Add(10*time.Hour))
	vehicle := availableVehicle(company.ID, domain.VehicleRefrigerated, tripOrigA)

	env := newTestEnv(t, newMockTripRepo(trip), &mockVehicleRepo{vehicles: []domain.Vehicle{vehicle}},
		map[uuid.UUID]*domain.Company{company.ID: company}, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := env.service.RunBatch(ctx, testDay, nil, domain.BatchTypeCrossCompany)
	require.NoError(t, err)

	assert.NotEmpty(t, report.Error)
	batch := env.batches.batches[mustParse(t, report.BatchID)]
	assert.Equal(t, domain.BatchStatusFailed, batch.Status)
}

func TestRunBatchSingleCompanyRequiresCompany(t *testing.T) {
	company := testCompany(tripOrigA)
	env := newTestEnv(t, newMockTripRepo(), &mockVehicleRepo{},
		map[uuid.UUID]*domain.Company{company.ID: company}, false)

	report, err := env.service.RunBatch(context.Background(), testDay, nil, domain.BatchTypeSingleCompany)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Error)
}

func TestRunBatchSingleCompanyMode(t *testing.T) {
	company := testCompany(tripOrigA)
	tripA := plannedTrip(company.ID, tripOrigA, tripDestA,
		testDay.Add(8*time.Hour), testDay.Add(10*time.Hour))
	tripB := plannedTrip(company.ID, tripDestA, tripDestB,
		testDay.Add(10*time.Hour+30*time.Minute), testDay.Add(12*time.Hour+30*time.Minute))
	vehicle := availableVehicle(company.ID, domain.VehicleRefrigerated, tripOrigA)

	env := newTestEnv(t, newMockTripRepo(tripA, tripB), &mockVehicleRepo{vehicles: []domain.Vehicle{vehicle}},
		map[uuid.UUID]*domain.Company{company.ID: company}, true)

	report, err := env.service.RunBatch(context.Background(), testDay, &company.ID, domain.BatchTypeSingleCompany)
	require.NoError(t, err)
	require.Empty(t, report.Error)

	assert.Equal(t, 2, report.TripsOptimized)
	assert.Equal(t, 1, report.VehiclesUsed)

	info := report.Valhalla[string(domain.VehicleRefrigerated)]
	assert.True(t, info.MatrixOK)
	assert.False(t, info.FallbackUsed)
}

func TestRunBatchDeterministicPlan(t *testing.T) {
	company1 := testCompany(tripOrigA)
	company2 := testCompany(tripDestB)

	build := func() *testEnv {
		tripA := plannedTrip(company1.ID, tripOrigA, tripDestA,
			testDay.Add(8*time.Hour), testDay.Add(10*time.Hour))
		tripA.ID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
		tripB := plannedTrip(company2.ID, tripDestA, tripDestB,
			testDay.Add(10*time.Hour+30*time.Minute), testDay.Add(12*time.Hour+30*time.Minute))
		tripB.ID = uuid.MustParse("22222222-2222-2222-2222-222222222222")

		vehicle1 := availableVehicle(company1.ID, domain.VehicleRefrigerated, tripOrigA)
		vehicle1.ID = uuid.MustParse("33333333-3333-3333-3333-333333333333")
		vehicle2 := availableVehicle(company2.ID, domain.VehicleRefrigerated, tripDestB)
		vehicle2.ID = uuid.MustParse("44444444-4444-4444-4444-444444444444")

		return newTestEnv(t, newMockTripRepo(tripA, tripB),
			&mockVehicleRepo{vehicles: []domain.Vehicle{vehicle1, vehicle2}},
			map[uuid.UUID]*domain.Company{company1.ID: company1, company2.ID: company2}, false)
	}

	run := func(env *testEnv) ([]byte, []byte) {
		report, err := env.service.RunBatch(context.Background(), testDay, nil, domain.BatchTypeCrossCompany)
		require.NoError(t, err)
		require.Empty(t, report.Error)

		assignments, err := json.Marshal(report.Assignments)
		require.NoError(t, err)
		totals, err := json.Marshal(report.Totals)
		require.NoError(t, err)
		return assignments, totals
	}

	firstAssignments, firstTotals := run(build())
	secondAssignments, secondTotals := run(build())

	assert.Equal(t, string(firstAssignments), string(secondAssignments))
	assert.Equal(t, string(firstTotals), string(secondTotals))
}

func TestRunBatchSecondRunFindsNothingPending(t *testing.T) {
	company := testCompany(tripOrigA)
	trip := plannedTrip(company.ID, tripOrigA, tripDestA,
		testDay.Add(8*time.Hour), testDay.Add(10*time.Hour))
	vehicle := availableVehicle(company.ID, domain.VehicleRefrigerated, tripOrigA)

	env := newTestEnv(t, newMockTripRepo(trip), &mockVehicleRepo{vehicles: []domain.Vehicle{vehicle}},
		map[uuid.UUID]*domain.Company{company.ID: company}, false)

	first, err := env.service.RunBatch(context.Background(), testDay, nil, domain.BatchTypeCrossCompany)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TripsOptimized)
	writesAfterFirst := env.trips.applyCalls

	second, err := env.service.RunBatch(context.Background(), testDay, nil, domain.BatchTypeCrossCompany)
	require.NoError(t, err)
	assert.Zero(t, second.TripsOptimized)
	assert.Equal(t, writesAfterFirst, env.trips.applyCalls)
}

func mustParse(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
