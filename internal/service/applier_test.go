package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wbench12/logistic/internal/domain"
	"github.com/Wbench12/logistic/internal/solver"
	"github.com/Wbench12/logistic/pkg/kafka"
	"github.com/Wbench12/logistic/pkg/logger"
)

func TestApplyWritesAssignments(t *testing.T) {
	company := testCompany(tripOrigA)
	trip := plannedTrip(company.ID, tripOrigA, tripDestA,
		testDay.Add(8*time.Hour), testDay.Add(10*time.Hour))
	repo := newMockTripRepo(trip)
	vehicleID := uuid.New()

	var producer *kafka.Producer
	applier := NewPlanApplier(repo, producer, logger.Nop())

	batchID := uuid.New()
	assignments := []solver.Assignment{
		{TripID: trip.ID.String(), VehicleID: vehicleID.String(), SequenceOrder: 1, StartMin: 480, IsLast: true},
	}
	tripsByID := map[string]*domain.Trip{trip.ID.String(): trip}

	written, err := applier.Apply(context.Background(), batchID, testDay, tripsByID, assignments)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	stored := repo.trips[trip.ID]
	require.NotNil(t, stored.AssignedVehicleID)
	assert.Equal(t, vehicleID, *stored.AssignedVehicleID)
	assert.Equal(t, domain.OptimizationStatusAssigned, stored.OptimizationStatus)
	assert.True(t, stored.IsLastInChain)

	// estimated arrival = start + route duration
	require.NotNil(t, stored.EstimatedArrival)
	assert.Equal(t, testDay.Add(8*time.Hour+30*time.Minute), *stored.EstimatedArrival)
}

func TestApplyIsIdempotent(t *testing.T) {
	company := testCompany(tripOrigA)
	trip := plannedTrip(company.ID, tripOrigA, tripDestA,
		testDay.Add(8*time.Hour), testDay.Add(10*time.Hour))
	repo := newMockTripRepo(trip)
	vehicleID := uuid.New()

	var producer *kafka.Producer
	applier := NewPlanApplier(repo, producer, logger.Nop())

	batchID := uuid.New()
	assignments := []solver.Assignment{
		{TripID: trip.ID.String(), VehicleID: vehicleID.String(), SequenceOrder: 1, StartMin: 480, IsLast: true},
	}
	tripsByID := map[string]*domain.Trip{trip.ID.String(): trip}

	written, err := applier.Apply(context.Background(), batchID, testDay, tripsByID, assignments)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	// Re-running the applier with the same solver output writes nothing
	written, err = applier.Apply(context.Background(), batchID, testDay, tripsByID, assignments)
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Equal(t, 1, repo.applyCalls)
}

func TestApplyIgnoresUnknownTrips(t *testing.T) {
	repo := newMockTripRepo()

	var producer *kafka.Producer
	applier := NewPlanApplier(repo, producer, logger.Nop())

	assignments := []solver.Assignment{
		{TripID: uuid.New().String(), VehicleID: uuid.New().String(), SequenceOrder: 1, StartMin: 480, IsLast: true},
	}

	written, err := applier.Apply(context.Background(), uuid.New(), testDay, map[string]*domain.Trip{}, assignments)
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Zero(t, repo.applyCalls)
}
