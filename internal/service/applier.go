package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Wbench12/logistic/internal/domain"
	"github.com/Wbench12/logistic/internal/repository"
	"github.com/Wbench12/logistic/internal/solver"
	"github.com/Wbench12/logistic/pkg/kafka"
	"github.com/Wbench12/logistic/pkg/logger"
)

// PlanApplier writes the solved plan through the entity store. Writes are
// idempotent: a trip whose stored assignment already matches the solver
// output is skipped.
type PlanApplier struct {
	trips    repository.TripRepository
	producer kafka.Publisher
	logger   *logger.Logger
}

// NewPlanApplier creates a plan applier
func NewPlanApplier(trips repository.TripRepository, producer kafka.Publisher, log *logger.Logger) *PlanApplier {
	return &PlanApplier{
		trips:    trips,
		producer: producer,
		logger:   log,
	}
}

// Apply persists the assignments of one batch. Only trips in the solved
// feasible set are touched. It returns the number of rows written.
func (a *PlanApplier) Apply(
	ctx context.Context,
	batchID uuid.UUID,
	dayStart time.Time,
	tripsByID map[string]*domain.Trip,
	assignments []solver.Assignment,
) (int, error) {
	written := 0

	for _, assignment := range assignments {
		trip, ok := tripsByID[assignment.TripID]
		if !ok {
			// Never mutate trips outside the solved feasible set
			continue
		}

		start := dayStart.Add(time.Duration(assignment.StartMin) * time.Minute)
		durationMin := 60.0
		if trip.RouteDurationMin != nil {
			durationMin = *trip.RouteDurationMin
		}
		estimatedArrival := start.Add(time.Duration(durationMin * float64(time.Minute)))

		vehicleID, err := uuid.Parse(assignment.VehicleID)
		if err != nil {
			return written, fmt.Errorf("invalid vehicle id %q: %w", assignment.VehicleID, err)
		}

		if alreadyApplied(trip, batchID, vehicleID, assignment) {
			continue
		}

		err = a.trips.ApplyAssignment(ctx, repository.TripAssignment{
			TripID:            trip.ID,
			BatchID:           batchID,
			AssignedVehicleID: vehicleID,
			SequenceOrder:     assignment.SequenceOrder,
			IsLastInChain:     assignment.IsLast,
			EstimatedArrival:  estimatedArrival,
		})
		if err != nil {
			return written, fmt.Errorf("failed to apply assignment for trip %s: %w", trip.ID, err)
		}
		written++

		// Keep the in-memory record in step so a re-run is a no-op
		trip.OptimizationBatchID = &batchID
		trip.AssignedVehicleID = &vehicleID
		seq := assignment.SequenceOrder
		trip.SequenceOrder = &seq
		trip.IsLastInChain = assignment.IsLast
		trip.OptimizationStatus = domain.OptimizationStatusAssigned
		trip.EstimatedArrival = &estimatedArrival

		if a.producer == nil {
			continue
		}
		event := kafka.NewEvent(kafka.Topics.TripAssigned, "trip-optimizer", map[string]interface{}{
			"trip_id":          trip.ID.String(),
			"vehicle_id":       vehicleID.String(),
			"batch_id":         batchID.String(),
			"sequence_order":   assignment.SequenceOrder,
			"is_last_in_chain": assignment.IsLast,
		}).WithCorrelationID(batchID.String())
		if err := a.producer.Publish(ctx, kafka.Topics.TripAssigned, event); err != nil {
			a.logger.Warnw("Failed to publish assignment event",
				"trip_id", trip.ID,
				"error", err,
			)
		}
	}

	return written, nil
}

func alreadyApplied(trip *domain.Trip, batchID, vehicleID uuid.UUID, a solver.Assignment) bool {
	return trip.OptimizationBatchID != nil && *trip.OptimizationBatchID == batchID &&
		trip.AssignedVehicleID != nil && *trip.AssignedVehicleID == vehicleID &&
		trip.SequenceOrder != nil && *trip.SequenceOrder == a.SequenceOrder &&
		trip.IsLastInChain == a.IsLast &&
		trip.OptimizationStatus == domain.OptimizationStatusAssigned
}
