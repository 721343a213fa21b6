package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Wbench12/logistic/internal/domain"
	"github.com/Wbench12/logistic/internal/repository"
	"github.com/Wbench12/logistic/internal/routing"
	"github.com/Wbench12/logistic/internal/solver"
	"github.com/Wbench12/logistic/pkg/config"
	apperrors "github.com/Wbench12/logistic/pkg/errors"
	"github.com/Wbench12/logistic/pkg/kafka"
	"github.com/Wbench12/logistic/pkg/logger"
)

// Clock abstracts wall time for deterministic tests
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// OptimizationService is the batch runner: it opens a batch row, drives
// feasibility, solving, plan application, and KPI attribution, and closes
// the batch as COMPLETED or FAILED.
type OptimizationService struct {
	store    repository.Store
	routing  routing.Provider
	producer kafka.Publisher
	applier  *PlanApplier
	kpi      *KPIAttributor
	cfg      *config.Config
	clock    Clock
	logger   *logger.Logger
}

// NewOptimizationService creates a batch runner
func NewOptimizationService(
	store repository.Store,
	routingProvider routing.Provider,
	producer kafka.Publisher,
	cfg *config.Config,
	clock Clock,
	log *logger.Logger,
) *OptimizationService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &OptimizationService{
		store:    store,
		routing:  routingProvider,
		producer: producer,
		applier:  NewPlanApplier(store.Trips, producer, log),
		kpi:      NewKPIAttributor(cfg.Emissions),
		cfg:      cfg,
		clock:    clock,
		logger:   log,
	}
}

// groupOutcome is the solved result of one vehicle-category group together
// with its routing diagnostics
type groupOutcome struct {
	category domain.VehicleCategory
	result   solver.Result
	info     RoutingGroupInfo
	metrics  []TripMetrics
	unsolved []solver.Unassigned
	notes    []string
}

// RunBatch runs one nightly optimization. Failures never propagate as
// errors: they are encoded in the batch status and the report. The
// returned error is non-nil only when the batch row itself could not be
// opened.
func (s *OptimizationService) RunBatch(
	ctx context.Context,
	date time.Time,
	companyID *uuid.UUID,
	batchType domain.BatchType,
) (*BatchReport, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	batch := &domain.OptimizationBatch{
		ID:        uuid.New(),
		BatchDate: dayStart,
		Type:      batchType,
		Status:    domain.BatchStatusProcessing,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.Batches.Create(ctx, batch); err != nil {
		return nil, apperrors.DatabaseError("create batch", err)
	}

	log := s.logger.WithBatchID(batch.ID.String())

	log.Infow("Optimization batch started",
		"date", dayStart.Format("2006-01-02"),
		"type", batchType,
	)
	s.publish(ctx, kafka.Topics.BatchStarted, batch.ID.String(), map[string]interface{}{
		"batch_id": batch.ID.String(),
		"date":     dayStart.Format("2006-01-02"),
		"type":     string(batchType),
	})

	report, err := s.execute(ctx, batch, dayStart, companyID, batchType, log)
	if err != nil {
		s.failBatch(ctx, batch, err, log)
		if report == nil {
			report = s.emptyReport(batch, dayStart, batchType)
		}
		report.Error = batch.ErrorMessage
		return report, nil
	}

	return report, nil
}

func (s *OptimizationService) execute(
	ctx context.Context,
	batch *domain.OptimizationBatch,
	dayStart time.Time,
	companyID *uuid.UUID,
	batchType domain.BatchType,
	log *logger.Logger,
) (*BatchReport, error) {
	if batchType == domain.BatchTypeSingleCompany && companyID == nil {
		return nil, fmt.Errorf("company id is required for single company optimization")
	}

	trips, err := s.store.Trips.GetPlannedForDate(ctx, repository.TripFilter{Date: dayStart, CompanyID: companyID})
	if err != nil {
		return nil, apperrors.DatabaseError("load trips", err)
	}
	vehicles, err := s.store.Vehicles.GetAvailable(ctx, companyID)
	if err != nil {
		return nil, apperrors.DatabaseError("load vehicles", err)
	}

	log.Infow("Loaded optimization inputs",
		"trips", len(trips),
		"vehicles", len(vehicles),
	)

	report := s.emptyReport(batch, dayStart, batchType)

	if len(trips) == 0 || len(vehicles) == 0 {
		report.Diagnostics = append(report.Diagnostics, "no trips or vehicles available for optimization")
		if err := s.completeBatch(ctx, batch, report, log); err != nil {
			return report, err
		}
		return report, nil
	}

	findings := ValidateInputs(trips, vehicles)
	report.Diagnostics = append(report.Diagnostics, findings.Errors...)
	report.Diagnostics = append(report.Diagnostics, findings.Warnings...)

	companies, err := s.resolveCompanies(ctx, trips, vehicles)
	if err != nil {
		return report, apperrors.DatabaseError("load companies", err)
	}

	// Partition the day into disjoint vehicle-category groups
	tripsByCat := make(map[domain.VehicleCategory][]*domain.Trip)
	for i := range trips {
		t := &trips[i]
		if !t.HasCoordinates() {
			markUnassigned(report, log, t.ID.String(), solver.ReasonMissingCoordinates)
			continue
		}
		cat := t.RequiredVehicleCategory()
		tripsByCat[cat] = append(tripsByCat[cat], t)
	}

	vehiclesByCat := make(map[domain.VehicleCategory][]*domain.Vehicle)
	for i := range vehicles {
		v := &vehicles[i]
		if _, ok := v.Depot(companies[v.CompanyID]); !ok {
			report.Diagnostics = append(report.Diagnostics,
				fmt.Sprintf("vehicle %s has no depot coordinates and was excluded", v.ID))
			continue
		}
		vehiclesByCat[v.Category] = append(vehiclesByCat[v.Category], v)
	}

	var cats []domain.VehicleCategory
	for cat, catTrips := range tripsByCat {
		if len(vehiclesByCat[cat]) == 0 {
			for _, t := range catTrips {
				markUnassigned(report, log, t.ID.String(), fmt.Sprintf("no_vehicles_for_category:%s", cat))
			}
			continue
		}
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(a, b int) bool { return cats[a] < cats[b] })

	// Groups partition trips and vehicles, so they solve independently on
	// a bounded pool; merge order is fixed by category code.
	outcomes := make([]groupOutcome, len(cats))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.groupWorkers(len(cats)))
	for idx, cat := range cats {
		idx, cat := idx, cat
		g.Go(func() error {
			outcome, err := s.solveGroup(gctx, dayStart, cat, tripsByCat[cat], vehiclesByCat[cat], companies, batchType, log)
			if err != nil {
				return err
			}
			outcomes[idx] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return report, apperrors.CancelledError(ctx.Err())
		}
		return report, err
	}

	// Merge group results
	tripsByID := make(map[string]*domain.Trip, len(trips))
	for i := range trips {
		tripsByID[trips[i].ID.String()] = &trips[i]
	}

	var allAssignments []solver.Assignment
	var allMetrics []TripMetrics
	for _, outcome := range outcomes {
		allAssignments = append(allAssignments, outcome.result.Assignments...)
		allMetrics = append(allMetrics, outcome.metrics...)
		for _, un := range outcome.result.Unassigned {
			markUnassigned(report, log, un.TripID, un.Reason)
		}
		for _, un := range outcome.unsolved {
			markUnassigned(report, log, un.TripID, un.Reason)
		}
		report.Valhalla[string(outcome.category)] = outcome.info
		report.Diagnostics = append(report.Diagnostics, outcome.result.Diagnostics...)
		report.Diagnostics = append(report.Diagnostics, outcome.notes...)
	}

	if err := ctx.Err(); err != nil {
		return report, apperrors.CancelledError(err)
	}

	// Apply the plan
	written, err := s.applier.Apply(ctx, batch.ID, dayStart, tripsByID, allAssignments)
	if err != nil {
		return report, apperrors.DatabaseError("apply plan", err)
	}
	log.Infow("Plan applied",
		"assignments", len(allAssignments),
		"rows_written", written,
	)

	// Attribute savings
	vehiclesByID := make(map[string]*domain.Vehicle, len(vehicles))
	for i := range vehicles {
		vehiclesByID[vehicles[i].ID.String()] = &vehicles[i]
	}

	assigned := make(map[string]AssignmentInfo, len(allAssignments))
	usedVehicles := make(map[string]struct{})
	for _, a := range allAssignments {
		v := vehiclesByID[a.VehicleID]
		if v == nil {
			continue
		}
		assigned[a.TripID] = AssignmentInfo{
			VehicleID:        a.VehicleID,
			VehicleCompanyID: v.CompanyID,
			IsLast:           a.IsLast,
		}
		usedVehicles[a.VehicleID] = struct{}{}
	}

	kpis := s.kpi.Attribute(allMetrics, assigned)
	report.Totals = Totals(kpis)

	companyIDs := make([]uuid.UUID, 0, len(kpis))
	for id := range kpis {
		companyIDs = append(companyIDs, id)
	}
	sort.Slice(companyIDs, func(a, b int) bool { return companyIDs[a].String() < companyIDs[b].String() })

	for _, id := range companyIDs {
		k := kpis[id]
		report.CompanyResults[id.String()] = k
		report.ParticipatingCompanies = append(report.ParticipatingCompanies, id.String())

		result := &domain.CompanyOptimizationResult{
			ID:                  uuid.New(),
			OptimizationBatchID: batch.ID,
			CompanyID:           id,
			TripsContributed:    k.TripsContributed,
			TripsAssigned:       k.TripsAssigned,
			VehiclesUsed:        k.VehiclesUsed,
			VehiclesBorrowed:    k.VehiclesBorrowed,
			VehiclesSharedOut:   k.VehiclesSharedOut,
			KmSaved:             k.KmSaved,
			FuelSavedLiters:     k.FuelSavedL,
			CO2SavedKg:          k.CO2SavedKg,
			CostSaved:           k.CostSaved,
			CreatedAt:           s.clock.Now(),
		}
		if err := s.store.Results.Create(ctx, result); err != nil {
			return report, apperrors.DatabaseError("create company result", err)
		}
	}

	// Build the assignment section in deterministic order
	sort.Slice(allAssignments, func(a, b int) bool {
		if allAssignments[a].VehicleID != allAssignments[b].VehicleID {
			return allAssignments[a].VehicleID < allAssignments[b].VehicleID
		}
		return allAssignments[a].SequenceOrder < allAssignments[b].SequenceOrder
	})
	for _, a := range allAssignments {
		trip := tripsByID[a.TripID]
		v := vehiclesByID[a.VehicleID]
		if trip == nil || v == nil {
			continue
		}
		report.Assignments = append(report.Assignments, ReportAssignment{
			TripID:            a.TripID,
			AssignedVehicleID: a.VehicleID,
			OriginalCompanyID: trip.CompanyID.String(),
			AssignedCompanyID: v.CompanyID.String(),
			SequenceOrder:     a.SequenceOrder,
			IsLastInChain:     a.IsLast,
			StartTimeISO:      dayStart.Add(time.Duration(a.StartMin) * time.Minute).Format(time.RFC3339),
		})
	}
	report.TripsOptimized = len(report.Assignments)
	report.VehiclesUsed = len(usedVehicles)

	if err := s.completeBatch(ctx, batch, report, log); err != nil {
		return report, err
	}
	return report, nil
}

// markUnassigned records a trip left out of the plan and logs the
// structured infeasibility
func markUnassigned(report *BatchReport, log *logger.Logger, tripID, reason string) {
	report.Unassigned = append(report.Unassigned, ReportUnassigned{TripID: tripID, Reason: reason})
	log.Warnw("Trip not assignable", "error", apperrors.InputInfeasibleError(tripID, reason))
}

// solveGroup prepares and solves one vehicle-category group against a
// single immutable matrix snapshot.
func (s *OptimizationService) solveGroup(
	ctx context.Context,
	dayStart time.Time,
	cat domain.VehicleCategory,
	groupTrips []*domain.Trip,
	groupVehicles []*domain.Vehicle,
	companies map[uuid.UUID]*domain.Company,
	batchType domain.BatchType,
	log *logger.Logger,
) (groupOutcome, error) {
	outcome := groupOutcome{category: cat}

	index := routing.NewLocationIndex()
	for _, v := range groupVehicles {
		depot, _ := v.Depot(companies[v.CompanyID])
		index.Add(depot)
	}
	for _, t := range groupTrips {
		index.Add(t.Origin())
		index.Add(t.Destination())
	}

	matrixResult, err := s.routing.Matrix(ctx, index.Points())
	if err != nil {
		return outcome, err
	}
	tm := routing.NewTravelMatrix(index, matrixResult)
	outcome.info = RoutingGroupInfo{
		MatrixOK:     tm.OK(),
		FallbackUsed: tm.FallbackUsed(),
		Locations:    tm.Locations(),
	}
	if tm.FallbackUsed() {
		routingErr := apperrors.RoutingUnavailableError(string(cat))
		log.Warnw("Planning on fallback travel values", "error", routingErr)
		outcome.notes = append(outcome.notes, routingErr.Error())
	}

	solverVehicles := make([]solver.Vehicle, 0, len(groupVehicles))
	for _, v := range groupVehicles {
		depot, _ := v.Depot(companies[v.CompanyID])
		solverVehicles = append(solverVehicles, solver.Vehicle{
			ID:         v.ID.String(),
			CompanyID:  v.CompanyID.String(),
			Depot:      depot,
			CapacityKg: v.CapacityKg(),
			CapacityM3: v.CapacityM3,
		})
	}

	solverTrips := make([]solver.Trip, 0, len(groupTrips))
	for _, t := range groupTrips {
		orig, dest := t.Origin(), t.Destination()
		earliest := int(t.DepartureTime.Sub(dayStart).Minutes())
		latest := int(t.PlannedArrival.Sub(dayStart).Minutes())

		durationMin := 0
		routeKm := 0.0
		if t.RouteDurationMin != nil {
			durationMin = int(*t.RouteDurationMin)
		} else {
			durationMin = tm.Minutes(orig, dest)
		}
		if t.RouteDistanceKm != nil {
			routeKm = *t.RouteDistanceKm
		} else {
			routeKm = tm.Km(orig, dest)
		}

		// Backfill the solo-return estimate when ingestion did not
		// precompute it
		returnKm := 0.0
		switch {
		case t.ReturnDistanceKm != nil:
			returnKm = *t.ReturnDistanceKm
		default:
			if c := companies[t.CompanyID]; c != nil && c.DepotLat != nil && c.DepotLng != nil {
				returnKm = tm.Km(dest, domain.LatLng{Lat: *c.DepotLat, Lng: *c.DepotLng})
			} else {
				returnKm = s.cfg.Optimizer.DefaultReturnKm
			}
		}

		solverTrips = append(solverTrips, solver.Trip{
			ID:        t.ID.String(),
			CompanyID: t.CompanyID.String(),
			Orig:      orig,
			Dest:      dest,
			Earliest:  earliest,
			Latest:    latest,
			Duration:  durationMin,
			Service:   s.cfg.Optimizer.ServiceTimeMin,
			WeightKg:  t.CargoWeightKg,
			VolumeM3:  t.CargoVolumeM3,
			ReturnKm:  returnKm,
		})
		outcome.metrics = append(outcome.metrics, TripMetrics{
			TripID:    t.ID.String(),
			CompanyID: t.CompanyID,
			RouteKm:   routeKm,
			ReturnKm:  returnKm,
		})
	}

	problem, removed := solver.BuildProblem(solverTrips, solverVehicles, tm)
	outcome.unsolved = removed

	solverCfg := solver.Config{
		DefaultReturnKm: s.cfg.Optimizer.DefaultReturnKm,
		DropPenalty:     s.cfg.Optimizer.DropPenalty,
	}
	switch batchType {
	case domain.BatchTypeSingleCompany:
		solverCfg.Budget = s.cfg.Optimizer.SingleGroupBudget
		outcome.result = solver.SolveSingle(ctx, problem, solverCfg)
	default:
		solverCfg.Budget = s.cfg.Optimizer.SolverBudget
		outcome.result = solver.SolveCross(ctx, problem, solverCfg)
	}
	outcome.info.Fallback = outcome.result.Fallback

	if outcome.result.TimedOut {
		timeoutErr := apperrors.SolverTimeoutError(string(cat))
		log.Warnw("Solver budget exhausted, best incumbent kept", "error", timeoutErr)
		outcome.notes = append(outcome.notes, timeoutErr.Error())
	}
	if outcome.result.Fallback {
		fallbackErr := apperrors.SolverInfeasibleError(string(cat))
		log.Warnw("Group fell back to round-robin assignment", "error", fallbackErr)
		outcome.notes = append(outcome.notes, fallbackErr.Error())
	}

	log.Infow("Group solved",
		"category", cat,
		"trips", len(groupTrips),
		"vehicles", len(groupVehicles),
		"assigned", len(outcome.result.Assignments),
		"vehicles_used", outcome.result.VehiclesUsed,
		"deadhead_km", outcome.result.TotalDeadheadKm,
		"fallback", outcome.result.Fallback,
		"timed_out", outcome.result.TimedOut,
	)

	return outcome, nil
}

func (s *OptimizationService) resolveCompanies(
	ctx context.Context,
	trips []domain.Trip,
	vehicles []domain.Vehicle,
) (map[uuid.UUID]*domain.Company, error) {
	idSet := make(map[uuid.UUID]struct{})
	for i := range trips {
		idSet[trips[i].CompanyID] = struct{}{}
	}
	for i := range vehicles {
		idSet[vehicles[i].CompanyID] = struct{}{}
	}
	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a].String() < ids[b].String() })
	return s.store.Companies.GetByIDs(ctx, ids)
}

func (s *OptimizationService) groupWorkers(groups int) int {
	workers := s.cfg.Optimizer.SearchWorkers
	if workers < 1 {
		workers = 1
	}
	if groups < workers {
		return groups
	}
	return workers
}

func (s *OptimizationService) emptyReport(batch *domain.OptimizationBatch, dayStart time.Time, batchType domain.BatchType) *BatchReport {
	return &BatchReport{
		BatchID:        batch.ID.String(),
		Date:           dayStart.Format("2006-01-02"),
		Type:           string(batchType),
		CompanyResults: make(map[string]CompanyKPI),
		Valhalla:       make(map[string]RoutingGroupInfo),
	}
}

func (s *OptimizationService) completeBatch(ctx context.Context, batch *domain.OptimizationBatch, report *BatchReport, log *logger.Logger) error {
	now := s.clock.Now()
	batch.Status = domain.BatchStatusCompleted
	batch.CompletedAt = &now
	batch.SolverTimeS = now.Sub(batch.CreatedAt).Seconds()
	batch.TotalTrips = report.TripsOptimized
	batch.VehiclesUsed = report.VehiclesUsed
	batch.KmSaved = report.Totals.KmSaved
	batch.FuelSavedLiters = report.Totals.FuelSavedL
	for _, id := range report.ParticipatingCompanies {
		if parsed, err := uuid.Parse(id); err == nil {
			batch.ParticipatingCompanies = append(batch.ParticipatingCompanies, parsed)
		}
	}

	if err := s.store.Batches.Update(ctx, batch); err != nil {
		return apperrors.DatabaseError("complete batch", err)
	}

	log.Infow("Optimization batch completed",
		"trips_optimized", batch.TotalTrips,
		"vehicles_used", batch.VehiclesUsed,
		"km_saved", batch.KmSaved,
		"solver_time_s", batch.SolverTimeS,
	)
	s.publish(ctx, kafka.Topics.BatchCompleted, batch.ID.String(), map[string]interface{}{
		"batch_id":        batch.ID.String(),
		"trips_optimized": batch.TotalTrips,
		"vehicles_used":   batch.VehiclesUsed,
		"km_saved":        batch.KmSaved,
	})
	return nil
}

func (s *OptimizationService) failBatch(ctx context.Context, batch *domain.OptimizationBatch, cause error, log *logger.Logger) {
	batch.Status = domain.BatchStatusFailed
	batch.ErrorMessage = cause.Error()
	now := s.clock.Now()
	batch.CompletedAt = &now
	batch.SolverTimeS = now.Sub(batch.CreatedAt).Seconds()

	// Best effort: the batch may be unreachable for the same reason the
	// run failed
	if err := s.store.Batches.Update(context.WithoutCancel(ctx), batch); err != nil {
		log.Errorw("Failed to persist batch failure",
			"error", err,
		)
	}

	log.Errorw("Optimization batch failed",
		"error", cause,
	)
	s.publish(ctx, kafka.Topics.BatchFailed, batch.ID.String(), map[string]interface{}{
		"batch_id": batch.ID.String(),
		"error":    cause.Error(),
	})
}

func (s *OptimizationService) publish(ctx context.Context, topic, correlationID string, data map[string]interface{}) {
	if s.producer == nil {
		return
	}
	event := kafka.NewEvent(topic, "trip-optimizer", data).WithCorrelationID(correlationID)
	if err := s.producer.Publish(context.WithoutCancel(ctx), topic, event); err != nil {
		s.logger.Warnw("Failed to publish event", "topic", topic, "error", err)
	}
}
