package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Wbench12/logistic/internal/domain"
	"github.com/Wbench12/logistic/internal/repository"
	"github.com/Wbench12/logistic/internal/routing"
	"github.com/Wbench12/logistic/internal/service"
	"github.com/Wbench12/logistic/pkg/config"
	"github.com/Wbench12/logistic/pkg/database"
	"github.com/Wbench12/logistic/pkg/kafka"
	"github.com/Wbench12/logistic/pkg/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

const exitFailed = 2

func main() {
	root := &cobra.Command{
		Use:           "optimizer",
		Short:         "Collaborative nightly trip optimization engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newOptimizeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newOptimizeCommand() *cobra.Command {
	var (
		dateStr      string
		companyIDStr string
		typeStr      string
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run the optimization batch for a target day",
		Long: `Run the nightly trip optimization for one calendar day.

The cross-company mode chains trips across carrier boundaries to minimize
aggregate deadhead; the single-company mode routes one fleet in isolation.
The batch report is printed to stdout as JSON.

Examples:
  optimizer optimize --date 2025-06-01
  optimizer optimize --date 2025-06-01 --type single_company --company-id 7b0c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(cmd.Context(), dateStr, companyIDStr, typeStr)
		},
	}

	cmd.Flags().StringVar(&dateStr, "date", "", "Target day, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&companyIDStr, "company-id", "", "Company UUID (required for single_company)")
	cmd.Flags().StringVar(&typeStr, "type", string(domain.BatchTypeCrossCompany), "Optimization type: cross_company or single_company")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func runOptimize(parent context.Context, dateStr, companyIDStr, typeStr string) error {
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return fmt.Errorf("invalid --date %q: %w", dateStr, err)
	}

	var companyID *uuid.UUID
	if companyIDStr != "" {
		parsed, err := uuid.Parse(companyIDStr)
		if err != nil {
			return fmt.Errorf("invalid --company-id %q: %w", companyIDStr, err)
		}
		companyID = &parsed
	}

	batchType := domain.BatchType(typeStr)
	if batchType != domain.BatchTypeCrossCompany && batchType != domain.BatchTypeSingleCompany {
		return fmt.Errorf("invalid --type %q", typeStr)
	}

	cfg := config.Load()

	log, err := logger.New(cfg.Service.Name, cfg.Service.Environment, cfg.Service.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Infow("Starting optimizer",
		"version", Version,
		"build_time", BuildTime,
		"date", dateStr,
		"type", batchType,
	)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Errorw("Failed to connect to database", "error", err)
		return err
	}
	defer db.Close()

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
	}

	store := repository.Store{
		Trips:     repository.NewPostgresTripRepository(db.Pool),
		Vehicles:  repository.NewPostgresVehicleRepository(db.Pool),
		Companies: repository.NewPostgresCompanyRepository(db.Pool),
		Batches:   repository.NewPostgresBatchRepository(db.Pool),
		Results:   repository.NewPostgresResultRepository(db.Pool),
	}

	routingClient := routing.NewClient(cfg.Routing, log)
	optimizer := service.NewOptimizationService(store, routingClient, producer, cfg, service.SystemClock{}, log)

	report, err := optimizer.RunBatch(ctx, date, companyID, batchType)
	if err != nil {
		log.Errorw("Batch could not be opened", "error", err)
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if report.Error != "" {
		log.Errorw("Batch failed", "batch_id", report.BatchID, "error", report.Error)
		os.Exit(exitFailed)
	}
	return nil
}
