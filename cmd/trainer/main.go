package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erp/salesforecast/internal/application/training"
	"github.com/erp/salesforecast/internal/domain/forecast"
	"github.com/erp/salesforecast/internal/infrastructure/artifact"
	"github.com/erp/salesforecast/internal/infrastructure/config"
	"github.com/erp/salesforecast/internal/infrastructure/logger"
	"github.com/erp/salesforecast/internal/infrastructure/persistence"
	"github.com/erp/salesforecast/internal/infrastructure/storage"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath string
		schemaFlag string
	)
	flag.StringVar(&configPath, "config", "", "Path to a TOML config file (default: search ./config.toml)")
	flag.StringVar(&schemaFlag, "schema", "", "Feature schema to train, overrides forecast.schema")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if schemaFlag != "" {
		cfg.Forecast.Schema = schemaFlag
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Training failed", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	schema := forecast.Schema(cfg.Forecast.Schema)
	if !schema.Valid() {
		return fmt.Errorf("unknown schema %q", cfg.Forecast.Schema)
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	store, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	artifacts := artifact.NewRepository(store, cfg.Artifacts.ModelName, cfg.Artifacts.EncodingName, log)

	trainer, err := training.NewTrainer(persistence.NewGormHistoryRepository(db.DB), artifacts, training.Config{
		Schema:    schema,
		TestRatio: cfg.Forecast.TestRatio,
		SplitSeed: cfg.Forecast.SplitSeed,
	}, log)
	if err != nil {
		return err
	}

	report, err := trainer.Run(ctx)
	if err != nil {
		return err
	}
	log.Info("Training complete",
		zap.String("run_id", report.RunID.String()),
		zap.String("schema", string(report.Schema)),
		zap.Int("lines", report.Lines),
		zap.Int("skipped", report.Skipped),
		zap.Int("rows", report.Rows),
		zap.Float64("r2", report.Metrics.R2),
		zap.Float64("rmse", report.Metrics.RMSE),
	)
	return nil
}
