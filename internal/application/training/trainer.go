// Package training fits the forecast model offline and publishes its artifacts.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/salesforecast/internal/domain/forecast"
	"github.com/erp/salesforecast/internal/infrastructure/artifact"
	"github.com/erp/salesforecast/internal/infrastructure/regression"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds trainer settings
type Config struct {
	Schema    forecast.Schema
	TestRatio float64
	SplitSeed uint64
}

// ArtifactWriter persists a training run's outputs
type ArtifactWriter interface {
	SaveModel(ctx context.Context, tm *artifact.TrainedModel) error
	SaveEncoding(ctx context.Context, enc *forecast.Encoding) error
}

// Report summarises a training run
type Report struct {
	RunID   uuid.UUID
	Schema  forecast.Schema
	Lines   int
	Skipped int
	Rows    int
	Metrics regression.Metrics
}

// Trainer builds the encoding and the model from historical order lines
type Trainer struct {
	source forecast.OrderLineSource
	writer ArtifactWriter
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewTrainer creates a Trainer
func NewTrainer(source forecast.OrderLineSource, writer ArtifactWriter, cfg Config, logger *zap.Logger) (*Trainer, error) {
	if source == nil || writer == nil {
		return nil, errors.New("trainer requires an order line source and an artifact writer")
	}
	if !cfg.Schema.Valid() {
		return nil, forecast.SchemaMismatch(fmt.Sprintf("unknown schema %q", cfg.Schema))
	}
	if cfg.TestRatio < 0 || cfg.TestRatio >= 1 {
		return nil, fmt.Errorf("test ratio must be in [0, 1), got %v", cfg.TestRatio)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		source: source,
		writer: writer,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Run trains one model and writes the encoding and model artifacts.
// Artifacts are written only once the model has been fitted and scored.
func (t *Trainer) Run(ctx context.Context) (*Report, error) {
	runID := uuid.New()
	log := t.logger.With(zap.Stringer("run_id", runID), zap.String("schema", string(t.cfg.Schema)))

	all, err := t.source.OrderLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	lines := UsableLines(t.cfg.Schema, all)
	report := &Report{RunID: runID, Schema: t.cfg.Schema, Lines: len(lines), Skipped: len(all) - len(lines)}
	log.Info("Order lines loaded", zap.Int("usable", report.Lines), zap.Int("skipped", report.Skipped))
	if len(lines) == 0 {
		return nil, errors.New("no usable order lines")
	}

	trainedAt := t.now().UTC()
	enc, err := BuildEncoding(t.cfg.Schema, lines, runID.String(), trainedAt)
	if err != nil {
		return nil, fmt.Errorf("build encoding: %w", err)
	}
	ds, err := BuildDataset(enc, lines)
	if err != nil {
		return nil, fmt.Errorf("build dataset: %w", err)
	}
	report.Rows = ds.Len()

	model, metrics, err := t.fit(ctx, ds)
	if err != nil {
		return nil, err
	}
	report.Metrics = metrics
	log.Info("Model fitted",
		zap.Int("rows", ds.Len()),
		zap.Float64("r2", metrics.R2),
		zap.Float64("rmse", metrics.RMSE),
		zap.Int("train_rows", metrics.TrainRows),
		zap.Int("test_rows", metrics.TestRows),
	)

	if err := t.writer.SaveEncoding(ctx, enc); err != nil {
		return nil, err
	}
	tm := &artifact.TrainedModel{
		Model: model,
		Info: artifact.ModelInfo{
			Schema:        t.cfg.Schema,
			FeatureNames:  t.cfg.Schema.FeatureNames(),
			TrainedAt:     trainedAt,
			TrainingRunID: runID,
			Metrics:       metrics,
		},
	}
	if err := t.writer.SaveModel(ctx, tm); err != nil {
		return nil, err
	}
	log.Info("Artifacts written")
	return report, nil
}

// fit estimates the model on the training split and scores it on the held out rows
func (t *Trainer) fit(ctx context.Context, ds *Dataset) (*regression.LinearModel, regression.Metrics, error) {
	trainIdx, testIdx := regression.Split(ds.Len(), t.cfg.TestRatio, t.cfg.SplitSeed)
	xTrain, yTrain := regression.Select(ds.X, ds.Y, trainIdx)

	intercept, coef, err := regression.Fit(xTrain, yTrain)
	if err != nil {
		return nil, regression.Metrics{}, fmt.Errorf("fit model: %w", err)
	}
	model, err := regression.NewLinearModel(t.cfg.Schema, t.cfg.Schema.FeatureNames(), intercept, coef)
	if err != nil {
		return nil, regression.Metrics{}, fmt.Errorf("fit model: %w", err)
	}

	metrics := regression.Metrics{TrainRows: len(trainIdx), TestRows: len(testIdx)}
	if len(testIdx) > 0 {
		xTest, yTest := regression.Select(ds.X, ds.Y, testIdx)
		pred, err := model.Predict(ctx, xTest)
		if err != nil {
			return nil, regression.Metrics{}, fmt.Errorf("score model: %w", err)
		}
		metrics.R2 = round(regression.R2(yTest, pred))
		metrics.RMSE = round(regression.RMSE(yTest, pred))
	}
	return model, metrics, nil
}

func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}
