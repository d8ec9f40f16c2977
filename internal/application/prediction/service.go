// Package prediction serves sales forecasts from a trained model, deriving each
// feature vector from the request and the product's sales history.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/erp/salesforecast/internal/domain/forecast"
	"github.com/erp/salesforecast/internal/infrastructure/logger"
	"github.com/erp/salesforecast/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds the serving settings
type Config struct {
	Schema forecast.Schema
	// LookupTimeout bounds each historical lookup; zero means no bound beyond ctx
	LookupTimeout time.Duration
}

// PredictionService turns prediction requests into model outputs.
// It holds no mutable state and is safe for concurrent use.
type PredictionService struct {
	history  forecast.HistoryProvider
	encoding *forecast.Encoding
	model    forecast.Model
	cfg      Config
	logger   *zap.Logger
	metrics  *telemetry.PredictionMetrics
}

// NewPredictionService creates a PredictionService. The model and the encoding
// must both declare cfg.Schema and the model must accept that schema's width.
func NewPredictionService(
	history forecast.HistoryProvider,
	encoding *forecast.Encoding,
	model forecast.Model,
	cfg Config,
	logger *zap.Logger,
	metrics *telemetry.PredictionMetrics,
) (*PredictionService, error) {
	if history == nil || encoding == nil || model == nil {
		return nil, errors.New("prediction service requires a history provider, an encoding and a model")
	}
	if !cfg.Schema.Valid() {
		return nil, forecast.SchemaMismatch(fmt.Sprintf("unknown schema %q", cfg.Schema))
	}
	if err := encoding.Validate(); err != nil {
		return nil, err
	}
	if encoding.Schema != cfg.Schema {
		return nil, forecast.SchemaMismatch(fmt.Sprintf("encoding schema %s, configured %s", encoding.Schema, cfg.Schema))
	}
	if model.Schema() != cfg.Schema {
		return nil, forecast.SchemaMismatch(fmt.Sprintf("model schema %s, configured %s", model.Schema(), cfg.Schema))
	}
	if model.InputDim() != cfg.Schema.Dim() {
		return nil, forecast.SchemaMismatch(fmt.Sprintf("model takes %d inputs, %s has %d features",
			model.InputDim(), cfg.Schema, cfg.Schema.Dim()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PredictionService{
		history:  history,
		encoding: encoding,
		model:    model,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Schema returns the feature schema being served
func (s *PredictionService) Schema() forecast.Schema {
	return s.cfg.Schema
}

// PredictOne predicts a single request
func (s *PredictionService) PredictOne(ctx context.Context, req forecast.PredictionRequest) (*forecast.PredictionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "prediction", "predict_one",
		telemetry.Attr(telemetry.SpanAttrProductID, req.ProductID),
		telemetry.Attr(telemetry.SpanAttrSchema, s.cfg.Schema),
	)
	defer span.End()

	start := time.Now()
	results, err := s.predict(ctx, []forecast.PredictionRequest{req}, false)
	s.metrics.Record(ctx, telemetry.OperationPredictOne, string(s.cfg.Schema), 1, time.Since(start), err)
	if err != nil {
		telemetry.RecordError(span, err)
		s.log(ctx).Warn("Prediction failed", zap.Int64("product_id", req.ProductID), zap.Error(err))
		return nil, err
	}
	return &results[0], nil
}

// PredictMany predicts a batch in input order. Elements are resolved one after
// another and the first failure aborts the call; the returned error carries
// the index of the failing element. The model is invoked once for the batch.
func (s *PredictionService) PredictMany(ctx context.Context, reqs []forecast.PredictionRequest) ([]forecast.PredictionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "prediction", "predict_many",
		telemetry.Attr(telemetry.SpanAttrBatchSize, len(reqs)),
		telemetry.Attr(telemetry.SpanAttrSchema, s.cfg.Schema),
	)
	defer span.End()

	start := time.Now()
	var results []forecast.PredictionResult
	var err error
	if len(reqs) == 0 {
		err = forecast.NewError(forecast.KindInvalidInput, "batch is empty")
	} else {
		results, err = s.predict(ctx, reqs, true)
	}
	s.metrics.Record(ctx, telemetry.OperationPredictMany, string(s.cfg.Schema), len(reqs), time.Since(start), err)
	if err != nil {
		telemetry.RecordError(span, err)
		s.log(ctx).Warn("Batch prediction failed", zap.Int("batch_size", len(reqs)), zap.Error(err))
		return nil, err
	}
	return results, nil
}

func (s *PredictionService) predict(ctx context.Context, reqs []forecast.PredictionRequest, batch bool) ([]forecast.PredictionResult, error) {
	vectors := make([]forecast.FeatureVector, len(reqs))
	rows := make([][]float64, len(reqs))
	for i, req := range reqs {
		v, err := s.resolve(ctx, req)
		if err == nil {
			err = v.Validate(s.model.Schema(), s.model.InputDim())
		}
		if err != nil {
			return nil, atIndex(err, i, batch)
		}
		vectors[i] = v
		rows[i] = v.Values
	}

	preds, err := s.model.Predict(ctx, rows)
	if err != nil {
		var fe *forecast.Error
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, forecast.WrapError(forecast.KindModelInvocation, "model evaluation failed", err)
	}
	if len(preds) != len(rows) {
		return nil, forecast.NewError(forecast.KindModelInvocation,
			fmt.Sprintf("model returned %d values for %d rows", len(preds), len(rows)))
	}

	results := make([]forecast.PredictionResult, len(preds))
	for i, p := range preds {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, atIndex(forecast.NewError(forecast.KindModelInvocation, "model returned a non finite value"), i, batch)
		}
		results[i] = forecast.PredictionResult{
			PredictedValue: decimal.NewFromFloat(p).Round(2).InexactFloat64(),
			Features:       vectors[i],
		}
	}
	return results, nil
}

// resolve derives the feature vector of one request
func (s *PredictionService) resolve(ctx context.Context, req forecast.PredictionRequest) (forecast.FeatureVector, error) {
	date, err := forecast.ParseDate(req.OrderDate)
	if err != nil {
		return forecast.FeatureVector{}, err
	}
	if math.IsNaN(req.UnitPrice) || math.IsInf(req.UnitPrice, 0) {
		return forecast.FeatureVector{}, forecast.NewError(forecast.KindInvalidInput, "unit_price must be a finite number")
	}
	var quantity float64
	if req.Quantity != nil {
		quantity = float64(*req.Quantity)
	} else if s.cfg.Schema.RequiresQuantity() {
		return forecast.FeatureVector{}, forecast.NewError(forecast.KindInvalidInput,
			fmt.Sprintf("quantity is required by schema %s", s.cfg.Schema))
	}

	var attrs *forecast.ProductAttributes
	err = s.lookup(ctx, "product lookup", func(ctx context.Context) error {
		var err error
		attrs, err = s.history.ProductAttributes(ctx, req.ProductID)
		return err
	})
	if err != nil {
		return forecast.FeatureVector{}, err
	}

	var history []forecast.PeriodAggregate
	if s.cfg.Schema.RequiresHistory() {
		err = s.lookup(ctx, "period totals", func(ctx context.Context) error {
			var err error
			history, err = s.history.PeriodTotals(ctx, req.ProductID, forecast.PeriodOf(date), forecast.LagWindow)
			return err
		})
		if err != nil {
			return forecast.FeatureVector{}, err
		}
	}

	return s.encoding.Vector(forecast.Observation{
		Date:        date,
		ProductName: attrs.Name,
		Country:     attrs.Country,
		UnitPrice:   req.UnitPrice,
		Quantity:    quantity,
	}, history)
}

// lookup runs fn under the lookup deadline. Errors that are not already
// forecast errors become DataUnavailable.
func (s *PredictionService) lookup(ctx context.Context, op string, fn func(context.Context) error) error {
	if s.cfg.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LookupTimeout)
		defer cancel()
	}

	err := fn(ctx)
	if err == nil {
		return nil
	}
	var fe *forecast.Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return forecast.WrapError(forecast.KindDataUnavailable, op+" timed out", err)
	}
	return forecast.WrapError(forecast.KindDataUnavailable, op+" failed", err)
}

func (s *PredictionService) log(ctx context.Context) *zap.Logger {
	l := logger.WithTraceContext(ctx, s.logger)
	if id := logger.GetRequestID(ctx); id != "" {
		l = l.With(zap.String("request_id", id))
	}
	return l
}

// atIndex tags err with a batch index when serving a batch
func atIndex(err error, i int, batch bool) error {
	if !batch {
		return err
	}
	var fe *forecast.Error
	if errors.As(err, &fe) {
		return fe.AtIndex(i)
	}
	return forecast.WrapError(forecast.KindDataUnavailable, "lookup failed", err).AtIndex(i)
}
