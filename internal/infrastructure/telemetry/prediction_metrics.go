package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/erp/salesforecast/internal/domain/forecast"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Operation names recorded with prediction metrics
const (
	OperationPredictOne  = "predict_one"
	OperationPredictMany = "predict_many"
)

// PredictionMetrics records prediction throughput, latency and failures.
// A nil *PredictionMetrics records nothing.
type PredictionMetrics struct {
	requests    *Counter
	predictions *Counter
	failures    *Counter
	latency     *Histogram
	batchSize   *Histogram
}

// NewPredictionMetrics registers the prediction instruments on meter
func NewPredictionMetrics(meter metric.Meter) (*PredictionMetrics, error) {
	requests, err := NewCounter(meter, "forecast_requests_total", "Prediction calls", "{call}")
	if err != nil {
		return nil, err
	}
	predictions, err := NewCounter(meter, "forecast_predictions_total", "Predicted values returned", "{prediction}")
	if err != nil {
		return nil, err
	}
	failures, err := NewCounter(meter, "forecast_failures_total", "Failed prediction calls by error kind", "{call}")
	if err != nil {
		return nil, err
	}
	latency, err := NewHistogram(meter, HistogramOpts{
		Name:        "forecast_prediction_duration_seconds",
		Description: "Prediction call latency including historical lookups",
		Unit:        "s",
		Boundaries:  HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	batchSize, err := NewHistogram(meter, HistogramOpts{
		Name:        "forecast_batch_size",
		Description: "Elements per prediction call",
		Unit:        "{element}",
		Boundaries:  BatchSizeBuckets,
	})
	if err != nil {
		return nil, err
	}

	return &PredictionMetrics{
		requests:    requests,
		predictions: predictions,
		failures:    failures,
		latency:     latency,
		batchSize:   batchSize,
	}, nil
}

// Record records one prediction call of size elements that finished after d
func (m *PredictionMetrics) Record(ctx context.Context, operation, schema string, size int, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrOperation.String(operation), AttrSchema.String(schema)}

	m.requests.Inc(ctx, attrs...)
	m.batchSize.Record(ctx, float64(size), attrs...)
	m.latency.RecordDuration(ctx, d, attrs...)

	if err != nil {
		kind := "unknown"
		var fe *forecast.Error
		if errors.As(err, &fe) {
			kind = string(fe.Kind)
		}
		m.failures.Inc(ctx, append(attrs, AttrErrorKind.String(kind))...)
		return
	}
	m.predictions.Add(ctx, int64(size), attrs...)
}
