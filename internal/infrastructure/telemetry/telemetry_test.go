package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/erp/salesforecast/internal/domain/forecast"
	"github.com/erp/salesforecast/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// restoreGlobals puts the global providers back after a test replaces them
func restoreGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	mp := otel.GetMeterProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestTracerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	tp, err := NewTracerProvider(ctx, config.TelemetryConfig{ServiceName: "sales-forecast"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	tp.EnableSpanProfiles()
	assert.False(t, tp.SpanProfilesEnabled())
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.ForceFlush(ctx))
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestTracerProvider_ExportsSpans(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()

	tp, err := newTracerProvider(config.TelemetryConfig{
		Enabled:       true,
		ServiceName:   "sales-forecast",
		SamplingRatio: 1,
	}, exporter, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, tp.IsEnabled())

	spanCtx, span := StartServiceSpan(ctx, "prediction", "predict_one", Attr(SpanAttrProductID, int64(7)))
	assert.NotEmpty(t, GetTraceID(spanCtx))
	RecordError(span, errors.New("boom"))
	span.End()

	require.NoError(t, tp.ForceFlush(ctx))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "prediction.predict_one", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.Int64(SpanAttrProductID, 7))
	assert.Equal(t, "boom", spans[0].Status.Description)

	tp.EnableSpanProfiles()
	assert.True(t, tp.SpanProfilesEnabled())
	require.NoError(t, tp.Shutdown(ctx))
}

func TestSampler(t *testing.T) {
	assert.True(t, strings.HasPrefix(sampler(1).Description(), "ParentBased{root:AlwaysOnSampler"))
	assert.True(t, strings.HasPrefix(sampler(0).Description(), "ParentBased{root:AlwaysOffSampler"))
	assert.True(t, strings.HasPrefix(sampler(0.25).Description(), "ParentBased{root:TraceIDRatioBased{0.25}"))
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestAttr(t *testing.T) {
	assert.Equal(t, attribute.String("k", "v"), Attr("k", "v"))
	assert.Equal(t, attribute.Int("k", 3), Attr("k", 3))
	assert.Equal(t, attribute.Float64("k", 1.5), Attr("k", 1.5))
	assert.Equal(t, attribute.Bool("k", true), Attr("k", true))
	assert.Equal(t, attribute.String("k", "lag_rolling_v1"), Attr("k", forecast.SchemaLagRolling))
}

func TestMeterProvider_Disabled(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), config.TelemetryConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumValue(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestPredictionMetrics(t *testing.T) {
	restoreGlobals(t)
	reader := sdkmetric.NewManualReader()
	mp, err := newMeterProvider("sales-forecast", reader, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer mp.Shutdown(context.Background())

	m, err := NewPredictionMetrics(mp.Meter("test"))
	require.NoError(t, err)
	ctx := context.Background()

	m.Record(ctx, OperationPredictMany, "lag_rolling_v1", 3, 20*time.Millisecond, nil)
	m.Record(ctx, OperationPredictOne, "lag_rolling_v1", 1, 5*time.Millisecond, forecast.ProductNotFound(9))

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumValue(t, data["forecast_requests_total"]))
	assert.Equal(t, int64(3), sumValue(t, data["forecast_predictions_total"]))
	assert.Equal(t, int64(1), sumValue(t, data["forecast_failures_total"]))

	failures := data["forecast_failures_total"].(metricdata.Sum[int64])
	kind, ok := failures.DataPoints[0].Attributes.Value(AttrErrorKind)
	require.True(t, ok)
	assert.Equal(t, "PRODUCT_NOT_FOUND", kind.AsString())

	hist, ok := data["forecast_batch_size"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestPredictionMetrics_NilIsNoop(t *testing.T) {
	var m *PredictionMetrics
	assert.NotPanics(t, func() {
		m.Record(context.Background(), OperationPredictOne, "lag_rolling_v1", 1, time.Millisecond, nil)
	})
}

func TestLoggerProvider(t *testing.T) {
	t.Run("disabled bridge has no core", func(t *testing.T) {
		lp, err := NewLoggerProvider(context.Background(), config.TelemetryConfig{}, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.False(t, lp.IsEnabled())
		assert.Nil(t, lp.Core(zapcore.InfoLevel))
		assert.NoError(t, lp.Shutdown(context.Background()))
	})

	t.Run("bridge filters by level", func(t *testing.T) {
		exporter := &recordingExporter{}
		lp, err := newLoggerProvider("sales-forecast", sdklog.NewSimpleProcessor(exporter), zaptest.NewLogger(t))
		require.NoError(t, err)

		core := lp.Core(zapcore.WarnLevel)
		require.NotNil(t, core)
		assert.False(t, core.Enabled(zapcore.InfoLevel))
		assert.True(t, core.Enabled(zapcore.ErrorLevel))

		l := zap.New(core).With(zap.String("component", "test"))
		l.Info("dropped")
		l.Warn("exported")
		require.NoError(t, lp.Shutdown(context.Background()))

		require.Len(t, exporter.records, 1)
		assert.Equal(t, "exported", exporter.records[0].Body().AsString())
	})
}

type recordingExporter struct {
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func TestProfiler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		p, err := NewProfiler(config.ProfilingConfig{}, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.False(t, p.IsEnabled())
		assert.NoError(t, p.Stop())
		assert.NoError(t, p.Stop())
	})

	t.Run("enabled without server", func(t *testing.T) {
		_, err := NewProfiler(config.ProfilingConfig{Enabled: true}, zaptest.NewLogger(t))
		assert.Error(t, err)
	})

	t.Run("profile types", func(t *testing.T) {
		assert.Len(t, profileTypes(config.ProfilingConfig{}), 3)
		assert.Len(t, profileTypes(config.ProfilingConfig{ProfileAllocations: true, ProfileGoroutines: true}), 6)
	})
}
