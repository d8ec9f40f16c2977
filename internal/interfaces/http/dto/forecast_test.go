package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/erp/salesforecast/internal/domain/forecast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictRequest_ToDomain(t *testing.T) {
	price := 18.5
	qty := int64(3)
	req := PredictRequest{ProductID: 1, UnitPrice: &price, OrderDate: "2024-07-15", Quantity: &qty}

	got := req.ToDomain()
	assert.Equal(t, forecast.PredictionRequest{ProductID: 1, UnitPrice: 18.5, OrderDate: "2024-07-15", Quantity: &qty}, got)
}

func TestNewBatchPredictionItems(t *testing.T) {
	reqs := []forecast.PredictionRequest{{ProductID: 1, UnitPrice: 18, OrderDate: "2024-07-15"}}
	results := []forecast.PredictionResult{{
		PredictedValue: 12.5,
		Features: forecast.FeatureVector{
			Schema: forecast.SchemaLagRolling,
			Names:  []string{"month"},
			Values: []float64{7},
		},
	}}

	items := NewBatchPredictionItems(reqs, results)
	require.Len(t, items, 1)

	data, err := json.Marshal(items[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"input": {"product_id": 1, "order_date": "2024-07-15", "unit_price": 18},
		"predicted_value": 12.5,
		"features_used": {"month": 7}
	}`, string(data))
}

func TestModelResponseJSON(t *testing.T) {
	data, err := json.Marshal(ModelResponse{
		Schema:    "lag_rolling_v1",
		TrainedAt: time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		Metrics:   ModelMetrics{R2: 0.8},
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"trained_at":"2024-08-01T00:00:00Z"`)
	assert.Contains(t, string(data), `"r2":0.8`)
}
