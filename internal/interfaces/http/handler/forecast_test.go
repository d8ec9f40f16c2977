package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erp/salesforecast/internal/domain/forecast"
	"github.com/erp/salesforecast/internal/infrastructure/artifact"
	"github.com/erp/salesforecast/internal/infrastructure/regression"
	"github.com/erp/salesforecast/internal/interfaces/http/dto"
	"github.com/erp/salesforecast/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPredictor struct {
	mock.Mock
}

func (m *mockPredictor) PredictOne(ctx context.Context, req forecast.PredictionRequest) (*forecast.PredictionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forecast.PredictionResult), args.Error(1)
}

func (m *mockPredictor) PredictMany(ctx context.Context, reqs []forecast.PredictionRequest) ([]forecast.PredictionResult, error) {
	args := m.Called(ctx, reqs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]forecast.PredictionResult), args.Error(1)
}

func (m *mockPredictor) Schema() forecast.Schema {
	return forecast.SchemaLagRolling
}

func lagResult(value float64, values ...float64) forecast.PredictionResult {
	return forecast.PredictionResult{
		PredictedValue: value,
		Features: forecast.FeatureVector{
			Schema: forecast.SchemaLagRolling,
			Names:  forecast.SchemaLagRolling.FeatureNames(),
			Values: values,
		},
	}
}

func modelInfo() artifact.ModelInfo {
	return artifact.ModelInfo{
		Schema:        forecast.SchemaLagRolling,
		FeatureNames:  forecast.SchemaLagRolling.FeatureNames(),
		TrainedAt:     time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC),
		TrainingRunID: uuid.MustParse("6f1c1a9e-8d0b-4c1e-9a57-3b5f1f8d2c11"),
		Metrics:       regression.Metrics{R2: 0.81, RMSE: 12.5, TrainRows: 80, TestRows: 20},
	}
}

func setupForecastRouter(p Predictor, maxBatch int) *gin.Engine {
	h := NewForecastHandler(p, modelInfo(), &forecast.Encoding{
		Schema:   forecast.SchemaLagRolling,
		RunID:    "run-7",
		Products: forecast.NewCategoryMap(forecast.EntityProduct, []string{"Chai", "Chang"}),
	}, maxBatch)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.BodyLimit(4096))
	g := r.Group("/api/v1/forecast")
	g.POST("/predict", h.Predict)
	g.POST("/predict/batch", h.PredictBatch)
	g.GET("/model", h.GetModel)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestForecastHandler_Predict(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		p := new(mockPredictor)
		qty := int64(3)
		p.On("PredictOne", mock.Anything, forecast.PredictionRequest{
			ProductID: 1, UnitPrice: 18, OrderDate: "2024-07-15", Quantity: &qty,
		}).Return(&forecast.PredictionResult{
			PredictedValue: 123.46,
			Features:       lagResult(0, 202407, 0, 18, 7, 30, 20).Features,
		}, nil)

		w := serve(setupForecastRouter(p, 10), http.MethodPost, "/api/v1/forecast/predict",
			`{"product_id":1,"unit_price":18,"order_date":"2024-07-15","quantity":3}`)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)
		data := resp.Data.(map[string]any)
		assert.Equal(t, 123.46, data["predicted_value"])
		features := data["features_used"].(map[string]any)
		assert.Equal(t, 202407.0, features[forecast.FeaturePeriodNumber])
		assert.Equal(t, 20.0, features[forecast.FeatureRollingMean3])
		p.AssertExpectations(t)
	})

	t.Run("validation failure never reaches the service", func(t *testing.T) {
		p := new(mockPredictor)
		w := serve(setupForecastRouter(p, 10), http.MethodPost, "/api/v1/forecast/predict",
			`{"product_id":0,"order_date":"2024-07-15"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		fields := map[string]bool{}
		for _, d := range resp.Error.Details {
			fields[d.Field] = true
		}
		assert.True(t, fields["product_id"])
		assert.True(t, fields["unit_price"])
		p.AssertNotCalled(t, "PredictOne", mock.Anything, mock.Anything)
	})

	t.Run("malformed json", func(t *testing.T) {
		w := serve(setupForecastRouter(new(mockPredictor), 10), http.MethodPost, "/api/v1/forecast/predict", `{"product_id":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, decodeResponse(t, w).Error.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		body := `{"product_id":1,"unit_price":1,"order_date":"` + strings.Repeat("x", 5000) + `"}`
		w := serve(setupForecastRouter(new(mockPredictor), 10), http.MethodPost, "/api/v1/forecast/predict", body)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("service error is mapped by kind", func(t *testing.T) {
		p := new(mockPredictor)
		p.On("PredictOne", mock.Anything, mock.Anything).Return(nil, forecast.ProductNotFound(42))

		w := serve(setupForecastRouter(p, 10), http.MethodPost, "/api/v1/forecast/predict",
			`{"product_id":42,"unit_price":10,"order_date":"2024-07-15"}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeProductNotFound, resp.Error.Code)
		assert.Nil(t, resp.Error.Index)
		assert.NotEmpty(t, resp.Error.RequestID)
	})
}

func TestForecastHandler_PredictBatch(t *testing.T) {
	t.Run("results keep input order", func(t *testing.T) {
		p := new(mockPredictor)
		p.On("PredictMany", mock.Anything, []forecast.PredictionRequest{
			{ProductID: 2, UnitPrice: 19, OrderDate: "2024-07-15"},
			{ProductID: 1, UnitPrice: 18, OrderDate: "2024-08-01"},
		}).Return([]forecast.PredictionResult{
			lagResult(10, 202407, 1, 19, 7, 0, 0),
			lagResult(20, 202408, 0, 18, 8, 0, 0),
		}, nil)

		w := serve(setupForecastRouter(p, 10), http.MethodPost, "/api/v1/forecast/predict/batch",
			`[{"product_id":2,"unit_price":19,"order_date":"2024-07-15"},{"product_id":1,"unit_price":18,"order_date":"2024-08-01"}]`)

		require.Equal(t, http.StatusOK, w.Code)
		items := decodeResponse(t, w).Data.([]any)
		require.Len(t, items, 2)
		first := items[0].(map[string]any)
		assert.Equal(t, 10.0, first["predicted_value"])
		assert.Equal(t, 2.0, first["input"].(map[string]any)["product_id"])
		second := items[1].(map[string]any)
		assert.Equal(t, "2024-08-01", second["input"].(map[string]any)["order_date"])
		p.AssertExpectations(t)
	})

	t.Run("failing element index is reported", func(t *testing.T) {
		p := new(mockPredictor)
		p.On("PredictMany", mock.Anything, mock.Anything).
			Return(nil, forecast.InvalidDate("2024-13-01").AtIndex(1))

		w := serve(setupForecastRouter(p, 10), http.MethodPost, "/api/v1/forecast/predict/batch",
			`[{"product_id":1,"unit_price":18,"order_date":"2024-07-15"},{"product_id":1,"unit_price":18,"order_date":"2024-13-01"}]`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeInvalidDate, resp.Error.Code)
		require.NotNil(t, resp.Error.Index)
		assert.Equal(t, 1, *resp.Error.Index)
	})

	t.Run("element validation names the element", func(t *testing.T) {
		p := new(mockPredictor)
		w := serve(setupForecastRouter(p, 10), http.MethodPost, "/api/v1/forecast/predict/batch",
			`[{"product_id":1,"unit_price":18,"order_date":"2024-07-15"},{"product_id":1,"unit_price":18}]`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "[1].order_date", resp.Error.Details[0].Field)
		p.AssertNotCalled(t, "PredictMany", mock.Anything, mock.Anything)
	})

	t.Run("batch size bounds", func(t *testing.T) {
		r := setupForecastRouter(new(mockPredictor), 2)
		item := `{"product_id":1,"unit_price":18,"order_date":"2024-07-15"}`

		w := serve(r, http.MethodPost, "/api/v1/forecast/predict/batch", `[]`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidInput, decodeResponse(t, w).Error.Code)

		w = serve(r, http.MethodPost, "/api/v1/forecast/predict/batch", "["+item+","+item+","+item+"]")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeResponse(t, w).Error.Message, "limit of 2")
	})

	t.Run("body must be an array", func(t *testing.T) {
		w := serve(setupForecastRouter(new(mockPredictor), 10), http.MethodPost, "/api/v1/forecast/predict/batch",
			`{"product_id":1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, decodeResponse(t, w).Error.Code)
	})

	t.Run("trailing data after the array", func(t *testing.T) {
		batch := `[{"product_id":1,"unit_price":18,"order_date":"2024-07-15"}]`
		for _, body := range []string{batch + "garbage", batch + `{"product_id":2}`, batch + batch} {
			p := new(mockPredictor)
			w := serve(setupForecastRouter(p, 10), http.MethodPost, "/api/v1/forecast/predict/batch", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
			assert.Equal(t, dto.ErrCodeInvalidJSON, decodeResponse(t, w).Error.Code, body)
			p.AssertNotCalled(t, "PredictMany", mock.Anything, mock.Anything)
		}
	})

	t.Run("trailing whitespace is accepted", func(t *testing.T) {
		p := new(mockPredictor)
		p.On("PredictMany", mock.Anything, mock.Anything).
			Return([]forecast.PredictionResult{lagResult(10, 202407, 0, 18, 7, 0, 0)}, nil)

		w := serve(setupForecastRouter(p, 10), http.MethodPost, "/api/v1/forecast/predict/batch",
			"[{\"product_id\":1,\"unit_price\":18,\"order_date\":\"2024-07-15\"}]\n  ")
		assert.Equal(t, http.StatusOK, w.Code)
		p.AssertExpectations(t)
	})
}

func TestForecastHandler_GetModel(t *testing.T) {
	w := serve(setupForecastRouter(new(mockPredictor), 10), http.MethodGet, "/api/v1/forecast/model", "")

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "lag_rolling_v1", data["schema"])
	assert.Len(t, data["feature_names"], 6)
	assert.Equal(t, "6f1c1a9e-8d0b-4c1e-9a57-3b5f1f8d2c11", data["training_run_id"])
	assert.Equal(t, "run-7", data["encoding_run_id"])
	assert.Equal(t, 2.0, data["products"])
	assert.Equal(t, 0.0, data["countries"])
	assert.Equal(t, 0.81, data["metrics"].(map[string]any)["r2"])
}

func TestNewForecastHandler_DefaultBatchLimit(t *testing.T) {
	h := NewForecastHandler(new(mockPredictor), modelInfo(), nil, 0)
	assert.Equal(t, DefaultMaxBatchSize, h.maxBatch)
	assert.Empty(t, h.model.EncodingRunID)
}
