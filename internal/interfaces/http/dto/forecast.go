package dto

import (
	"time"

	"github.com/erp/salesforecast/internal/domain/forecast"
)

// PredictRequest is the body of a single prediction
type PredictRequest struct {
	ProductID int64    `json:"product_id" binding:"required,gt=0"`
	UnitPrice *float64 `json:"unit_price" binding:"required,gte=0"`
	OrderDate string   `json:"order_date" binding:"required"`
	Quantity  *int64   `json:"quantity" binding:"omitempty,gte=0"`
}

// ToDomain converts the request to a forecast.PredictionRequest
func (r PredictRequest) ToDomain() forecast.PredictionRequest {
	req := forecast.PredictionRequest{
		ProductID: r.ProductID,
		OrderDate: r.OrderDate,
		Quantity:  r.Quantity,
	}
	if r.UnitPrice != nil {
		req.UnitPrice = *r.UnitPrice
	}
	return req
}

// PredictionResponse is one prediction with the features it was computed from
type PredictionResponse struct {
	PredictedValue float64            `json:"predicted_value"`
	FeaturesUsed   map[string]float64 `json:"features_used"`
}

// NewPredictionResponse converts a forecast result
func NewPredictionResponse(res forecast.PredictionResult) PredictionResponse {
	return PredictionResponse{
		PredictedValue: res.PredictedValue,
		FeaturesUsed:   res.Features.Map(),
	}
}

// PredictionInput echoes the request fields of a batch element
type PredictionInput struct {
	ProductID int64   `json:"product_id"`
	OrderDate string  `json:"order_date"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  *int64  `json:"quantity,omitempty"`
}

// BatchPredictionItem is one element of a batch response
type BatchPredictionItem struct {
	Input PredictionInput `json:"input"`
	PredictionResponse
}

// NewBatchPredictionItems pairs each result with the request it answers
func NewBatchPredictionItems(reqs []forecast.PredictionRequest, results []forecast.PredictionResult) []BatchPredictionItem {
	items := make([]BatchPredictionItem, len(results))
	for i, res := range results {
		req := reqs[i]
		items[i] = BatchPredictionItem{
			Input: PredictionInput{
				ProductID: req.ProductID,
				OrderDate: req.OrderDate,
				UnitPrice: req.UnitPrice,
				Quantity:  req.Quantity,
			},
			PredictionResponse: NewPredictionResponse(res),
		}
	}
	return items
}

// ModelMetrics are the held out scores recorded at training time
type ModelMetrics struct {
	R2        float64 `json:"r2"`
	RMSE      float64 `json:"rmse"`
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
}

// ModelResponse describes the model being served
type ModelResponse struct {
	Schema        string       `json:"schema"`
	FeatureNames  []string     `json:"feature_names"`
	TrainedAt     time.Time    `json:"trained_at"`
	TrainingRunID string       `json:"training_run_id"`
	Metrics       ModelMetrics `json:"metrics"`
	EncodingRunID string       `json:"encoding_run_id"`
	Products      int          `json:"products"`
	Countries     int          `json:"countries"`
}
