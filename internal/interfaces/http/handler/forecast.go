package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/erp/salesforecast/internal/domain/forecast"
	"github.com/erp/salesforecast/internal/infrastructure/artifact"
	"github.com/erp/salesforecast/internal/interfaces/http/dto"
	"github.com/erp/salesforecast/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// DefaultMaxBatchSize bounds a batch when no limit is configured
const DefaultMaxBatchSize = 500

// Predictor computes predictions for the forecast endpoints
type Predictor interface {
	PredictOne(ctx context.Context, req forecast.PredictionRequest) (*forecast.PredictionResult, error)
	PredictMany(ctx context.Context, reqs []forecast.PredictionRequest) ([]forecast.PredictionResult, error)
	Schema() forecast.Schema
}

// ForecastHandler serves predictions over HTTP
type ForecastHandler struct {
	BaseHandler
	predictor Predictor
	model     dto.ModelResponse
	maxBatch  int
}

// NewForecastHandler creates a ForecastHandler. info and enc describe the
// artifacts the predictor was built from and are reported by GET /model.
func NewForecastHandler(predictor Predictor, info artifact.ModelInfo, enc *forecast.Encoding, maxBatch int) *ForecastHandler {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	return &ForecastHandler{
		predictor: predictor,
		model:     newModelResponse(info, enc),
		maxBatch:  maxBatch,
	}
}

func newModelResponse(info artifact.ModelInfo, enc *forecast.Encoding) dto.ModelResponse {
	resp := dto.ModelResponse{
		Schema:        string(info.Schema),
		FeatureNames:  info.FeatureNames,
		TrainedAt:     info.TrainedAt,
		TrainingRunID: info.TrainingRunID.String(),
		Metrics: dto.ModelMetrics{
			R2:        info.Metrics.R2,
			RMSE:      info.Metrics.RMSE,
			TrainRows: info.Metrics.TrainRows,
			TestRows:  info.Metrics.TestRows,
		},
	}
	if enc != nil {
		resp.EncodingRunID = enc.RunID
		if enc.Products != nil {
			resp.Products = enc.Products.Len()
		}
		if enc.Countries != nil {
			resp.Countries = enc.Countries.Len()
		}
	}
	return resp
}

// Predict handles POST /forecast/predict
func (h *ForecastHandler) Predict(c *gin.Context) {
	var req dto.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	res, err := h.predictor.PredictOne(c.Request.Context(), req.ToDomain())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewPredictionResponse(*res))
}

// PredictBatch handles POST /forecast/predict/batch. The body is a JSON array
// of single prediction requests; results keep the order of the input.
func (h *ForecastHandler) PredictBatch(c *gin.Context) {
	var items []dto.PredictRequest
	if err := decodeBatch(c.Request.Body, &items); err != nil {
		h.bindError(c, err)
		return
	}
	if len(items) == 0 {
		h.BadRequest(c, dto.ErrCodeInvalidInput, "batch must contain at least one request")
		return
	}
	if len(items) > h.maxBatch {
		h.BadRequest(c, dto.ErrCodeInvalidInput,
			fmt.Sprintf("batch of %d exceeds the limit of %d", len(items), h.maxBatch))
		return
	}

	reqs := make([]forecast.PredictionRequest, len(items))
	for i, item := range items {
		if err := binding.Validator.ValidateStruct(item); err != nil {
			if details := middleware.ElementValidationDetails(i, err); details != nil {
				h.ValidationError(c, details)
				return
			}
			h.BadRequest(c, dto.ErrCodeBadRequest, err.Error())
			return
		}
		reqs[i] = item.ToDomain()
	}

	results, err := h.predictor.PredictMany(c.Request.Context(), reqs)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewBatchPredictionItems(reqs, results))
}

var errTrailingData = errors.New("unexpected data after the request array")

// decodeBatch reads a JSON array that must make up the whole body
func decodeBatch(r io.Reader, items *[]dto.PredictRequest) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(items); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return err
		}
		return errTrailingData
	}
	return nil
}

// GetModel handles GET /forecast/model
func (h *ForecastHandler) GetModel(c *gin.Context) {
	h.Success(c, h.model)
}

// bindError answers a body that could not be decoded or validated
func (h *ForecastHandler) bindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.ErrorWithCode(c, dto.ErrCodeRequestTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	if details := middleware.ValidationDetails(err); details != nil {
		h.ValidationError(c, details)
		return
	}
	h.BadRequest(c, dto.ErrCodeInvalidJSON, "Request body is not valid JSON")
}
