// Package artifact encodes, validates and stores the trained model and the
// categorical encoding as versioned JSON documents.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/erp/salesforecast/internal/domain/forecast"
	"github.com/erp/salesforecast/internal/infrastructure/regression"
	"github.com/google/uuid"
)

// FormatVersion is the document version written by this package
const FormatVersion = 1

// ErrCorrupt marks an artifact that cannot be decoded or fails validation
var ErrCorrupt = errors.New("corrupt artifact")

// MetricsDocument is the wire form of held out evaluation metrics
type MetricsDocument struct {
	R2        float64 `json:"r2"`
	RMSE      float64 `json:"rmse"`
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
}

// ModelDocument is the wire form of a fitted linear model
type ModelDocument struct {
	FormatVersion int             `json:"format_version"`
	Schema        string          `json:"schema"`
	FeatureNames  []string        `json:"feature_names"`
	Intercept     float64         `json:"intercept"`
	Coefficients  []float64       `json:"coefficients"`
	TrainedAt     time.Time       `json:"trained_at"`
	TrainingRunID uuid.UUID       `json:"training_run_id"`
	Metrics       MetricsDocument `json:"metrics"`
}

// ModelInfo is the metadata recorded with a model at fit time
type ModelInfo struct {
	Schema        forecast.Schema
	FeatureNames  []string
	TrainedAt     time.Time
	TrainingRunID uuid.UUID
	Metrics       regression.Metrics
}

// TrainedModel pairs a model with its fit metadata
type TrainedModel struct {
	Model *regression.LinearModel
	Info  ModelInfo
}

// EncodeModel renders a trained model as an indented JSON document
func EncodeModel(tm *TrainedModel) ([]byte, error) {
	if tm == nil || tm.Model == nil {
		return nil, errors.New("artifact: model is required")
	}
	doc := ModelDocument{
		FormatVersion: FormatVersion,
		Schema:        string(tm.Model.Schema()),
		FeatureNames:  tm.Model.FeatureNames(),
		Intercept:     tm.Model.Intercept(),
		Coefficients:  tm.Model.Coefficients(),
		TrainedAt:     tm.Info.TrainedAt.UTC(),
		TrainingRunID: tm.Info.TrainingRunID,
		Metrics: MetricsDocument{
			R2:        tm.Info.Metrics.R2,
			RMSE:      tm.Info.Metrics.RMSE,
			TrainRows: tm.Info.Metrics.TrainRows,
			TestRows:  tm.Info.Metrics.TestRows,
		},
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeModel parses a model document and checks it against the feature layout
// of schema. The declared schema must equal schema.
func DecodeModel(data []byte, schema forecast.Schema) (*TrainedModel, error) {
	var doc ModelDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: model: %v", ErrCorrupt, err)
	}
	if doc.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: model format version %d, want %d", ErrCorrupt, doc.FormatVersion, FormatVersion)
	}

	declared, err := forecast.ParseSchema(doc.Schema)
	if err != nil {
		return nil, fmt.Errorf("%w: model: %v", ErrCorrupt, err)
	}
	if declared != schema {
		return nil, forecast.SchemaMismatch(fmt.Sprintf("model was trained for %s, deployment serves %s", declared, schema))
	}
	if len(doc.Coefficients) != declared.Dim() {
		return nil, forecast.SchemaMismatch(fmt.Sprintf("model has %d coefficients, %s needs %d",
			len(doc.Coefficients), declared, declared.Dim()))
	}
	if !slices.Equal(doc.FeatureNames, declared.FeatureNames()) {
		return nil, forecast.SchemaMismatch(fmt.Sprintf("model feature names %v differ from %s", doc.FeatureNames, declared))
	}

	model, err := regression.NewLinearModel(declared, doc.FeatureNames, doc.Intercept, doc.Coefficients)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return &TrainedModel{
		Model: model,
		Info: ModelInfo{
			Schema:        declared,
			FeatureNames:  model.FeatureNames(),
			TrainedAt:     doc.TrainedAt,
			TrainingRunID: doc.TrainingRunID,
			Metrics: regression.Metrics{
				R2:        doc.Metrics.R2,
				RMSE:      doc.Metrics.RMSE,
				TrainRows: doc.Metrics.TrainRows,
				TestRows:  doc.Metrics.TestRows,
			},
		},
	}, nil
}
