package artifact

import (
	"context"
	"fmt"

	"github.com/erp/salesforecast/internal/domain/forecast"
	"github.com/erp/salesforecast/internal/infrastructure/storage"
	"go.uber.org/zap"
)

const contentTypeJSON = "application/json"

// Repository loads and saves the model and encoding documents in a storage.Store
type Repository struct {
	store       storage.Store
	modelKey    string
	encodingKey string
	logger      *zap.Logger
}

// NewRepository creates a Repository over store using the given object keys
func NewRepository(store storage.Store, modelKey, encodingKey string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		store:       store,
		modelKey:    modelKey,
		encodingKey: encodingKey,
		logger:      logger,
	}
}

// LoadModel reads the model document and validates it against schema
func (r *Repository) LoadModel(ctx context.Context, schema forecast.Schema) (*TrainedModel, error) {
	data, err := r.store.Get(ctx, r.modelKey)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	tm, err := DecodeModel(data, schema)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", r.modelKey, err)
	}
	r.logger.Info("Model loaded",
		zap.String("key", r.modelKey),
		zap.String("schema", string(tm.Info.Schema)),
		zap.Stringer("training_run_id", tm.Info.TrainingRunID),
		zap.Time("trained_at", tm.Info.TrainedAt),
	)
	return tm, nil
}

// LoadEncoding reads the encoding document and validates it against schema
func (r *Repository) LoadEncoding(ctx context.Context, schema forecast.Schema) (*forecast.Encoding, error) {
	data, err := r.store.Get(ctx, r.encodingKey)
	if err != nil {
		return nil, fmt.Errorf("load encoding: %w", err)
	}
	enc, err := DecodeEncoding(data, schema)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", r.encodingKey, err)
	}
	r.logger.Info("Encoding loaded",
		zap.String("key", r.encodingKey),
		zap.String("run_id", enc.RunID),
		zap.Int("products", enc.Products.Len()),
		zap.Int("countries", enc.Countries.Len()),
	)
	return enc, nil
}

// SaveModel writes the model document
func (r *Repository) SaveModel(ctx context.Context, tm *TrainedModel) error {
	data, err := EncodeModel(tm)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, r.modelKey, data, contentTypeJSON); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

// SaveEncoding writes the encoding document
func (r *Repository) SaveEncoding(ctx context.Context, enc *forecast.Encoding) error {
	data, err := EncodeEncoding(enc)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, r.encodingKey, data, contentTypeJSON); err != nil {
		return fmt.Errorf("save encoding: %w", err)
	}
	return nil
}
