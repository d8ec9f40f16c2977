// Package storage provides artifact storage backends for trained models and encodings.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/salesforecast/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ErrNotFound is returned when an artifact key has no object behind it
var ErrNotFound = errors.New("artifact not found")

// Backend names accepted in artifacts.backend
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Store reads and writes named artifacts
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Open returns the Store selected by cfg.Artifacts.Backend
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Artifacts.Backend {
	case BackendLocal, "":
		return NewLocalStore(cfg.Artifacts.Dir)
	case BackendS3:
		s, err := NewS3Store(&cfg.Storage, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown artifacts backend %q", cfg.Artifacts.Backend)
	}
}
