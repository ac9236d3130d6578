// File: internal/storage/factory.go
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/irfanfaraaz/sss-backend/internal/config"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

// NewPersister creates the persistence backend selected by configuration
func NewPersister(ctx context.Context, cfg *config.StorageConfig) (Persister, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "file":
		return NewFilePersister(cfg.EventsFile()), nil
	case "sqlite":
		return NewSQLitePersister(ctx, cfg.ConnectionString)
	case "postgres", "postgresql":
		return NewPostgresPersister(ctx, cfg.ConnectionString, cfg.MaxConnections)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, cfg.Type)
	}
}

// NewEventStoreFromConfig builds a persister and an EventStore around it,
// restoring the persisted events.
func NewEventStoreFromConfig(ctx context.Context, cfg *config.StorageConfig, opts ...EventStoreOption) (*EventStore, error) {
	persister, err := NewPersister(ctx, cfg)
	if err != nil {
		return nil, err
	}

	base := []EventStoreOption{WithCapacity(cfg.Capacity), WithQueryMaxLimit(cfg.QueryMaxLimit)}
	store := NewEventStore(persister, append(base, opts...)...)
	store.Load(ctx)
	return store, nil
}

// ValidateStorageConfig validates storage configuration
func ValidateStorageConfig(cfg *config.StorageConfig) error {
	switch strings.ToLower(cfg.Type) {
	case "", "file":
		if cfg.DataDir == "" {
			return utils.NewAppError(utils.ErrCodeConfiguration, "Data directory is required for file storage")
		}
	case "sqlite", "postgres", "postgresql":
		if cfg.ConnectionString == "" {
			return utils.NewAppError(utils.ErrCodeConfiguration, "Storage connection string is required", cfg.Type)
		}
	default:
		return utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported storage type",
			"Supported types: file, sqlite, postgres")
	}
	return nil
}
