// File: internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/irfanfaraaz/sss-backend/internal/models"
)

// ErrUnsupportedBackend is returned for an unknown storage type
var ErrUnsupportedBackend = errors.New("unsupported storage backend")

// Persister is the durable copy of the event list. Save replaces the whole
// persisted list with events (newest first); Load returns it in the same order.
// Implementations must not retain the slice passed to Save.
type Persister interface {
	Load(ctx context.Context) ([]models.IndexedEvent, error)
	Save(ctx context.Context, events []models.IndexedEvent) error
	Backend() string
	Close() error
}
