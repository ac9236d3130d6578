// File: internal/storage/file.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/irfanfaraaz/sss-backend/internal/models"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

// FilePersister keeps the event list as a single JSON array on disk
type FilePersister struct {
	path string
}

// NewFilePersister creates a persister writing to path
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Path returns the events file location
func (f *FilePersister) Path() string {
	return f.path
}

// Backend returns the backend name
func (f *FilePersister) Backend() string {
	return "file"
}

// Load reads the events file. A missing or empty file yields no events.
func (f *FilePersister) Load(_ context.Context) ([]models.IndexedEvent, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read events file", err.Error())
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var events []models.IndexedEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Malformed events file", err.Error())
	}
	return events, nil
}

// Save rewrites the events file through a temp file and rename so a crash
// never leaves a truncated file behind.
func (f *FilePersister) Save(_ context.Context, events []models.IndexedEvent) error {
	if events == nil {
		events = []models.IndexedEvent{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal events", err.Error())
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create data directory", err.Error())
	}

	tmp, err := os.CreateTemp(dir, ".events-*.json")
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create temp events file", err.Error())
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to write events file", err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to close events file", err.Error())
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to replace events file", err.Error())
	}
	return nil
}

// Close is a no-op for files
func (f *FilePersister) Close() error {
	return nil
}
