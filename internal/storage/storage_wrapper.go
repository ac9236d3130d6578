package storage

import (
	"context"
	"time"

	"github.com/irfanfaraaz/sss-backend/internal/metrics"
	"github.com/irfanfaraaz/sss-backend/internal/models"
)

// PersisterWithMetrics wraps a persister with metrics
type PersisterWithMetrics struct {
	Persister
	metricsManager *metrics.Manager
}

// NewPersisterWithMetrics creates a persister wrapper with metrics
func NewPersisterWithMetrics(persister Persister, metricsManager *metrics.Manager) *PersisterWithMetrics {
	return &PersisterWithMetrics{
		Persister:      persister,
		metricsManager: metricsManager,
	}
}

// Load loads events and records metrics
func (p *PersisterWithMetrics) Load(ctx context.Context) ([]models.IndexedEvent, error) {
	start := time.Now()
	events, err := p.Persister.Load(ctx)
	p.record("load", err, start)
	return events, err
}

// Save saves events and records metrics
func (p *PersisterWithMetrics) Save(ctx context.Context, events []models.IndexedEvent) error {
	start := time.Now()
	err := p.Persister.Save(ctx, events)
	p.record("save", err, start)
	if err == nil && p.metricsManager != nil {
		p.metricsManager.GetPrometheusMetrics().UpdateEventStoreSize(len(events))
	}
	return err
}

func (p *PersisterWithMetrics) record(operation string, err error, start time.Time) {
	if p.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metricsManager.GetPrometheusMetrics().RecordStorageOperation(
		operation,
		p.Persister.Backend(),
		status,
		time.Since(start),
	)
}

// WithMetrics wraps the store's persister so loads and saves are measured
func WithMetrics(m *metrics.Manager) EventStoreOption {
	return func(s *EventStore) {
		if m != nil {
			s.persister = NewPersisterWithMetrics(s.persister, m)
		}
	}
}
