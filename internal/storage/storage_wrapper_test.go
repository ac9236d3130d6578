package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfanfaraaz/sss-backend/internal/metrics"
)

func TestWithMetrics_RecordsOperations(t *testing.T) {
	m := metrics.NewManager()
	persister := &memoryPersister{}
	store := NewEventStore(persister, WithMetrics(m))
	ctx := context.Background()

	store.Load(ctx)
	mustAppend(t, store, event("s1", "M1", 1))
	mustAppend(t, store, event("s2", "M1", 2))

	pm := m.GetPrometheusMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.StorageOperationsTotal.WithLabelValues("load", "memory", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.StorageOperationsTotal.WithLabelValues("save", "memory", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.EventStoreSize))

	persister.saveErr = errors.New("disk full")
	_, err := store.Append(ctx, event("s3", "M1", 3))
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.StorageOperationsTotal.WithLabelValues("save", "memory", "error")))
}

func TestWithMetrics_NilManager(t *testing.T) {
	persister := &memoryPersister{}
	store := NewEventStore(persister, WithMetrics(nil))
	assert.Same(t, Persister(persister), store.persister)
}
