package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfanfaraaz/sss-backend/internal/config"
	"github.com/irfanfaraaz/sss-backend/internal/models"
)

func TestSQLitePersister(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	p, err := NewSQLitePersister(ctx, path)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "sqlite", p.Backend())

	got, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	bt := int64(1700000000)
	first := []models.IndexedEvent{
		{Signature: "s2", Slot: 20, BlockTime: &bt, Mint: "M", EventType: models.EventTypeSeize},
		{Signature: "s1", Slot: 10, EventType: models.EventTypeTransaction},
	}
	require.NoError(t, p.Save(ctx, first))

	got, err = p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	// a save replaces the whole table
	second := []models.IndexedEvent{
		{Signature: "s3", Slot: 30, Mint: "M", EventType: models.EventTypeMint},
		first[0],
	}
	require.NoError(t, p.Save(ctx, second))

	got, err = p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestNewPersisterFactory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	p, err := NewPersister(ctx, &config.StorageConfig{Type: "file", DataDir: dir})
	require.NoError(t, err)
	fp, ok := p.(*FilePersister)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "data", "events.json"), fp.Path())

	p, err = NewPersister(ctx, &config.StorageConfig{Type: "sqlite", ConnectionString: filepath.Join(dir, "x.db")})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", p.Backend())
	require.NoError(t, p.Close())

	_, err = NewPersister(ctx, &config.StorageConfig{Type: "mongo"})
	assert.ErrorIs(t, err, ErrUnsupportedBackend)
}

func TestNewEventStoreFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := &config.StorageConfig{Type: "sqlite", ConnectionString: filepath.Join(t.TempDir(), "e.db"), Capacity: 2, QueryMaxLimit: 10}

	store, err := NewEventStoreFromConfig(ctx, cfg)
	require.NoError(t, err)
	mustAppend(t, store, event("a", "M", 1))
	mustAppend(t, store, event("b", "M", 2))
	mustAppend(t, store, event("c", "M", 3))
	require.NoError(t, store.Close())

	reopened, err := NewEventStoreFromConfig(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, []string{"c", "b"}, signatures(reopened.Query(models.EventFilter{})))
	assert.Equal(t, 2, reopened.Capacity())
}

func TestValidateStorageConfig(t *testing.T) {
	assert.NoError(t, ValidateStorageConfig(&config.StorageConfig{Type: "file", DataDir: "/tmp"}))
	assert.Error(t, ValidateStorageConfig(&config.StorageConfig{Type: "postgres"}))
	assert.Error(t, ValidateStorageConfig(&config.StorageConfig{Type: "redis"}))
}
