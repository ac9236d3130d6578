// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/irfanfaraaz/sss-backend/internal/models"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

const sqliteInsertEvent = `
	INSERT INTO indexed_events (position, signature, slot, block_time, mint, event_type)
	VALUES (?, ?, ?, ?, ?, ?)
`

// SQLitePersister keeps the event list in a SQLite table
type SQLitePersister struct {
	sqlPersister
	path string
}

// NewSQLitePersister opens (creating if needed) the database at path and
// applies migrations.
func NewSQLitePersister(ctx context.Context, path string) (*SQLitePersister, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Single writer; one connection avoids SQLITE_BUSY between pool members
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	p := &SQLitePersister{
		sqlPersister: sqlPersister{
			db:         db,
			backend:    "sqlite",
			logger:     utils.ComponentLogger("storage").WithField("backend", "sqlite"),
			migrations: GetSQLiteMigrations(),
		},
		path: path,
	}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	p.logger.WithField("path", path).Info("SQLite database connected")
	return p, nil
}

// Save replaces all rows with events inside one transaction
func (p *SQLitePersister) Save(ctx context.Context, events []models.IndexedEvent) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM indexed_events"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clear events", err.Error())
	}

	stmt, err := tx.PrepareContext(ctx, sqliteInsertEvent)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to prepare statement", err.Error())
	}
	defer stmt.Close()

	for i, ev := range events {
		if _, err := stmt.ExecContext(ctx, rowArgs(i, ev)...); err != nil {
			p.logger.WithFields(logrus.Fields{"signature": ev.Signature, "error": err}).Error("Failed to insert event")
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save event in batch", err.Error())
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit transaction", err.Error())
	}
	return nil
}
