// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/irfanfaraaz/sss-backend/internal/models"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

// PostgresPersister keeps the event list in a PostgreSQL table
type PostgresPersister struct {
	sqlPersister
}

// NewPostgresPersister connects to PostgreSQL and applies migrations
func NewPostgresPersister(ctx context.Context, connectionString string, maxConnections int) (*PostgresPersister, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}
	if maxConnections > 0 {
		db.SetMaxOpenConns(maxConnections)
		db.SetMaxIdleConns(maxConnections / 2)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p := NewPostgresPersisterWithDB(db)
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	p.logger.Info("PostgreSQL database connected")
	return p, nil
}

// NewPostgresPersisterWithDB wraps an open connection without migrating
func NewPostgresPersisterWithDB(db *sql.DB) *PostgresPersister {
	return &PostgresPersister{
		sqlPersister: sqlPersister{
			db:         db,
			backend:    "postgres",
			logger:     utils.ComponentLogger("storage").WithField("backend", "postgres"),
			migrations: GetPostgresMigrations(),
		},
	}
}

// Save replaces all rows with events using COPY inside one transaction
func (p *PostgresPersister) Save(ctx context.Context, events []models.IndexedEvent) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM indexed_events"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clear events", err.Error())
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("indexed_events",
		"position", "signature", "slot", "block_time", "mint", "event_type"))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to prepare copy", err.Error())
	}
	defer stmt.Close()

	for i, ev := range events {
		if _, err := stmt.ExecContext(ctx, rowArgs(i, ev)...); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to copy event", err.Error())
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to flush copy", err.Error())
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit transaction", err.Error())
	}
	return nil
}
