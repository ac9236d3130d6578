// File: internal/storage/sql.go
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/irfanfaraaz/sss-backend/internal/models"
	"github.com/irfanfaraaz/sss-backend/pkg/utils"
)

const selectEventsQuery = `
	SELECT signature, slot, block_time, mint, event_type
	FROM indexed_events
	ORDER BY position ASC
`

// sqlPersister holds the parts shared by the SQL backends
type sqlPersister struct {
	db         *sql.DB
	backend    string
	logger     *logrus.Entry
	migrations []*Migration
}

// migrate applies the schema scripts in order
func (s *sqlPersister) migrate(ctx context.Context) error {
	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.ExecContext(ctx, migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}
	return nil
}

// Load reads all rows ordered by position
func (s *sqlPersister) Load(ctx context.Context) ([]models.IndexedEvent, error) {
	rows, err := s.db.QueryContext(ctx, selectEventsQuery)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query events", err.Error())
	}
	defer rows.Close()

	var events []models.IndexedEvent
	for rows.Next() {
		var (
			ev        models.IndexedEvent
			slot      int64
			blockTime sql.NullInt64
			mint      sql.NullString
			eventType string
		)
		if err := rows.Scan(&ev.Signature, &slot, &blockTime, &mint, &eventType); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan event", err.Error())
		}
		ev.Slot = uint64(slot)
		if blockTime.Valid {
			bt := blockTime.Int64
			ev.BlockTime = &bt
		}
		ev.Mint = mint.String
		ev.EventType = models.EventType(eventType)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to iterate events", err.Error())
	}
	return events, nil
}

// Backend returns the backend name
func (s *sqlPersister) Backend() string {
	return s.backend
}

// Close closes the database connection
func (s *sqlPersister) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.logger.Info("Database connection closed")
	return err
}

// rowArgs converts an event into column values
func rowArgs(position int, ev models.IndexedEvent) []interface{} {
	var blockTime sql.NullInt64
	if ev.BlockTime != nil {
		blockTime = sql.NullInt64{Int64: *ev.BlockTime, Valid: true}
	}
	mint := sql.NullString{String: ev.Mint, Valid: ev.Mint != ""}
	return []interface{}{int64(position), ev.Signature, int64(ev.Slot), blockTime, mint, string(ev.EventType)}
}
