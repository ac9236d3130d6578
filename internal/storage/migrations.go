package storage

// Migration represents a schema step applied on connect
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create indexed_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS indexed_events (
					position INTEGER PRIMARY KEY,
					signature TEXT NOT NULL UNIQUE,
					slot INTEGER NOT NULL,
					block_time INTEGER,
					mint TEXT,
					event_type TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_indexed_events_mint ON indexed_events(mint);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create indexed_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS indexed_events (
					position INTEGER PRIMARY KEY,
					signature TEXT NOT NULL UNIQUE,
					slot BIGINT NOT NULL,
					block_time BIGINT,
					mint TEXT,
					event_type TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_indexed_events_mint ON indexed_events(mint);
			`,
		},
	}
}
