package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Michiel-H/HuizenZoeker/utils"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS listings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	dedupe_id TEXT NOT NULL,
	source TEXT NOT NULL,
	source_id TEXT,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	raw_location_text TEXT NOT NULL DEFAULT '',
	neighborhood_match TEXT,
	neighborhood_confidence REAL NOT NULL DEFAULT 0.0,
	price_total_eur REAL,
	price_quality TEXT NOT NULL DEFAULT 'UNKNOWN',
	price_includes_service_costs BOOLEAN NOT NULL DEFAULT 0,
	gwl_included BOOLEAN NOT NULL DEFAULT 0,
	area_m2 REAL,
	bedrooms INTEGER,
	property_type TEXT,
	available_from TEXT,
	description_snippet TEXT NOT NULL DEFAULT '',
	images_hash TEXT,
	first_seen_at TEXT NOT NULL,
	last_seen_at TEXT NOT NULL,
	last_changed_at TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	change_log TEXT NOT NULL DEFAULT '[]',
	ambiguous_neighborhood BOOLEAN NOT NULL DEFAULT 0,
	missing_runs INTEGER NOT NULL DEFAULT 0,
	UNIQUE(source, source_id)
);

CREATE INDEX IF NOT EXISTS idx_listings_dedupe_id ON listings(dedupe_id);
CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
CREATE INDEX IF NOT EXISTS idx_listings_neighborhood ON listings(neighborhood_match);
CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source);
CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings(last_seen_at);

CREATE TABLE IF NOT EXISTS run_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_at TEXT NOT NULL,
	source TEXT NOT NULL,
	fetched INTEGER NOT NULL DEFAULT 0,
	kept INTEGER NOT NULL DEFAULT 0,
	filtered INTEGER NOT NULL DEFAULT 0,
	new_count INTEGER NOT NULL DEFAULT 0,
	changed_count INTEGER NOT NULL DEFAULT 0,
	removed_count INTEGER NOT NULL DEFAULT 0,
	errors TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS email_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sent_date TEXT NOT NULL UNIQUE,
	sent_at TEXT NOT NULL,
	new_count INTEGER NOT NULL DEFAULT 0,
	changed_count INTEGER NOT NULL DEFAULT 0,
	removed_count INTEGER NOT NULL DEFAULT 0
);
`

// OpenSQLite opens (creating if needed) the local SQLite database. This is
// the default backend when no DATABASE_URL is configured.
func OpenSQLite(path string, removedAfterMissingRuns int, logger *utils.Logger) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite %q: %w", path, err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// inside the per-source transactions.
	db.SetMaxOpenConns(1)

	store := &SQLStore{
		db: db,
		dialect: dialect{
			name:      "SQLite (local)",
			schemaSQL: sqliteSchema,
			rebind:    rebindNone,
		},
		removedAfterMissingRuns: removedAfterMissingRuns,
		logger:                  logger,
	}
	if err := store.Init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
