package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Michiel-H/HuizenZoeker/config"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS listings (
	id BIGSERIAL PRIMARY KEY,
	dedupe_id TEXT NOT NULL,
	source TEXT NOT NULL,
	source_id TEXT,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	raw_location_text TEXT NOT NULL DEFAULT '',
	neighborhood_match TEXT,
	neighborhood_confidence DOUBLE PRECISION NOT NULL DEFAULT 0.0,
	price_total_eur DOUBLE PRECISION,
	price_quality TEXT NOT NULL DEFAULT 'UNKNOWN',
	price_includes_service_costs BOOLEAN NOT NULL DEFAULT FALSE,
	gwl_included BOOLEAN NOT NULL DEFAULT FALSE,
	area_m2 DOUBLE PRECISION,
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
	ambiguous_neighborhood BOOLEAN NOT NULL DEFAULT FALSE,
	missing_runs INTEGER NOT NULL DEFAULT 0,
	UNIQUE(source, source_id)
);

CREATE INDEX IF NOT EXISTS idx_listings_dedupe_id ON listings(dedupe_id);
CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
CREATE INDEX IF NOT EXISTS idx_listings_neighborhood ON listings(neighborhood_match);
CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source);
CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings(last_seen_at);

CREATE TABLE IF NOT EXISTS run_log (
	id BIGSERIAL PRIMARY KEY,
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
	id BIGSERIAL PRIMARY KEY,
	sent_date TEXT NOT NULL UNIQUE,
	sent_at TEXT NOT NULL,
	new_count INTEGER NOT NULL DEFAULT 0,
	changed_count INTEGER NOT NULL DEFAULT 0,
	removed_count INTEGER NOT NULL DEFAULT 0
);
`

// OpenPostgres connects to the hosted Postgres backend, pinging with a short
// retry loop so a cold database does not fail the run immediately.
func OpenPostgres(dsn string, removedAfterMissingRuns int, logger *utils.Logger) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}

	store := &SQLStore{
		db: db,
		dialect: dialect{
			name:      "Postgres (hosted)",
			schemaSQL: postgresSchema,
			rebind:    rebindDollar,
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

// Open selects the backend once at process start: Postgres when a
// DATABASE_URL is configured, local SQLite otherwise. Callers depend only on
// the Store interface, never the concrete choice.
func Open(cfg *config.Config, logger *utils.Logger) (Store, error) {
	if cfg.UsePostgres() {
		return OpenPostgres(cfg.DatabaseURL, cfg.RemovedAfterMissingRuns, logger)
	}
	return OpenSQLite(cfg.SQLitePath, cfg.RemovedAfterMissingRuns, logger)
}
