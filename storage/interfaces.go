package storage

import (
	"database/sql"
	"time"

	"github.com/Michiel-H/HuizenZoeker/models"
)

// Store is the persistence capability consumed by the pipeline, the digest
// notifier and the API. Two backends implement it — local SQLite and
// Postgres — selected once at process start from configuration; nothing
// above this interface knows which one is active.
//
// Upsert, MarkMissing, QueryActive and LogRun run inside the per-source-run
// transaction so a crash mid-run leaves either the previous state or the
// fully updated state, never a partial diff.
type Store interface {
	Init() error
	Begin() (*sql.Tx, error)

	Upsert(tx *sql.Tx, listing models.NormalizedListing, dedupeID string) (models.ChangeRecord, error)
	MarkMissing(tx *sql.Tx, source string, seen map[string]struct{}) ([]*models.StoredListing, error)
	QueryActive(tx *sql.Tx, source string) ([]*models.StoredListing, error)
	LogRun(tx *sql.Tx, stats models.RunStats) error

	QueryListings(f Filters) ([]*models.StoredListing, error)
	DailyChanges(since time.Time) (*models.DailyChanges, error)
	RecentRuns(limit int) ([]models.RunStats, error)

	WasEmailSentToday(date string) (bool, error)
	LogEmailSent(date string, newCount, changedCount, removedCount int) error

	BackendName() string
	Close() error
}

// Filters narrows listing queries for the digest and the API.
type Filters struct {
	Status       string
	Neighborhood string
	Source       string
	MinPrice     *float64
	MaxPrice     *float64
	Since        *time.Time
}
