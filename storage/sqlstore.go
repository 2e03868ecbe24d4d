package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Michiel-H/HuizenZoeker/models"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

// Price changes below one cent are noise, not a change.
const priceChangeTolerance = 0.01

// Description diffs are logged on a short prefix to keep the change log small.
const diffSnippetLen = 100

// Timestamps are stored as fixed-width UTC strings so lexicographic
// comparisons in SQL match chronological order on both backends.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// dialect captures the differences between the two SQL backends.
type dialect struct {
	name      string
	schemaSQL string
	// rebind converts ?-style placeholders to the driver's convention.
	rebind func(query string) string
}

// SQLStore is the change-tracking ledger over database/sql. The same
// implementation serves both backends; only DDL and placeholder style vary.
type SQLStore struct {
	db                      *sql.DB
	dialect                 dialect
	removedAfterMissingRuns int
	logger                  *utils.Logger
}

// listingColumns is the canonical select list for listings rows.
const listingColumns = `id, dedupe_id, source, source_id, url, title,
	raw_location_text, neighborhood_match, neighborhood_confidence,
	price_total_eur, price_quality, price_includes_service_costs,
	gwl_included, area_m2, bedrooms, property_type, available_from,
	description_snippet, images_hash, first_seen_at, last_seen_at,
	last_changed_at, status, change_log, ambiguous_neighborhood, missing_runs`

// Init creates the schema if it does not exist yet.
func (s *SQLStore) Init() error {
	if _, err := s.db.Exec(s.dialect.schemaSQL); err != nil {
		return fmt.Errorf("storage: init schema: %w", err)
	}
	return nil
}

// Begin opens the per-source-run transaction.
func (s *SQLStore) Begin() (*sql.Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("storage: begin: %w", err)
	}
	return tx, nil
}

// BackendName identifies the active backend for startup logging.
func (s *SQLStore) BackendName() string {
	return s.dialect.name
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Upsert inserts or updates one listing and classifies the outcome.
//
// Identity precedence: (source, source_id) when source_id is present, then
// (dedupe_id, source). A row re-sighted after REMOVED with no field diff is
// REACTIVATED; a monitored-field diff appends one change-log entry and
// reports CHANGED. missing_runs resets on every sighting.
func (s *SQLStore) Upsert(tx *sql.Tx, l models.NormalizedListing, dedupeID string) (models.ChangeRecord, error) {
	now := time.Now().UTC()

	existing, err := s.findExisting(tx, l, dedupeID)
	if err != nil {
		return models.ChangeRecord{}, err
	}

	if existing == nil {
		if err := s.insert(tx, l, dedupeID, now); err != nil {
			return models.ChangeRecord{}, err
		}
		return models.ChangeRecord{Type: models.ChangeNew, Changes: map[string]models.FieldChange{}}, nil
	}

	changes := diffListing(existing, l)

	changeType := models.ChangeUnchanged
	if len(changes) > 0 {
		changeType = models.ChangeChanged
	} else if existing.Status == models.StatusRemoved {
		changeType = models.ChangeReactivated
	}

	changeLog := existing.ChangeLog
	lastChanged := existing.LastChangedAt
	if len(changes) > 0 {
		changeLog = append(changeLog, models.ChangeLogEntry{
			Timestamp: now.Format(timeLayout),
			Changes:   changes,
		})
		lastChanged = now
	}

	logJSON, err := json.Marshal(changeLog)
	if err != nil {
		return models.ChangeRecord{}, fmt.Errorf("storage: marshal change log: %w", err)
	}

	query := s.dialect.rebind(`UPDATE listings SET
		dedupe_id = ?, url = ?, title = ?, raw_location_text = ?,
		neighborhood_match = ?, neighborhood_confidence = ?,
		price_total_eur = ?, price_quality = ?,
		price_includes_service_costs = ?, gwl_included = ?,
		area_m2 = ?, bedrooms = ?, property_type = ?, available_from = ?,
		description_snippet = ?, images_hash = ?,
		last_seen_at = ?, last_changed_at = ?,
		status = ?, change_log = ?, ambiguous_neighborhood = ?,
		missing_runs = 0
	WHERE id = ?`)

	_, err = tx.Exec(query,
		dedupeID,
		l.URL,
		orStr(l.Title, existing.Title),
		orStr(l.RawLocationText, existing.RawLocationText),
		nullStr(l.NeighborhoodMatch),
		l.NeighborhoodConfidence,
		nullFloatOr(l.PriceTotalEUR, existing.PriceTotalEUR),
		string(l.PriceQuality),
		l.PriceIncludesServiceCosts,
		l.GWLIncluded,
		nullFloatOr(l.AreaM2, existing.AreaM2),
		nullIntOr(l.Bedrooms, existing.Bedrooms),
		orStr(l.PropertyType, existing.PropertyType),
		orStr(l.AvailableFrom, existing.AvailableFrom),
		orStr(l.DescriptionSnippet, existing.DescriptionSnippet),
		orStr(l.ImagesHash, existing.ImagesHash),
		now.Format(timeLayout),
		lastChanged.Format(timeLayout),
		string(models.StatusActive),
		string(logJSON),
		l.AmbiguousNeighborhood,
		existing.ID,
	)
	if err != nil {
		return models.ChangeRecord{}, fmt.Errorf("storage: update listing %d: %w", existing.ID, err)
	}

	return models.ChangeRecord{Type: changeType, Changes: changes}, nil
}

func (s *SQLStore) findExisting(tx *sql.Tx, l models.NormalizedListing, dedupeID string) (*models.StoredListing, error) {
	if l.SourceID != "" {
		row, err := s.queryOne(tx,
			`SELECT `+listingColumns+` FROM listings WHERE source = ? AND source_id = ?`,
			l.Source, l.SourceID)
		if err != nil || row != nil {
			return row, err
		}
	}
	return s.queryOne(tx,
		`SELECT `+listingColumns+` FROM listings WHERE dedupe_id = ? AND source = ?`,
		dedupeID, l.Source)
}

func (s *SQLStore) insert(tx *sql.Tx, l models.NormalizedListing, dedupeID string, now time.Time) error {
	query := s.dialect.rebind(`INSERT INTO listings (
		dedupe_id, source, source_id, url, title, raw_location_text,
		neighborhood_match, neighborhood_confidence, price_total_eur,
		price_quality, price_includes_service_costs, gwl_included,
		area_m2, bedrooms, property_type, available_from,
		description_snippet, images_hash, first_seen_at, last_seen_at,
		last_changed_at, status, change_log, ambiguous_neighborhood,
		missing_runs
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`)

	ts := now.Format(timeLayout)
	_, err := tx.Exec(query,
		dedupeID, l.Source, nullStr(l.SourceID), l.URL, l.Title, l.RawLocationText,
		nullStr(l.NeighborhoodMatch), l.NeighborhoodConfidence, nullFloat(l.PriceTotalEUR),
		string(l.PriceQuality), l.PriceIncludesServiceCosts, l.GWLIncluded,
		nullFloat(l.AreaM2), nullInt(l.Bedrooms), orStr(l.PropertyType, ""), orStr(l.AvailableFrom, ""),
		l.DescriptionSnippet, orStr(l.ImagesHash, ""), ts, ts,
		ts, string(models.StatusActive), "[]", l.AmbiguousNeighborhood,
	)
	if err != nil {
		return fmt.Errorf("storage: insert listing %s/%s: %w", l.Source, l.SourceID, err)
	}
	return nil
}

// diffListing computes the monitored-field diff between the stored row and
// the fresh sighting. Empty incoming title/description values do not count
// as changes — sources sometimes drop fields between runs.
func diffListing(existing *models.StoredListing, l models.NormalizedListing) map[string]models.FieldChange {
	changes := make(map[string]models.FieldChange)

	switch {
	case l.PriceTotalEUR != nil && existing.PriceTotalEUR != nil:
		if abs(*l.PriceTotalEUR-*existing.PriceTotalEUR) > priceChangeTolerance {
			changes["price_total_eur"] = models.FieldChange{
				Old: formatFloat(existing.PriceTotalEUR),
				New: formatFloat(l.PriceTotalEUR),
			}
		}
	case l.PriceTotalEUR != nil || existing.PriceTotalEUR != nil:
		changes["price_total_eur"] = models.FieldChange{
			Old: formatFloat(existing.PriceTotalEUR),
			New: formatFloat(l.PriceTotalEUR),
		}
	}

	if l.Title != "" && l.Title != existing.Title {
		changes["title"] = models.FieldChange{Old: existing.Title, New: l.Title}
	}
	if l.DescriptionSnippet != "" && l.DescriptionSnippet != existing.DescriptionSnippet {
		changes["description_snippet"] = models.FieldChange{
			Old: utils.Truncate(existing.DescriptionSnippet, diffSnippetLen),
			New: utils.Truncate(l.DescriptionSnippet, diffSnippetLen),
		}
	}

	return changes
}

// MarkMissing increments missing_runs for every ACTIVE row of the source
// whose identity (source_id, or url when absent) was not seen this run.
// Rows reaching the removal threshold flip to REMOVED and are returned —
// that transition is reported exactly once.
func (s *SQLStore) MarkMissing(tx *sql.Tx, source string, seen map[string]struct{}) ([]*models.StoredListing, error) {
	rows, err := s.queryMany(tx,
		`SELECT `+listingColumns+` FROM listings WHERE source = ? AND status = ?`,
		source, string(models.StatusActive))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(timeLayout)
	var removed []*models.StoredListing

	for _, listing := range rows {
		identity := listing.SourceID
		if identity == "" {
			identity = listing.URL
		}
		if _, ok := seen[identity]; ok {
			continue
		}

		missing := listing.MissingRuns + 1
		if missing >= s.removedAfterMissingRuns {
			_, err := tx.Exec(s.dialect.rebind(
				`UPDATE listings SET status = ?, missing_runs = ?, last_changed_at = ? WHERE id = ?`),
				string(models.StatusRemoved), missing, now, listing.ID)
			if err != nil {
				return nil, fmt.Errorf("storage: mark removed %d: %w", listing.ID, err)
			}
			listing.Status = models.StatusRemoved
			listing.MissingRuns = missing
			removed = append(removed, listing)
			s.logger.Info("[storage] Removed after %d missing runs: %s", missing, listing.URL)
		} else {
			_, err := tx.Exec(s.dialect.rebind(
				`UPDATE listings SET missing_runs = ? WHERE id = ?`),
				missing, listing.ID)
			if err != nil {
				return nil, fmt.Errorf("storage: bump missing_runs %d: %w", listing.ID, err)
			}
		}
	}

	return removed, nil
}

// QueryActive returns the ACTIVE snapshot used as the dedupe candidate pool.
// An empty source returns all sources.
func (s *SQLStore) QueryActive(tx *sql.Tx, source string) ([]*models.StoredListing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE status = ?`
	args := []any{string(models.StatusActive)}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY id`
	return s.queryManyOn(tx, query, args...)
}

// LogRun appends one row to the run log.
func (s *SQLStore) LogRun(tx *sql.Tx, stats models.RunStats) error {
	runAt := stats.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	_, err := tx.Exec(s.dialect.rebind(
		`INSERT INTO run_log (run_at, source, fetched, kept, filtered, new_count, changed_count, removed_count, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		runAt.UTC().Format(timeLayout), stats.Source, stats.Fetched, stats.Kept, stats.Filtered,
		stats.New, stats.Changed, stats.Removed, stats.Errors)
	if err != nil {
		return fmt.Errorf("storage: log run: %w", err)
	}
	return nil
}

// QueryListings runs a filtered listing query outside any run transaction,
// for the digest and the API.
func (s *SQLStore) QueryListings(f Filters) ([]*models.StoredListing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Neighborhood != "" {
		query += ` AND neighborhood_match = ?`
		args = append(args, f.Neighborhood)
	}
	if f.Source != "" {
		query += ` AND source = ?`
		args = append(args, f.Source)
	}
	if f.MinPrice != nil {
		query += ` AND price_total_eur >= ?`
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		query += ` AND price_total_eur <= ?`
		args = append(args, *f.MaxPrice)
	}
	if f.Since != nil {
		query += ` AND last_seen_at >= ?`
		args = append(args, f.Since.UTC().Format(timeLayout))
	}
	query += ` ORDER BY last_changed_at DESC`

	return s.queryManyOn(s.db, query, args...)
}

// DailyChanges buckets listings for the digest: NEW (first seen since the
// cutoff, still active, cheapest first), CHANGED (changed since the cutoff
// but known before it) and REMOVED (removed since the cutoff).
func (s *SQLStore) DailyChanges(since time.Time) (*models.DailyChanges, error) {
	cutoff := since.UTC().Format(timeLayout)

	newRows, err := s.queryManyOn(s.db,
		`SELECT `+listingColumns+` FROM listings
		 WHERE first_seen_at >= ? AND status = ? ORDER BY price_total_eur ASC`,
		cutoff, string(models.StatusActive))
	if err != nil {
		return nil, err
	}

	changedRows, err := s.queryManyOn(s.db,
		`SELECT `+listingColumns+` FROM listings
		 WHERE last_changed_at >= ? AND first_seen_at < ? AND status = ?
		 ORDER BY last_changed_at DESC`,
		cutoff, cutoff, string(models.StatusActive))
	if err != nil {
		return nil, err
	}

	removedRows, err := s.queryManyOn(s.db,
		`SELECT `+listingColumns+` FROM listings
		 WHERE status = ? AND last_changed_at >= ?
		 ORDER BY last_changed_at DESC`,
		string(models.StatusRemoved), cutoff)
	if err != nil {
		return nil, err
	}

	return &models.DailyChanges{New: newRows, Changed: changedRows, Removed: removedRows}, nil
}

// RecentRuns returns the newest run-log rows, newest first.
func (s *SQLStore) RecentRuns(limit int) ([]models.RunStats, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(s.dialect.rebind(
		`SELECT run_at, source, fetched, kept, filtered, new_count, changed_count, removed_count, errors
		 FROM run_log ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunStats
	for rows.Next() {
		var st models.RunStats
		var runAt string
		if err := rows.Scan(&runAt, &st.Source, &st.Fetched, &st.Kept, &st.Filtered,
			&st.New, &st.Changed, &st.Removed, &st.Errors); err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		st.RunAt, _ = time.Parse(timeLayout, runAt)
		out = append(out, st)
	}
	return out, rows.Err()
}

// WasEmailSentToday checks the once-per-day digest guard.
func (s *SQLStore) WasEmailSentToday(date string) (bool, error) {
	var id int64
	err := s.db.QueryRow(s.dialect.rebind(
		`SELECT id FROM email_log WHERE sent_date = ?`), date).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: email log lookup: %w", err)
	}
	return true, nil
}

// LogEmailSent records that today's digest went out.
func (s *SQLStore) LogEmailSent(date string, newCount, changedCount, removedCount int) error {
	_, err := s.db.Exec(s.dialect.rebind(
		`INSERT INTO email_log (sent_date, sent_at, new_count, changed_count, removed_count)
		 VALUES (?, ?, ?, ?, ?)`),
		date, time.Now().UTC().Format(timeLayout), newCount, changedCount, removedCount)
	if err != nil {
		return fmt.Errorf("storage: log email: %w", err)
	}
	return nil
}

// ---- row scanning ----

func (s *SQLStore) queryOne(q queryer, query string, args ...any) (*models.StoredListing, error) {
	listing, err := scanListing(q.QueryRow(s.dialect.rebind(query), args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: query listing: %w", err)
	}
	return listing, nil
}

func (s *SQLStore) queryMany(tx *sql.Tx, query string, args ...any) ([]*models.StoredListing, error) {
	return s.queryManyOn(tx, query, args...)
}

func (s *SQLStore) queryManyOn(q queryer, query string, args ...any) ([]*models.StoredListing, error) {
	rows, err := q.Query(s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query listings: %w", err)
	}
	defer rows.Close()

	var out []*models.StoredListing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan listing: %w", err)
		}
		out = append(out, listing)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.StoredListing, error) {
	var (
		l          models.StoredListing
		sourceID   sql.NullString
		hood       sql.NullString
		price      sql.NullFloat64
		area       sql.NullFloat64
		bedrooms   sql.NullInt64
		propType   sql.NullString
		availFrom  sql.NullString
		imagesHash sql.NullString
		firstSeen  string
		lastSeen   string
		lastChange string
		status     string
		changeLog  string
	)

	err := row.Scan(
		&l.ID, &l.DedupeID, &l.Source, &sourceID, &l.URL, &l.Title,
		&l.RawLocationText, &hood, &l.NeighborhoodConfidence,
		&price, &l.PriceQuality, &l.PriceIncludesServiceCosts,
		&l.GWLIncluded, &area, &bedrooms, &propType, &availFrom,
		&l.DescriptionSnippet, &imagesHash, &firstSeen, &lastSeen,
		&lastChange, &status, &changeLog, &l.AmbiguousNeighborhood, &l.MissingRuns,
	)
	if err != nil {
		return nil, err
	}

	l.SourceID = sourceID.String
	l.NeighborhoodMatch = hood.String
	l.PropertyType = propType.String
	l.AvailableFrom = availFrom.String
	l.ImagesHash = imagesHash.String
	if price.Valid {
		l.PriceTotalEUR = &price.Float64
	}
	if area.Valid {
		l.AreaM2 = &area.Float64
	}
	if bedrooms.Valid {
		v := int(bedrooms.Int64)
		l.Bedrooms = &v
	}
	l.FirstSeenAt, _ = time.Parse(timeLayout, firstSeen)
	l.LastSeenAt, _ = time.Parse(timeLayout, lastSeen)
	l.LastChangedAt, _ = time.Parse(timeLayout, lastChange)
	l.Status = models.ListingStatus(status)

	if changeLog != "" {
		if err := json.Unmarshal([]byte(changeLog), &l.ChangeLog); err != nil {
			return nil, fmt.Errorf("corrupt change_log on row %d: %w", l.ID, err)
		}
	}

	return &l, nil
}

// ---- small helpers ----

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullFloatOr(f, fallback *float64) any {
	if f != nil {
		return *f
	}
	return nullFloat(fallback)
}

func nullIntOr(i, fallback *int) any {
	if i != nil {
		return *i
	}
	return nullInt(fallback)
}

func orStr(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// rebindDollar converts ?-placeholders to $1..$n for lib/pq.
func rebindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func rebindNone(query string) string { return query }
