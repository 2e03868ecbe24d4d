package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/Michiel-H/HuizenZoeker/models"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), 2, utils.NewLogger(false))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testListing(sourceID string) models.NormalizedListing {
	return models.NormalizedListing{
		Source:             "Pararius",
		SourceID:           sourceID,
		URL:                "https://www.pararius.nl/appartement/amsterdam/" + sourceID,
		Title:              "Ruim appartement Ceintuurbaan",
		RawLocationText:    "Ceintuurbaan, Amsterdam",
		NeighborhoodMatch:  "De Pijp",
		PriceTotalEUR:      models.Float64(1800),
		PriceQuality:       models.PriceConfirmed,
		AreaM2:             models.Float64(62),
		DescriptionSnippet: "Licht appartement op de tweede verdieping",
	}
}

func upsert(t *testing.T, store *SQLStore, l models.NormalizedListing, dedupeID string) models.ChangeRecord {
	t.Helper()
	tx, err := store.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	rec, err := store.Upsert(tx, l, dedupeID)
	if err != nil {
		tx.Rollback()
		t.Fatalf("upsert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return rec
}

func markMissing(t *testing.T, store *SQLStore, source string, seen map[string]struct{}) []*models.StoredListing {
	t.Helper()
	tx, err := store.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	removed, err := store.MarkMissing(tx, source, seen)
	if err != nil {
		tx.Rollback()
		t.Fatalf("mark missing: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return removed
}

func activeListings(t *testing.T, store *SQLStore, source string) []*models.StoredListing {
	t.Helper()
	tx, err := store.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	rows, err := store.QueryActive(tx, source)
	if err != nil {
		t.Fatalf("query active: %v", err)
	}
	return rows
}

func TestUpsertNewThenUnchanged(t *testing.T) {
	store := newTestStore(t)
	l := testListing("abc123")

	rec := upsert(t, store, l, "dedupe-1")
	if rec.Type != models.ChangeNew {
		t.Fatalf("first upsert = %s; want NEW", rec.Type)
	}

	rec = upsert(t, store, l, "dedupe-1")
	if rec.Type != models.ChangeUnchanged {
		t.Errorf("identical re-upsert = %s; want UNCHANGED", rec.Type)
	}

	rows := activeListings(t, store, "Pararius")
	if len(rows) != 1 {
		t.Fatalf("got %d rows; want 1", len(rows))
	}
	if len(rows[0].ChangeLog) != 0 {
		t.Errorf("UNCHANGED must not append change-log entries, got %d", len(rows[0].ChangeLog))
	}
}

func TestUpsertPriceChange(t *testing.T) {
	store := newTestStore(t)
	l := testListing("abc123")
	upsert(t, store, l, "dedupe-1")

	l.PriceTotalEUR = models.Float64(1750)
	rec := upsert(t, store, l, "dedupe-1")
	if rec.Type != models.ChangeChanged {
		t.Fatalf("price change = %s; want CHANGED", rec.Type)
	}
	fc, ok := rec.Changes["price_total_eur"]
	if !ok {
		t.Fatalf("missing price_total_eur in changes: %v", rec.Changes)
	}
	if fc.Old != "1800" || fc.New != "1750" {
		t.Errorf("price change = %+v; want 1800 -> 1750", fc)
	}

	rows := activeListings(t, store, "Pararius")
	if len(rows[0].ChangeLog) != 1 {
		t.Fatalf("change log has %d entries; want 1", len(rows[0].ChangeLog))
	}
	entry := rows[0].ChangeLog[0]
	if entry.Timestamp == "" {
		t.Error("change-log entry missing timestamp")
	}
	if entry.Changes["price_total_eur"].New != "1750" {
		t.Errorf("persisted change-log entry = %+v", entry)
	}
}

func TestUpsertTinyPriceDriftIgnored(t *testing.T) {
	store := newTestStore(t)
	l := testListing("abc123")
	upsert(t, store, l, "dedupe-1")

	l.PriceTotalEUR = models.Float64(1800.005)
	rec := upsert(t, store, l, "dedupe-1")
	if rec.Type != models.ChangeUnchanged {
		t.Errorf("sub-cent drift = %s; want UNCHANGED", rec.Type)
	}
}

func TestUpsertEmptyFieldsDoNotRegress(t *testing.T) {
	store := newTestStore(t)
	l := testListing("abc123")
	upsert(t, store, l, "dedupe-1")

	// A later run drops the title and description; the stored values must
	// survive and no change must be reported.
	sparse := l
	sparse.Title = ""
	sparse.DescriptionSnippet = ""
	rec := upsert(t, store, sparse, "dedupe-1")
	if rec.Type != models.ChangeUnchanged {
		t.Errorf("sparse re-sighting = %s; want UNCHANGED", rec.Type)
	}

	rows := activeListings(t, store, "Pararius")
	if rows[0].Title != l.Title {
		t.Errorf("title regressed to %q", rows[0].Title)
	}
	if rows[0].DescriptionSnippet != l.DescriptionSnippet {
		t.Errorf("description regressed to %q", rows[0].DescriptionSnippet)
	}
}

func TestMissingRunsToRemovedExactlyOnce(t *testing.T) {
	store := newTestStore(t) // threshold 2
	upsert(t, store, testListing("abc123"), "dedupe-1")

	empty := map[string]struct{}{}

	removed := markMissing(t, store, "Pararius", empty)
	if len(removed) != 0 {
		t.Fatalf("first missing run removed %d rows; want 0", len(removed))
	}

	removed = markMissing(t, store, "Pararius", empty)
	if len(removed) != 1 {
		t.Fatalf("second missing run removed %d rows; want 1", len(removed))
	}
	if removed[0].Status != models.StatusRemoved {
		t.Errorf("status = %s; want REMOVED", removed[0].Status)
	}

	// Once REMOVED, later sweeps must not report it again.
	removed = markMissing(t, store, "Pararius", empty)
	if len(removed) != 0 {
		t.Errorf("third missing run removed %d rows; want 0", len(removed))
	}
}

func TestMissingRunsResetOnSighting(t *testing.T) {
	store := newTestStore(t)
	l := testListing("abc123")
	upsert(t, store, l, "dedupe-1")

	markMissing(t, store, "Pararius", map[string]struct{}{})

	// Re-sighted before the threshold: the counter starts over.
	upsert(t, store, l, "dedupe-1")

	removed := markMissing(t, store, "Pararius", map[string]struct{}{})
	if len(removed) != 0 {
		t.Errorf("counter did not reset: removed %d rows", len(removed))
	}
}

func TestReactivation(t *testing.T) {
	store := newTestStore(t)
	l := testListing("abc123")
	upsert(t, store, l, "dedupe-1")

	empty := map[string]struct{}{}
	markMissing(t, store, "Pararius", empty)
	markMissing(t, store, "Pararius", empty)

	rec := upsert(t, store, l, "dedupe-1")
	if rec.Type != models.ChangeReactivated {
		t.Fatalf("re-sighting after REMOVED = %s; want REACTIVATED", rec.Type)
	}

	rows := activeListings(t, store, "Pararius")
	if len(rows) != 1 {
		t.Fatalf("reactivated row not ACTIVE, got %d active rows", len(rows))
	}
	if rows[0].MissingRuns != 0 {
		t.Errorf("missing_runs = %d after reactivation; want 0", rows[0].MissingRuns)
	}
}

func TestReactivationWithChangeReportsChanged(t *testing.T) {
	store := newTestStore(t)
	l := testListing("abc123")
	upsert(t, store, l, "dedupe-1")

	empty := map[string]struct{}{}
	markMissing(t, store, "Pararius", empty)
	markMissing(t, store, "Pararius", empty)

	l.PriceTotalEUR = models.Float64(1900)
	rec := upsert(t, store, l, "dedupe-1")
	if rec.Type != models.ChangeChanged {
		t.Errorf("removed row back with new price = %s; want CHANGED", rec.Type)
	}
}

func TestMarkMissingRespectsSeenSet(t *testing.T) {
	store := newTestStore(t)
	upsert(t, store, testListing("keep"), "dedupe-1")
	upsert(t, store, testListing("drop"), "dedupe-2")

	seen := map[string]struct{}{"keep": {}}
	markMissing(t, store, "Pararius", seen)
	removed := markMissing(t, store, "Pararius", seen)

	if len(removed) != 1 || removed[0].SourceID != "drop" {
		t.Fatalf("removed = %+v; want only the unseen row", removed)
	}
	rows := activeListings(t, store, "Pararius")
	if len(rows) != 1 || rows[0].SourceID != "keep" {
		t.Errorf("active rows = %d; want only the seen row", len(rows))
	}
}

func TestMarkMissingFallsBackToURLIdentity(t *testing.T) {
	store := newTestStore(t)
	l := testListing("")
	l.URL = "https://www.pararius.nl/appartement/amsterdam/no-id"
	upsert(t, store, l, "dedupe-1")

	seen := map[string]struct{}{l.URL: {}}
	markMissing(t, store, "Pararius", seen)
	removed := markMissing(t, store, "Pararius", seen)
	if len(removed) != 0 {
		t.Errorf("row seen by URL identity was removed")
	}
}

func TestMultipleEmptySourceIDs(t *testing.T) {
	store := newTestStore(t)

	a := testListing("")
	a.URL = "https://www.pararius.nl/a"
	b := testListing("")
	b.URL = "https://www.pararius.nl/b"
	b.Title = "Andere woning"

	upsert(t, store, a, "dedupe-a")
	upsert(t, store, b, "dedupe-b")

	rows := activeListings(t, store, "Pararius")
	if len(rows) != 2 {
		t.Errorf("got %d rows; want 2 (empty source_id must not collide)", len(rows))
	}
}

func TestUpsertIdentityByDedupeID(t *testing.T) {
	store := newTestStore(t)

	l := testListing("")
	l.URL = "https://www.pararius.nl/a"
	upsert(t, store, l, "dedupe-a")

	rec := upsert(t, store, l, "dedupe-a")
	if rec.Type != models.ChangeUnchanged {
		t.Errorf("re-upsert keyed by dedupe_id = %s; want UNCHANGED", rec.Type)
	}
}

func TestQueryListingsFilters(t *testing.T) {
	store := newTestStore(t)

	cheap := testListing("cheap")
	cheap.PriceTotalEUR = models.Float64(1200)
	pricey := testListing("pricey")
	pricey.PriceTotalEUR = models.Float64(2200)
	pricey.NeighborhoodMatch = "Westerpark"

	upsert(t, store, cheap, "d1")
	upsert(t, store, pricey, "d2")

	maxPrice := 1500.0
	rows, err := store.QueryListings(Filters{Status: "ACTIVE", MaxPrice: &maxPrice})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0].SourceID != "cheap" {
		t.Errorf("max-price filter returned %d rows", len(rows))
	}

	rows, err = store.QueryListings(Filters{Neighborhood: "Westerpark"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0].SourceID != "pricey" {
		t.Errorf("neighborhood filter returned %d rows", len(rows))
	}
}

func TestDailyChangesBuckets(t *testing.T) {
	store := newTestStore(t)

	fresh := testListing("fresh")
	gone := testListing("gone")
	upsert(t, store, fresh, "d1")
	upsert(t, store, gone, "d2")

	seen := map[string]struct{}{"fresh": {}}
	markMissing(t, store, "Pararius", seen)
	markMissing(t, store, "Pararius", seen)

	changes, err := store.DailyChanges(time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("daily changes: %v", err)
	}
	if len(changes.New) != 1 || changes.New[0].SourceID != "fresh" {
		t.Errorf("New bucket = %d rows", len(changes.New))
	}
	if len(changes.Removed) != 1 || changes.Removed[0].SourceID != "gone" {
		t.Errorf("Removed bucket = %d rows", len(changes.Removed))
	}
	if len(changes.Changed) != 0 {
		t.Errorf("Changed bucket = %d rows; want 0", len(changes.Changed))
	}
}

func TestRunLog(t *testing.T) {
	store := newTestStore(t)

	tx, err := store.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	stats := models.RunStats{
		Source: "Pararius", Fetched: 20, Kept: 15, Filtered: 5,
		New: 3, Changed: 2, Removed: 1, RunAt: time.Now().UTC(),
	}
	if err := store.LogRun(tx, stats); err != nil {
		t.Fatalf("log run: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	runs, err := store.RecentRuns(10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs; want 1", len(runs))
	}
	if runs[0].Source != "Pararius" || runs[0].Fetched != 20 || runs[0].New != 3 {
		t.Errorf("run row = %+v", runs[0])
	}
}

func TestEmailLogGuard(t *testing.T) {
	store := newTestStore(t)

	sent, err := store.WasEmailSentToday("2026-08-29")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if sent {
		t.Fatal("fresh store claims email already sent")
	}

	if err := store.LogEmailSent("2026-08-29", 3, 1, 0); err != nil {
		t.Fatalf("log email: %v", err)
	}

	sent, err = store.WasEmailSentToday("2026-08-29")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !sent {
		t.Error("guard did not record the sent digest")
	}
}

func TestRollbackLeavesNoTrace(t *testing.T) {
	store := newTestStore(t)

	tx, err := store.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := store.Upsert(tx, testListing("abc123"), "dedupe-1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		t.Fatalf("rollback: %v", err)
	}

	rows := activeListings(t, store, "Pararius")
	if len(rows) != 0 {
		t.Errorf("rolled-back upsert persisted %d rows", len(rows))
	}
}

func TestRebindDollar(t *testing.T) {
	got := rebindDollar(`UPDATE x SET a = ?, b = ? WHERE id = ?`)
	want := `UPDATE x SET a = $1, b = $2 WHERE id = $3`
	if got != want {
		t.Errorf("rebindDollar = %q; want %q", got, want)
	}
}
