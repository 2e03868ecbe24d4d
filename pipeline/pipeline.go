// Package pipeline sequences collection, normalization, filtering,
// deduplication and storage per source, aggregating run statistics.
package pipeline

import (
	"fmt"
	"time"

	"github.com/Michiel-H/HuizenZoeker/collectors"
	"github.com/Michiel-H/HuizenZoeker/config"
	"github.com/Michiel-H/HuizenZoeker/dedupe"
	"github.com/Michiel-H/HuizenZoeker/models"
	"github.com/Michiel-H/HuizenZoeker/normalizer"
	"github.com/Michiel-H/HuizenZoeker/storage"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

// Summary aggregates statistics across all sources of one run.
type Summary struct {
	Fetched  int
	Kept     int
	Filtered int
	New      int
	Changed  int
	Removed  int
	Errors   []string
}

// Pipeline runs the full collect → normalize → filter → dedupe → store
// sequence. Sources run sequentially; one source's failure is recorded and
// never halts or corrupts the others.
type Pipeline struct {
	collectors []collectors.Collector
	normalizer *normalizer.Normalizer
	engine     *dedupe.Engine
	store      storage.Store
	cfg        *config.Config
	logger     *utils.Logger
}

// New assembles a Pipeline from its collaborators.
func New(cols []collectors.Collector, norm *normalizer.Normalizer, engine *dedupe.Engine,
	store storage.Store, cfg *config.Config, logger *utils.Logger) *Pipeline {
	return &Pipeline{
		collectors: cols,
		normalizer: norm,
		engine:     engine,
		store:      store,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes the pipeline once across all configured sources.
func (p *Pipeline) Run() Summary {
	var summary Summary

	for _, c := range p.collectors {
		p.logger.Info("=== Collecting from %s ===", c.Source())

		stats, err := p.runSource(c)
		if err != nil {
			msg := fmt.Sprintf("[%s] Pipeline error: %v", c.Source(), err)
			p.logger.Error("%s", msg)
			summary.Errors = append(summary.Errors, msg)
			p.logFailedRun(c.Source(), err)
			continue
		}

		if stats.Errors != "" {
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("[%s] %s", c.Source(), stats.Errors))
		}
		summary.Fetched += stats.Fetched
		summary.Kept += stats.Kept
		summary.Filtered += stats.Filtered
		summary.New += stats.New
		summary.Changed += stats.Changed
		summary.Removed += stats.Removed

		p.logger.Info("[%s] fetched=%d kept=%d filtered=%d new=%d changed=%d removed=%d",
			c.Source(), stats.Fetched, stats.Kept, stats.Filtered, stats.New, stats.Changed, stats.Removed)
	}

	p.logger.Info("=== Pipeline complete: fetched=%d kept=%d filtered=%d new=%d changed=%d removed=%d errors=%d ===",
		summary.Fetched, summary.Kept, summary.Filtered, summary.New, summary.Changed,
		summary.Removed, len(summary.Errors))
	return summary
}

// runSource processes one source inside one store transaction: all row
// mutations commit atomically with that source's run-log entry.
func (p *Pipeline) runSource(c collectors.Collector) (models.RunStats, error) {
	source := c.Source()
	stats := models.RunStats{Source: source, RunAt: time.Now().UTC()}

	raw, collectErr := collectors.SafeCollect(c, p.logger)
	stats.Fetched = len(raw)
	if collectErr != nil {
		stats.Errors = collectErr.Error()
	}

	kept := p.normalizeAndFilter(raw, &stats)
	stats.Kept = len(kept)

	tx, err := p.store.Begin()
	if err != nil {
		return stats, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	// Snapshot of all ACTIVE listings for cross-source dedupe, plus the
	// dedupe_ids this source's known identities already carry.
	active, err := p.store.QueryActive(tx, "")
	if err != nil {
		return stats, err
	}

	candidates := make([]dedupe.Candidate, 0, len(active))
	knownIDs := make(map[[2]string]string)
	for _, sl := range active {
		candidates = append(candidates, dedupe.Candidate{
			Listing:  sl.Normalized(),
			DedupeID: sl.DedupeID,
		})
		if sl.SourceID != "" {
			knownIDs[[2]string{sl.Source, sl.SourceID}] = sl.DedupeID
		}
	}

	seen := make(map[string]struct{}, len(kept))

	for _, listing := range kept {
		identity := listing.SourceID
		if identity == "" {
			identity = listing.URL
		}
		seen[identity] = struct{}{}

		dedupeID := knownIDs[[2]string{listing.Source, listing.SourceID}]
		if dedupeID == "" {
			if matchID, score, ok := p.engine.FindDuplicate(listing, candidates); ok {
				dedupeID = matchID
				p.logger.Debug("[%s] Cross-source duplicate (score %.2f): %s",
					source, score.Combined, listing.URL)
			} else {
				dedupeID = dedupe.GenerateID()
			}
		}

		rec, err := p.store.Upsert(tx, listing, dedupeID)
		if err != nil {
			return stats, err
		}

		switch rec.Type {
		case models.ChangeNew:
			stats.New++
		case models.ChangeChanged:
			stats.Changed++
		}
	}

	// A failed scrape proves nothing about which listings are gone, so the
	// missing-run sweep only runs after a clean collection.
	if collectErr == nil {
		removed, err := p.store.MarkMissing(tx, source, seen)
		if err != nil {
			return stats, err
		}
		stats.Removed = len(removed)
	}

	if err := p.store.LogRun(tx, stats); err != nil {
		return stats, err
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit %s run: %w", source, err)
	}
	committed = true

	return stats, nil
}

// normalizeAndFilter turns raw records into normalized ones and applies the
// keep rules: a neighborhood match is required; a known price at or above
// the ceiling is dropped; an unknown price is kept.
func (p *Pipeline) normalizeAndFilter(raw []models.RawListing, stats *models.RunStats) []models.NormalizedListing {
	kept := make([]models.NormalizedListing, 0, len(raw))

	for _, r := range raw {
		listing := p.normalizer.Normalize(r)

		if listing.NeighborhoodMatch == "" {
			stats.Filtered++
			continue
		}
		if listing.PriceTotalEUR != nil && *listing.PriceTotalEUR >= p.cfg.MaxPriceEUR {
			stats.Filtered++
			continue
		}

		kept = append(kept, listing)
	}
	return kept
}

// logFailedRun records a zero-count run-log row for a source whose run
// failed, in its own transaction. Best effort only.
func (p *Pipeline) logFailedRun(source string, runErr error) {
	tx, err := p.store.Begin()
	if err != nil {
		return
	}
	stats := models.RunStats{
		Source: source,
		RunAt:  time.Now().UTC(),
		Errors: runErr.Error(),
	}
	if err := p.store.LogRun(tx, stats); err != nil {
		tx.Rollback()
		return
	}
	tx.Commit()
}
