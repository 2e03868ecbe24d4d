package models

import "time"

// ListingStatus is the lifecycle state of a stored listing.
type ListingStatus string

const (
	StatusActive  ListingStatus = "ACTIVE"
	StatusRemoved ListingStatus = "REMOVED"
)

// PriceQuality indicates whether service-cost inclusion is definitively known.
type PriceQuality string

const (
	PriceConfirmed PriceQuality = "CONFIRMED"
	PriceUnknown   PriceQuality = "UNKNOWN"
)

// ChangeType classifies the outcome of one upsert or missing-run sweep.
type ChangeType string

const (
	ChangeNew         ChangeType = "NEW"
	ChangeChanged     ChangeType = "CHANGED"
	ChangeReactivated ChangeType = "REACTIVATED"
	ChangeUnchanged   ChangeType = "UNCHANGED"
	ChangeRemoved     ChangeType = "REMOVED"
)

// RawListing holds unprocessed data as parsed from a source, before
// normalization. Produced once per collector run per item; never persisted.
type RawListing struct {
	Source                    string
	SourceID                  string
	URL                       string
	Title                     string
	RawLocationText           string
	PriceRaw                  *float64
	ServiceCostsRaw           *float64
	PriceIncludesServiceCosts bool
	GWLIncluded               bool
	AreaM2                    *float64
	Bedrooms                  *int
	PropertyType              string
	AvailableFrom             string
	DescriptionSnippet        string
	ImageURLs                 []string
}

// NormalizedListing is the deterministic, derived form of a RawListing after
// price resolution, neighborhood matching and URL/image canonicalization.
// It has no lifecycle of its own and is recomputed every run.
type NormalizedListing struct {
	Source                    string
	SourceID                  string
	URL                       string
	Title                     string
	RawLocationText           string
	NeighborhoodMatch         string // canonical name, "" when no match
	NeighborhoodConfidence    float64
	AmbiguousNeighborhood     bool
	PriceTotalEUR             *float64
	PriceQuality              PriceQuality
	PriceIncludesServiceCosts bool
	GWLIncluded               bool
	AreaM2                    *float64
	Bedrooms                  *int
	PropertyType              string
	AvailableFrom             string
	DescriptionSnippet        string
	ImagesHash                string
}

// StoredListing is the durable entity. (source, source_id) is unique when
// source_id is present; dedupe_id correlates rows believed to represent the
// same physical unit across sources. Rows are never physically deleted —
// status flips to REMOVED after enough consecutive missing runs.
type StoredListing struct {
	ID                        int64
	DedupeID                  string
	Source                    string
	SourceID                  string
	URL                       string
	Title                     string
	RawLocationText           string
	NeighborhoodMatch         string
	NeighborhoodConfidence    float64
	AmbiguousNeighborhood     bool
	PriceTotalEUR             *float64
	PriceQuality              string
	PriceIncludesServiceCosts bool
	GWLIncluded               bool
	AreaM2                    *float64
	Bedrooms                  *int
	PropertyType              string
	AvailableFrom             string
	DescriptionSnippet        string
	ImagesHash                string
	FirstSeenAt               time.Time
	LastSeenAt                time.Time
	LastChangedAt             time.Time
	Status                    ListingStatus
	ChangeLog                 []ChangeLogEntry
	MissingRuns               int
}

// Normalized re-derives the NormalizedListing view of a stored row, used to
// build the cross-source dedupe candidate snapshot.
func (s *StoredListing) Normalized() NormalizedListing {
	return NormalizedListing{
		Source:                    s.Source,
		SourceID:                  s.SourceID,
		URL:                       s.URL,
		Title:                     s.Title,
		RawLocationText:           s.RawLocationText,
		NeighborhoodMatch:         s.NeighborhoodMatch,
		NeighborhoodConfidence:    s.NeighborhoodConfidence,
		AmbiguousNeighborhood:     s.AmbiguousNeighborhood,
		PriceTotalEUR:             s.PriceTotalEUR,
		PriceQuality:              PriceQuality(s.PriceQuality),
		PriceIncludesServiceCosts: s.PriceIncludesServiceCosts,
		GWLIncluded:               s.GWLIncluded,
		AreaM2:                    s.AreaM2,
		Bedrooms:                  s.Bedrooms,
		PropertyType:              s.PropertyType,
		AvailableFrom:             s.AvailableFrom,
		DescriptionSnippet:        s.DescriptionSnippet,
		ImagesHash:                s.ImagesHash,
	}
}

// FieldChange is one old→new value pair inside a change-log entry.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// ChangeLogEntry is one append-only entry in a listing's change history.
type ChangeLogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Changes   map[string]FieldChange `json:"changes"`
}

// ChangeRecord is the ephemeral outcome of one upsert.
type ChangeRecord struct {
	Type    ChangeType
	Changes map[string]FieldChange
}

// RunStats summarizes one source's pipeline run for the run log.
type RunStats struct {
	Source   string
	Fetched  int
	Kept     int
	Filtered int
	New      int
	Changed  int
	Removed  int
	Errors   string
	RunAt    time.Time
}

// DailyChanges buckets listings by what happened to them since a timestamp.
type DailyChanges struct {
	New     []*StoredListing
	Changed []*StoredListing
	Removed []*StoredListing
}

// Float64 returns a pointer to v, for optional numeric fields.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional numeric fields.
func Int(v int) *int { return &v }
