package dedupe

import (
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/Michiel-H/HuizenZoeker/models"
)

// Signal weights for the combined similarity score.
const (
	titleWeight    = 0.25
	priceWeight    = 0.20
	areaWeight     = 0.15
	urlWeight      = 0.10
	imagesWeight   = 0.15
	locationWeight = 0.15

	// Neutral credit when both sides lack a value: unknown vs unknown is
	// not evidence against a match.
	priceBothUnknownCredit = 0.5
	areaBothUnknownCredit  = 0.3

	// Hard floors for strong direct evidence — a shared image set or an
	// identical canonical URL should not be diluted by weak signals.
	imagesMatchFloor = 0.85
	urlMatchFloor    = 0.90
)

// Marketing prefixes stripped before title comparison so prefix noise does
// not deflate genuine matches.
var titlePrefixRes = []*regexp.Regexp{
	regexp.MustCompile(`^te\s+huur\s*[:!-]\s*`),
	regexp.MustCompile(`^huurwoning\s*[:!-]\s*`),
	regexp.MustCompile(`^appartement\s*[:!-]\s*`),
	regexp.MustCompile(`^studio\s*[:!-]\s*`),
}

var wsRe = regexp.MustCompile(`\s+`)

// Config holds the externally supplied dedupe tunables.
type Config struct {
	PriceToleranceEUR float64
	AreaToleranceM2   float64
	CombinedThreshold float64
}

// ScoreBreakdown carries the per-signal contributions of one comparison.
type ScoreBreakdown struct {
	TitleSim    float64
	PriceSim    float64
	AreaSim     float64
	URLMatch    bool
	ImagesMatch bool
	LocationSim float64
	Combined    float64
}

// Candidate pairs a normalized listing view with the dedupe_id it carries in
// the store, for candidate scans.
type Candidate struct {
	Listing  models.NormalizedListing
	DedupeID string
}

// Engine computes cross-source similarity between normalized listings.
type Engine struct {
	cfg Config
}

// New creates an Engine with the given tunables.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// GenerateID mints a fresh globally-unique dedupe identifier.
func GenerateID() string {
	return uuid.NewString()
}

// Score computes the symmetric multi-signal similarity in [0,1] between two
// listings from different sources.
func (e *Engine) Score(a, b models.NormalizedListing) ScoreBreakdown {
	var s ScoreBreakdown

	if a.Title != "" && b.Title != "" {
		s.TitleSim = tokenSetSimilarity(cleanTitle(a.Title), cleanTitle(b.Title))
	}

	switch {
	case a.PriceTotalEUR != nil && b.PriceTotalEUR != nil:
		diff := math.Abs(*a.PriceTotalEUR - *b.PriceTotalEUR)
		if tol := math.Max(e.cfg.PriceToleranceEUR, 1); diff <= e.cfg.PriceToleranceEUR {
			s.PriceSim = 1.0 - diff/tol
		}
	case a.PriceTotalEUR == nil && b.PriceTotalEUR == nil:
		s.PriceSim = priceBothUnknownCredit
	}

	switch {
	case a.AreaM2 != nil && b.AreaM2 != nil:
		diff := math.Abs(*a.AreaM2 - *b.AreaM2)
		if tol := math.Max(e.cfg.AreaToleranceM2, 1); diff <= e.cfg.AreaToleranceM2 {
			s.AreaSim = 1.0 - diff/tol
		}
	case a.AreaM2 == nil && b.AreaM2 == nil:
		s.AreaSim = areaBothUnknownCredit
	}

	s.URLMatch = a.URL != "" && b.URL != "" && a.URL == b.URL
	s.ImagesMatch = a.ImagesHash != "" && b.ImagesHash != "" && a.ImagesHash == b.ImagesHash

	if a.RawLocationText != "" && b.RawLocationText != "" {
		s.LocationSim = tokenSetSimilarity(
			strings.ToLower(a.RawLocationText),
			strings.ToLower(b.RawLocationText),
		)
	}

	s.Combined = titleWeight*s.TitleSim +
		priceWeight*s.PriceSim +
		areaWeight*s.AreaSim +
		urlWeight*boolScore(s.URLMatch) +
		imagesWeight*boolScore(s.ImagesMatch) +
		locationWeight*s.LocationSim

	if s.ImagesMatch && s.Combined < imagesMatchFloor {
		s.Combined = imagesMatchFloor
	}
	if s.URLMatch && s.Combined < urlMatchFloor {
		s.Combined = urlMatchFloor
	}

	return s
}

// FindDuplicate scans candidates for the best cross-source match at or above
// the combined threshold. Same-source candidates are skipped (same-source
// identity is the (source, source_id) key, not fuzzy matching), as are
// candidates whose matched neighborhood disagrees when both are known.
// Ties keep the first candidate encountered.
func (e *Engine) FindDuplicate(listing models.NormalizedListing, candidates []Candidate) (string, *ScoreBreakdown, bool) {
	var (
		bestID    string
		bestScore *ScoreBreakdown
	)

	for _, cand := range candidates {
		if cand.Listing.Source == listing.Source {
			continue
		}
		if listing.NeighborhoodMatch != "" && cand.Listing.NeighborhoodMatch != "" &&
			listing.NeighborhoodMatch != cand.Listing.NeighborhoodMatch {
			continue
		}

		score := e.Score(listing, cand.Listing)
		if score.Combined < e.cfg.CombinedThreshold {
			continue
		}
		if bestScore == nil || score.Combined > bestScore.Combined {
			s := score
			bestScore = &s
			bestID = cand.DedupeID
		}
	}

	if bestScore == nil {
		return "", nil, false
	}
	return bestID, bestScore, true
}

// cleanTitle lowercases, strips marketing prefixes and collapses whitespace.
func cleanTitle(title string) string {
	title = strings.ToLower(title)
	for _, re := range titlePrefixRes {
		title = re.ReplaceAllString(title, "")
	}
	return strings.TrimSpace(wsRe.ReplaceAllString(title, " "))
}

// tokenSetSimilarity is the Dice coefficient over the unique token sets of
// the two strings: 2·|A∩B| / (|A|+|B|). Symmetric, 1.0 for identical sets.
func tokenSetSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	common := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			common++
		}
	}
	return 2 * float64(common) / float64(len(setA)+len(setB))
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
