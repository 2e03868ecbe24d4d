package normalizer

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/Michiel-H/HuizenZoeker/matcher"
	"github.com/Michiel-H/HuizenZoeker/models"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

// Description snippets are capped so the stored row stays small.
const maxSnippetLen = 500

// Normalizer turns one raw listing into one normalized listing. It never
// fails: missing fields propagate as absent or low-confidence values.
type Normalizer struct {
	matcher *matcher.Matcher
}

// New creates a Normalizer using the given neighborhood matcher.
func New(m *matcher.Matcher) *Normalizer {
	return &Normalizer{matcher: m}
}

// Normalize resolves the price, matches the neighborhood, canonicalizes the
// URL and computes the image-set content hash for one raw listing.
func (n *Normalizer) Normalize(raw models.RawListing) models.NormalizedListing {
	priceText := raw.Title + " " + raw.DescriptionSnippet
	price := ParsePrice(raw.PriceRaw, raw.ServiceCostsRaw, priceText,
		raw.PriceIncludesServiceCosts, raw.GWLIncluded)

	hood := n.matcher.Match(raw.Title, raw.RawLocationText, raw.DescriptionSnippet)

	snippet := utils.Truncate(strings.TrimSpace(raw.DescriptionSnippet), maxSnippetLen)

	return models.NormalizedListing{
		Source:                    raw.Source,
		SourceID:                  raw.SourceID,
		URL:                       CanonicalizeURL(raw.URL),
		Title:                     strings.TrimSpace(raw.Title),
		RawLocationText:           strings.TrimSpace(raw.RawLocationText),
		NeighborhoodMatch:         hood.Name,
		NeighborhoodConfidence:    hood.Confidence,
		AmbiguousNeighborhood:     hood.Ambiguous,
		PriceTotalEUR:             price.TotalEUR,
		PriceQuality:              price.Quality,
		PriceIncludesServiceCosts: price.IncludesServiceCosts,
		GWLIncluded:               price.GWLIncluded,
		AreaM2:                    raw.AreaM2,
		Bedrooms:                  raw.Bedrooms,
		PropertyType:              raw.PropertyType,
		AvailableFrom:             raw.AvailableFrom,
		DescriptionSnippet:        snippet,
		ImagesHash:                ImagesHash(raw.ImageURLs),
	}
}

// CanonicalizeURL normalizes a URL for identity comparison: lowercase host,
// default https scheme, trailing slash stripped, query and fragment dropped.
// Query stripping intentionally discards tracking parameters, accepting the
// minor risk of collapsing two pages that differ only by query.
func CanonicalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}

	clean := url.URL{
		Scheme: scheme,
		Host:   strings.ToLower(u.Host),
		Path:   strings.TrimRight(u.Path, "/"),
	}
	return clean.String()
}

// ImagesHash computes an order-independent content hash over the normalized,
// deduplicated image URL set. Returns "" when there are no usable URLs.
func ImagesHash(imageURLs []string) string {
	if len(imageURLs) == 0 {
		return ""
	}

	seen := make(map[string]struct{}, len(imageURLs))
	var canonical []string
	for _, u := range imageURLs {
		if u == "" {
			continue
		}
		c := CanonicalizeURL(u)
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		canonical = append(canonical, c)
	}
	if len(canonical) == 0 {
		return ""
	}

	sort.Strings(canonical)
	sum := md5.Sum([]byte(strings.Join(canonical, "|")))
	return hex.EncodeToString(sum[:])
}
