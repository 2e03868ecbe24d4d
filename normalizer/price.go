package normalizer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Michiel-H/HuizenZoeker/models"
)

// Plausibility window for a monthly rent in euros. Anything outside is
// treated as a failed extraction, not an error.
const (
	minPlausibleRent = 100
	maxPlausibleRent = 50000
)

var (
	// Ordered extraction patterns; first match wins.
	priceTextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`€\s*([\d.,]+)`),
		regexp.MustCompile(`eur\s*([\d.,]+)`),
		regexp.MustCompile(`([\d.,]+)\s*(?:p/?m|per\s+maand|/\s*mnd|/\s*maand)`),
	}

	// GWL (gas/water/light) inclusion markers. Sets a flag, never changes
	// the total.
	gwlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`incl\.?\s*g\s*/?\s*w\s*/?\s*l`),
		regexp.MustCompile(`inclusief\s+gas`),
		regexp.MustCompile(`inclusief\s+g/w/l`),
		regexp.MustCompile(`all[\s-]?in`),
	}

	// Service costs already folded into the displayed price.
	serviceInclPatterns = []*regexp.Regexp{
		regexp.MustCompile(`incl\.?\s*service`),
		regexp.MustCompile(`inclusief\s+service`),
		regexp.MustCompile(`servicekosten\s+inbegrepen`),
	}

	// Service costs billed on top, with an explicit amount to add.
	serviceExclPatterns = []*regexp.Regexp{
		regexp.MustCompile(`excl\.?\s*servicekosten\s*:?\s*€?\s*(\d+)`),
		regexp.MustCompile(`exclusief\s+servicekosten\s*:?\s*€?\s*(\d+)`),
		regexp.MustCompile(`servicekosten\s*:?\s*€?\s*(\d+)`),
		regexp.MustCompile(`\+\s*€?\s*(\d+)\s*service`),
	}
)

// PriceResult is the outcome of price resolution for one listing.
type PriceResult struct {
	TotalEUR             *float64
	Quality              models.PriceQuality
	IncludesServiceCosts bool
	GWLIncluded          bool
}

// ParsePrice infers a single monthly total and a confidence label from a
// price figure, an optional explicit service-cost figure, free text, and the
// inclusion flags the collector already resolved.
//
// Service-cost resolution priority:
//  1. explicit non-zero service-cost figure — added to the total, CONFIRMED
//  2. includes-service-costs flag passed in — CONFIRMED, total unchanged
//  3. text says costs are included — CONFIRMED, total unchanged
//  4. text gives an explicit excluded amount — added to the total, CONFIRMED
//  5. otherwise UNKNOWN, total unchanged
func ParsePrice(priceRaw, serviceCostsRaw *float64, priceText string, includesServiceCosts, gwlIncluded bool) PriceResult {
	if priceRaw == nil {
		priceRaw = ExtractPriceFromText(priceText)
	}
	if priceRaw == nil {
		return PriceResult{
			Quality:     models.PriceUnknown,
			GWLIncluded: gwlIncluded,
		}
	}

	total := *priceRaw
	text := strings.ToLower(priceText)

	for _, pat := range gwlPatterns {
		if pat.MatchString(text) {
			gwlIncluded = true
			break
		}
	}

	quality := models.PriceUnknown

	switch {
	case serviceCostsRaw != nil && *serviceCostsRaw > 0:
		total += *serviceCostsRaw
		quality = models.PriceConfirmed
		includesServiceCosts = true

	case includesServiceCosts:
		quality = models.PriceConfirmed

	default:
		for _, pat := range serviceInclPatterns {
			if pat.MatchString(text) {
				quality = models.PriceConfirmed
				includesServiceCosts = true
				break
			}
		}

		if quality == models.PriceUnknown {
			for _, pat := range serviceExclPatterns {
				m := pat.FindStringSubmatch(text)
				if m == nil {
					continue
				}
				if sc, err := strconv.ParseFloat(m[1], 64); err == nil {
					total += sc
					quality = models.PriceConfirmed
					includesServiceCosts = true
				}
				break
			}
		}
	}

	return PriceResult{
		TotalEUR:             &total,
		Quality:              quality,
		IncludesServiceCosts: includesServiceCosts,
		GWLIncluded:          gwlIncluded,
	}
}

// ExtractPriceFromText pulls a monthly rent figure out of free text, trying
// the currency-sign form, the "eur" form and the per-month suffix form in
// order. Returns nil when nothing plausible is found.
func ExtractPriceFromText(text string) *float64 {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	for _, pat := range priceTextPatterns {
		if m := pat.FindStringSubmatch(lower); m != nil {
			return ParsePriceString(strings.TrimSpace(m[1]))
		}
	}
	return nil
}

// ParsePriceString parses a numeric string that may use Dutch or English
// thousands/decimal separator conventions:
//
//	"1.500"    → 1500   (dot followed by exactly three digits is thousands)
//	"1.500,00" → 1500   (right-most separator is the decimal point)
//	"1,500.00" → 1500
//	"1500,50"  → 1500.5
//
// Values outside the plausible rent window resolve to nil, not an error.
func ParsePriceString(s string) *float64 {
	val := ParseAmount(s)
	if val == nil {
		return nil
	}
	if *val < minPlausibleRent || *val > maxPlausibleRent {
		return nil
	}
	return val
}

// ParseAmount parses a numeric string using the same separator heuristics as
// ParsePriceString but without the rent plausibility window. Used for
// secondary amounts like service costs, which are often well under €100.
func ParseAmount(s string) *float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".,")
	if s == "" {
		return nil
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")

	switch {
	case hasDot && hasComma:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			// "1.500,00" — comma is the decimal separator
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			// "1,500.00" — dot is the decimal separator
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasDot:
		parts := strings.Split(s, ".")
		if len(parts) == 2 && len(parts[1]) == 3 {
			// "1.500" — thousands separator
			s = strings.ReplaceAll(s, ".", "")
		}
	case hasComma:
		parts := strings.Split(s, ",")
		if len(parts) == 2 && len(parts[1]) == 3 {
			// "1,500" — thousands separator
			s = strings.ReplaceAll(s, ",", "")
		} else {
			// "1500,50" — decimal separator
			s = strings.ReplaceAll(s, ",", ".")
		}
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &val
}
