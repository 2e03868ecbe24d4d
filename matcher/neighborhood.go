package matcher

import (
	"regexp"
	"sort"
	"strings"
)

// Field weights: a hit in the location field is stronger evidence than one in
// the title, which beats one in the description.
const (
	locationWeight    = 0.9
	titleWeight       = 0.8
	descriptionWeight = 0.6

	// Variants longer than this earn a small specificity bonus.
	longVariantLen   = 8
	longVariantBonus = 0.05

	// Top-two scores closer than this flag the match as ambiguous.
	ambiguityGap = 0.15
)

var (
	punctRe      = regexp.MustCompile(`[,.\-/|()]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Result is the outcome of matching free text against the registry.
type Result struct {
	Name       string // canonical neighborhood name, "" when no match
	Confidence float64
	Ambiguous  bool
}

type variantPattern struct {
	variant string // normalized variant text
	re      *regexp.Regexp
}

// Matcher maps free-text listing fields to canonical neighborhood names.
// The registry is injected at construction so tests can run against
// synthetic neighborhoods.
type Matcher struct {
	variants map[string][]variantPattern // canonical name → compiled variants
}

// New builds a Matcher from a canonical-name→variants registry.
func New(registry map[string][]string) *Matcher {
	m := &Matcher{variants: make(map[string][]variantPattern, len(registry))}

	for name, variants := range registry {
		patterns := make([]variantPattern, 0, len(variants))
		for _, v := range variants {
			norm := normalizeText(v)
			if norm == "" {
				continue
			}
			// Word-boundary anchoring so "west" does not match inside
			// "westerpark".
			re := regexp.MustCompile(`(?:^|\s|,)` + regexp.QuoteMeta(norm) + `(?:\s|,|$)`)
			patterns = append(patterns, variantPattern{variant: norm, re: re})
		}
		m.variants[name] = patterns
	}
	return m
}

// Match scores the three text fields against every registered neighborhood
// and returns the best match, its confidence and an ambiguity flag.
func (m *Matcher) Match(title, locationText, description string) Result {
	fields := []struct {
		text   string
		weight float64
	}{
		{normalizeText(locationText), locationWeight},
		{normalizeText(title), titleWeight},
		{normalizeText(description), descriptionWeight},
	}

	type candidate struct {
		name  string
		score float64
	}
	var matches []candidate

	for name, patterns := range m.variants {
		best := 0.0
		for _, p := range patterns {
			for _, f := range fields {
				if f.text == "" || !p.re.MatchString(f.text) {
					continue
				}
				score := f.weight
				if len(p.variant) > longVariantLen {
					score += longVariantBonus
					if score > 1.0 {
						score = 1.0
					}
				}
				if score > best {
					best = score
				}
			}
		}
		if best > 0 {
			matches = append(matches, candidate{name: name, score: best})
		}
	}

	if len(matches) == 0 {
		return Result{}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		// Equal scores: prefer the longer (more specific) canonical name.
		return len(matches[i].name) > len(matches[j].name)
	})

	best := matches[0]
	ambiguous := len(matches) > 1 && best.score-matches[1].score < ambiguityGap

	return Result{Name: best.name, Confidence: best.score, Ambiguous: ambiguous}
}

// normalizeText lowercases and collapses punctuation, hyphens and whitespace
// so variant matching is insensitive to formatting.
func normalizeText(text string) string {
	text = strings.ToLower(text)
	text = punctRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
