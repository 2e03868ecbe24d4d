package matcher

import "testing"

func testRegistry() map[string][]string {
	return map[string][]string{
		"De Pijp":       {"de pijp", "pijp", "depijp"},
		"Oud-West":      {"oud-west", "oud west", "amsterdam oud-west"},
		"Westerpark":    {"westerpark", "wester park"},
		"Rivierenbuurt": {"rivierenbuurt"},
	}
}

func TestMatchLocationField(t *testing.T) {
	m := New(testRegistry())

	got := m.Match("Ruim appartement", "De Pijp, Amsterdam", "")
	if got.Name != "De Pijp" {
		t.Fatalf("Match location = %q; want De Pijp", got.Name)
	}
	if got.Confidence < 0.5 {
		t.Errorf("Confidence = %.2f; want >= 0.5", got.Confidence)
	}
}

func TestMatchNoHitOutsideTargets(t *testing.T) {
	m := New(testRegistry())

	tests := []struct {
		title    string
		location string
	}{
		{"Appartement in Amsterdam Zuidoost", "Amsterdam Zuidoost"},
		{"Woning in de Bijlmer", "Bijlmer, Amsterdam"},
		{"", ""},
	}

	for _, tt := range tests {
		got := m.Match(tt.title, tt.location, "")
		if got.Name != "" {
			t.Errorf("Match(%q, %q) = %q; want no match", tt.title, tt.location, got.Name)
		}
	}
}

func TestMatchFieldWeightOrdering(t *testing.T) {
	m := New(testRegistry())

	loc := m.Match("", "westerpark", "")
	title := m.Match("westerpark", "", "")
	desc := m.Match("", "", "westerpark")

	if !(loc.Confidence > title.Confidence && title.Confidence > desc.Confidence) {
		t.Errorf("field weights not ordered: location=%.2f title=%.2f description=%.2f",
			loc.Confidence, title.Confidence, desc.Confidence)
	}
}

func TestMatchLongVariantBonus(t *testing.T) {
	m := New(testRegistry())

	short := m.Match("", "pijp", "")
	long := m.Match("", "rivierenbuurt", "")

	if long.Confidence <= short.Confidence {
		t.Errorf("long variant %.2f should outscore short variant %.2f",
			long.Confidence, short.Confidence)
	}
}

func TestMatchConfidenceCappedAtOne(t *testing.T) {
	registry := map[string][]string{
		"Rivierenbuurt": {"rivierenbuurt amsterdam zuid"},
	}
	m := New(registry)

	got := m.Match("", "rivierenbuurt amsterdam zuid", "")
	if got.Confidence > 1.0 {
		t.Errorf("Confidence = %.2f; want <= 1.0", got.Confidence)
	}
}

func TestMatchWordBoundaries(t *testing.T) {
	registry := map[string][]string{
		"West": {"west"},
	}
	m := New(registry)

	// "west" must not match inside "westerpark".
	if got := m.Match("", "westerpark amsterdam", ""); got.Name != "" {
		t.Errorf("substring matched across word boundary: %q", got.Name)
	}
	if got := m.Match("", "amsterdam west", ""); got.Name != "West" {
		t.Errorf("whole-word match failed: %q", got.Name)
	}
}

func TestMatchAmbiguity(t *testing.T) {
	m := New(testRegistry())

	// Two neighborhoods hit in the same field with the same weight.
	got := m.Match("", "de pijp of oud-west", "")
	if !got.Ambiguous {
		t.Errorf("expected ambiguous flag for two close matches, got %+v", got)
	}

	// A clear single hit is not ambiguous.
	got = m.Match("", "de pijp", "")
	if got.Ambiguous {
		t.Errorf("single match should not be ambiguous: %+v", got)
	}
}

func TestMatchPunctuationInsensitive(t *testing.T) {
	m := New(testRegistry())

	tests := []string{
		"Oud-West",
		"oud west",
		"Amsterdam (Oud-West)",
		"Oud-West, Amsterdam",
	}
	for _, loc := range tests {
		if got := m.Match("", loc, ""); got.Name != "Oud-West" {
			t.Errorf("Match(location=%q) = %q; want Oud-West", loc, got.Name)
		}
	}
}

func TestMatchTieBreakPrefersLongerName(t *testing.T) {
	registry := map[string][]string{
		"Pijp":    {"gemeenschappelijk"},
		"De Pijp": {"gemeenschappelijk"},
	}
	m := New(registry)

	got := m.Match("", "gemeenschappelijk", "")
	if got.Name != "De Pijp" {
		t.Errorf("tie-break picked %q; want the longer canonical name De Pijp", got.Name)
	}
}
