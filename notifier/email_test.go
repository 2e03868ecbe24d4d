package notifier

import (
	"strings"
	"testing"

	"github.com/Michiel-H/HuizenZoeker/config"
	"github.com/Michiel-H/HuizenZoeker/models"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

func storedListing(title string, price *float64) *models.StoredListing {
	return &models.StoredListing{
		Title:             title,
		URL:               "https://example.nl/woning/1",
		Source:            "Pararius",
		NeighborhoodMatch: "De Pijp",
		PriceTotalEUR:     price,
		PriceQuality:      string(models.PriceConfirmed),
	}
}

func TestEnabled(t *testing.T) {
	n := New(&config.Config{}, utils.NewLogger(false))
	if n.Enabled() {
		t.Error("Enabled without credentials")
	}

	n = New(&config.Config{GmailAddress: "a@b.nl", GmailAppPassword: "x"}, utils.NewLogger(false))
	if !n.Enabled() {
		t.Error("not Enabled with credentials")
	}
}

func TestSendWithoutCredentialsFails(t *testing.T) {
	n := New(&config.Config{}, utils.NewLogger(false))
	if err := n.SendDailyDigest("2026-08-29", &models.DailyChanges{}); err == nil {
		t.Error("expected an error without credentials")
	}
}

func TestDigestTemplateRenders(t *testing.T) {
	data := digestData{
		Date: "2026-08-29",
		New: toDigestListings([]*models.StoredListing{
			storedListing("Appartement Ceintuurbaan", models.Float64(1800)),
		}, false),
		Removed: toDigestListings([]*models.StoredListing{
			storedListing("Studio Westerstraat", nil),
		}, false),
	}

	var body strings.Builder
	if err := digestTmpl.Execute(&body, data); err != nil {
		t.Fatalf("render: %v", err)
	}

	html := body.String()
	for _, want := range []string{"Appartement Ceintuurbaan", "€1800", "Nieuw (1)", "Verwijderd (1)", "Prijs onbekend"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered digest missing %q", want)
		}
	}
	if strings.Contains(html, "Gewijzigd") {
		t.Error("empty changed bucket rendered a section")
	}
}

func TestFormatPrice(t *testing.T) {
	l := storedListing("x", models.Float64(1500))
	if got := formatPrice(l); got != "€1500" {
		t.Errorf("formatPrice = %q", got)
	}

	l.PriceQuality = string(models.PriceUnknown)
	if got := formatPrice(l); !strings.Contains(got, "servicekosten onbekend") {
		t.Errorf("unknown quality not flagged: %q", got)
	}

	l.PriceTotalEUR = nil
	if got := formatPrice(l); got != "Prijs onbekend" {
		t.Errorf("missing price = %q", got)
	}

	l = storedListing("x", models.Float64(1500))
	l.GWLIncluded = true
	if got := formatPrice(l); !strings.Contains(got, "incl. g/w/l") {
		t.Errorf("gwl marker missing: %q", got)
	}
}

func TestFormatChanges(t *testing.T) {
	entry := models.ChangeLogEntry{
		Timestamp: "2026-08-29T06:00:00.000Z",
		Changes: map[string]models.FieldChange{
			"price_total_eur": {Old: "1800", New: "1750"},
		},
	}
	got := formatChanges(entry)
	if !strings.Contains(got, "1800") || !strings.Contains(got, "1750") {
		t.Errorf("formatChanges = %q", got)
	}
}

func TestDigestListingsIncludeLastChange(t *testing.T) {
	l := storedListing("Appartement", models.Float64(1750))
	l.ChangeLog = []models.ChangeLogEntry{
		{Timestamp: "t1", Changes: map[string]models.FieldChange{"price_total_eur": {Old: "1800", New: "1750"}}},
	}

	withChanges := toDigestListings([]*models.StoredListing{l}, true)
	if withChanges[0].LastChange == "" {
		t.Error("changed listing missing its change summary")
	}

	without := toDigestListings([]*models.StoredListing{l}, false)
	if without[0].LastChange != "" {
		t.Error("non-changed bucket should not carry change summaries")
	}
}
