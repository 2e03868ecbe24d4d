package funda

import (
	"testing"

	"github.com/Michiel-H/HuizenZoeker/models"
)

func TestParseAnchor(t *testing.T) {
	a := anchorData{
		Href:  "/detail/huur/amsterdam/appartement-ceintuurbaan-254/43812345-2/",
		Title: "Nieuw Ceintuurbaan 254 II",
		Text:  "Ceintuurbaan 254 II 1072 GC Amsterdam € 1.850 /mnd 62 m² 2 slaapkamers",
	}

	listing, ok := parseAnchor(a)
	if !ok {
		t.Fatal("parseAnchor rejected a valid anchor")
	}

	if listing.Title != "Ceintuurbaan 254 II" {
		t.Errorf("Title = %q; want the marketing label stripped", listing.Title)
	}
	if listing.SourceID != "43812345" {
		t.Errorf("SourceID = %q; want 43812345", listing.SourceID)
	}
	if listing.URL != baseURL+a.Href {
		t.Errorf("URL = %q", listing.URL)
	}
	if listing.PriceRaw == nil || *listing.PriceRaw != 1850 {
		t.Errorf("PriceRaw = %v; want 1850", listing.PriceRaw)
	}
	if listing.RawLocationText == "" {
		t.Error("postcode location not extracted")
	}
	if listing.AreaM2 == nil || *listing.AreaM2 != 62 {
		t.Errorf("AreaM2 = %v; want 62", listing.AreaM2)
	}
	if listing.Bedrooms == nil || *listing.Bedrooms != 2 {
		t.Errorf("Bedrooms = %v; want 2", listing.Bedrooms)
	}
}

func TestParseAnchorEmptyTitle(t *testing.T) {
	a := anchorData{Href: "/detail/huur/amsterdam/x/123-1/", Title: "Uitgelicht "}
	if _, ok := parseAnchor(a); ok {
		t.Error("parseAnchor accepted an anchor with only a marketing label")
	}
}

func TestApplyDetailFillsGaps(t *testing.T) {
	l := models.RawListing{
		Source: "Funda",
		URL:    "https://www.funda.nl/detail/huur/amsterdam/x/123-1/",
		Title:  "Ceintuurbaan 254 II",
	}
	d := detailData{
		Description: "Licht appartement op de tweede verdieping.",
		Text:        "Ceintuurbaan 254 II 1072 GC Amsterdam 62 m² 2 slaapkamers",
	}

	applyDetail(&l, d)

	if l.DescriptionSnippet != d.Description {
		t.Errorf("DescriptionSnippet = %q", l.DescriptionSnippet)
	}
	if l.AreaM2 == nil || *l.AreaM2 != 62 {
		t.Errorf("AreaM2 = %v; want 62", l.AreaM2)
	}
	if l.Bedrooms == nil || *l.Bedrooms != 2 {
		t.Errorf("Bedrooms = %v; want 2", l.Bedrooms)
	}
	if l.RawLocationText == "" {
		t.Error("postcode location not filled from detail text")
	}
}

func TestApplyDetailKeepsCardValues(t *testing.T) {
	l := models.RawListing{
		Source:             "Funda",
		AreaM2:             models.Float64(70),
		Bedrooms:           models.Int(3),
		DescriptionSnippet: "Van de kaart",
		RawLocationText:    "1072 GC Amsterdam",
	}
	applyDetail(&l, detailData{
		Description: "Van de detailpagina",
		Text:        "55 m² 1 slaapkamer 1013 AB Amsterdam",
	})

	if *l.AreaM2 != 70 || *l.Bedrooms != 3 {
		t.Errorf("detail data overwrote card values: area=%v bedrooms=%v", *l.AreaM2, *l.Bedrooms)
	}
	if l.DescriptionSnippet != "Van de kaart" {
		t.Errorf("DescriptionSnippet = %q", l.DescriptionSnippet)
	}
}

func TestParseAnchorAbsoluteURL(t *testing.T) {
	a := anchorData{
		Href:  "https://www.funda.nl/detail/huur/amsterdam/x/123-1/",
		Title: "Woning X",
	}
	listing, ok := parseAnchor(a)
	if !ok {
		t.Fatal("parseAnchor rejected a valid anchor")
	}
	if listing.URL != a.Href {
		t.Errorf("absolute URL rewritten to %q", listing.URL)
	}
}
