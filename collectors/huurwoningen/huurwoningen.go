// Package huurwoningen collects rental listings from Huurwoningen.nl.
package huurwoningen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/Michiel-H/HuizenZoeker/config"
	"github.com/Michiel-H/HuizenZoeker/models"
	"github.com/Michiel-H/HuizenZoeker/normalizer"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

const (
	sourceName = "Huurwoningen.nl"
	baseURL    = "https://www.huurwoningen.nl"
	maxPages   = 8
)

var (
	priceRe = regexp.MustCompile(`€\s*([\d.,]+)`)
	areaRe  = regexp.MustCompile(`(\d+)\s*m²`)
)

// Collector crawls the Amsterdam search on Huurwoningen.nl with colly.
type Collector struct {
	cfg    *config.Config
	logger *utils.Logger
}

// New creates a Huurwoningen collector.
func New(cfg *config.Config, logger *utils.Logger) *Collector {
	return &Collector{cfg: cfg, logger: logger}
}

func (c *Collector) Source() string { return sourceName }

// Collect visits the paginated search results. Colly's LimitRule enforces
// the per-domain delay; per-item parse failures are skipped.
func (c *Collector) Collect() ([]models.RawListing, error) {
	var listings []models.RawListing
	hasNext := false

	crawler := colly.NewCollector(
		colly.AllowedDomains("www.huurwoningen.nl", "huurwoningen.nl"),
		colly.UserAgent(c.cfg.UserAgent),
		colly.MaxDepth(1),
	)
	crawler.SetRequestTimeout(c.cfg.RequestTimeout)

	if err := crawler.Limit(&colly.LimitRule{
		DomainGlob: "*huurwoningen.nl*",
		Delay:      c.cfg.RequestDelay,
	}); err != nil {
		return nil, fmt.Errorf("huurwoningen: limit rule: %w", err)
	}

	crawler.OnHTML(".listing-search-item, [class*='search-item']", func(e *colly.HTMLElement) {
		listing, ok := parseItem(e.DOM)
		if !ok {
			c.logger.Debug("[huurwoningen] Skipping unparseable item on %s", e.Request.URL)
			return
		}
		listings = append(listings, listing)
	})

	crawler.OnHTML("a[rel='next'], a.next", func(*colly.HTMLElement) {
		hasNext = true
	})

	crawler.OnError(func(r *colly.Response, err error) {
		c.logger.Error("[huurwoningen] Fetch error for %s: %v", r.Request.URL, err)
	})

	for page := 1; page <= maxPages; page++ {
		url := baseURL + "/in/amsterdam/"
		if page > 1 {
			url += fmt.Sprintf("page-%d/", page)
		}

		before := len(listings)
		hasNext = false

		if err := crawler.Visit(url); err != nil {
			c.logger.Error("[huurwoningen] Page %d visit error: %v", page, err)
			break
		}
		if len(listings) == before || !hasNext {
			break
		}
	}

	return listings, nil
}

// parseItem extracts one raw listing from a search-result item.
func parseItem(item *goquery.Selection) (models.RawListing, bool) {
	titleEl := item.Find("a[class*='title'], h2 a, h3 a").First()
	if titleEl.Length() == 0 {
		return models.RawListing{}, false
	}

	title := strings.TrimSpace(titleEl.Text())
	href, _ := titleEl.Attr("href")

	url := href
	if !strings.HasPrefix(href, "http") {
		url = baseURL + href
	}

	sourceID := ""
	if href != "" {
		parts := strings.Split(strings.Trim(href, "/"), "/")
		sourceID = parts[len(parts)-1]
	}

	var priceRaw *float64
	if priceEl := item.Find("[class*='price']").First(); priceEl.Length() > 0 {
		if m := priceRe.FindStringSubmatch(strings.TrimSpace(priceEl.Text())); m != nil {
			priceRaw = normalizer.ParsePriceString(m[1])
		}
	}

	location := ""
	if locEl := item.Find("[class*='location'], [class*='subtitle']").First(); locEl.Length() > 0 {
		location = strings.TrimSpace(locEl.Text())
	}

	var areaM2 *float64
	item.Find("[class*='feature'], li").EachWithBreak(func(_ int, feat *goquery.Selection) bool {
		if m := areaRe.FindStringSubmatch(strings.TrimSpace(feat.Text())); m != nil {
			if f, err := strconv.ParseFloat(m[1], 64); err == nil {
				areaM2 = &f
			}
			return false
		}
		return true
	})

	snippet := ""
	if descEl := item.Find("[class*='description']").First(); descEl.Length() > 0 {
		snippet = utils.Truncate(strings.TrimSpace(descEl.Text()), 300)
	}

	return models.RawListing{
		Source:             sourceName,
		SourceID:           sourceID,
		URL:                url,
		Title:              title,
		RawLocationText:    location,
		PriceRaw:           priceRaw,
		AreaM2:             areaM2,
		DescriptionSnippet: snippet,
	}, true
}
