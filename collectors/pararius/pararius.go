// Package pararius collects rental listings from Pararius.nl search pages.
package pararius

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Michiel-H/HuizenZoeker/collectors"
	"github.com/Michiel-H/HuizenZoeker/models"
	"github.com/Michiel-H/HuizenZoeker/normalizer"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

const (
	sourceName = "Pararius"
	baseURL    = "https://www.pararius.nl"
	maxPages   = 10
)

var (
	priceRe       = regexp.MustCompile(`€\s*([\d.,]+)`)
	areaRe        = regexp.MustCompile(`(\d+)\s*m²`)
	serviceCostRe = regexp.MustCompile(`servicekosten\s*€?\s*([\d.,]+)`)
)

// Collector scrapes the Amsterdam rental search on Pararius.
type Collector struct {
	client *collectors.Client
	logger *utils.Logger
}

// New creates a Pararius collector sharing the given HTTP client.
func New(client *collectors.Client, logger *utils.Logger) *Collector {
	return &Collector{client: client, logger: logger}
}

func (c *Collector) Source() string { return sourceName }

// Collect walks the paginated search results. Per-item parse failures are
// logged and skipped; a page fetch failure ends pagination with whatever was
// gathered so far.
func (c *Collector) Collect() ([]models.RawListing, error) {
	var listings []models.RawListing

	for page := 1; page <= maxPages; page++ {
		url := baseURL + "/huurwoningen/amsterdam/0-2500/"
		if page > 1 {
			url += fmt.Sprintf("page-%d", page)
		}

		html, err := c.client.FetchPage(url)
		if err != nil {
			c.logger.Error("[pararius] Page %d fetch error: %v", page, err)
			break
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			c.logger.Error("[pararius] Page %d parse error: %v", page, err)
			break
		}

		items := doc.Find("li.search-list__item--listing, section.listing-search-item")
		if items.Length() == 0 {
			break
		}

		items.Each(func(_ int, item *goquery.Selection) {
			listing, ok := parseItem(item)
			if !ok {
				c.logger.Debug("[pararius] Skipping unparseable item on page %d", page)
				return
			}
			listings = append(listings, listing)
		})

		if doc.Find("a.pagination__link--next").Length() == 0 {
			break
		}
	}

	return listings, nil
}

// parseItem extracts one raw listing from a search-result item.
func parseItem(item *goquery.Selection) (models.RawListing, bool) {
	titleEl := item.Find("a.listing-search-item__link--title, a[class*='title']").First()
	if titleEl.Length() == 0 {
		return models.RawListing{}, false
	}

	title := strings.TrimSpace(titleEl.Text())
	href, _ := titleEl.Attr("href")

	url := href
	if strings.HasPrefix(href, "/") {
		url = baseURL + href
	}

	sourceID := ""
	if href != "" {
		parts := strings.Split(strings.Trim(href, "/"), "/")
		sourceID = parts[len(parts)-1]
	}

	var priceRaw *float64
	if priceEl := item.Find(".listing-search-item__price, [class*='price']").First(); priceEl.Length() > 0 {
		if m := priceRe.FindStringSubmatch(strings.TrimSpace(priceEl.Text())); m != nil {
			priceRaw = normalizer.ParsePriceString(m[1])
		}
	}

	location := ""
	if locEl := item.Find(".listing-search-item__sub-title, [class*='location']").First(); locEl.Length() > 0 {
		location = strings.TrimSpace(locEl.Text())
	}

	var areaM2 *float64
	item.Find(".illustrated-features__item, li").EachWithBreak(func(_ int, feat *goquery.Selection) bool {
		if m := areaRe.FindStringSubmatch(strings.TrimSpace(feat.Text())); m != nil {
			if f, err := strconv.ParseFloat(m[1], 64); err == nil {
				areaM2 = &f
			}
			return false
		}
		return true
	})

	snippet := ""
	if descEl := item.Find(".listing-search-item__description").First(); descEl.Length() > 0 {
		snippet = utils.Truncate(strings.TrimSpace(descEl.Text()), 300)
	}

	var serviceCosts *float64
	includesService := false
	if condEl := item.Find(".listing-search-item__price-conditions").First(); condEl.Length() > 0 {
		condText := strings.ToLower(strings.TrimSpace(condEl.Text()))
		if m := serviceCostRe.FindStringSubmatch(condText); m != nil {
			serviceCosts = normalizer.ParseAmount(m[1])
		}
		if strings.Contains(condText, "incl") && strings.Contains(condText, "service") {
			includesService = true
		}
	}

	return models.RawListing{
		Source:                    sourceName,
		SourceID:                  sourceID,
		URL:                       url,
		Title:                     title,
		RawLocationText:           location,
		PriceRaw:                  priceRaw,
		ServiceCostsRaw:           serviceCosts,
		PriceIncludesServiceCosts: includesService,
		AreaM2:                    areaM2,
		DescriptionSnippet:        snippet,
	}, true
}
