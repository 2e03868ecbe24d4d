// Package funda collects rental listings from Funda.nl. Funda renders its
// search results client-side, so this collector drives a headless browser
// instead of parsing static HTML.
package funda

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/Michiel-H/HuizenZoeker/config"
	"github.com/Michiel-H/HuizenZoeker/models"
	"github.com/Michiel-H/HuizenZoeker/normalizer"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

const (
	sourceName = "Funda"
	baseURL    = "https://www.funda.nl"
	maxPages   = 10
)

var (
	sourceIDRe = regexp.MustCompile(`/(\d+)-`)
	priceRe    = regexp.MustCompile(`€\s*([\d.,]+)`)
	postcodeRe = regexp.MustCompile(`(\d{4}\s*[A-Z]{2})\s+([^€]+)`)
	areaRe     = regexp.MustCompile(`(\d+)\s*m²`)
	bedroomsRe = regexp.MustCompile(`(\d+)\s*(?:slaap)?kamer`)
	labelRe    = regexp.MustCompile(`^(Nieuw|Uitgelicht|In prijs verlaagd|Blikvanger|Open huis|Top-listing)\s+`)
)

// anchorData is what the in-page extraction script returns per listing link.
type anchorData struct {
	Href  string `json:"href"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Collector scrapes the Amsterdam rental search on Funda via chromedp.
type Collector struct {
	cfg     *config.Config
	logger  *utils.Logger
	retry   *utils.RetryConfig
	visited *utils.StringSet
	pool    *utils.WorkerPool
}

// New creates a Funda collector.
func New(cfg *config.Config, logger *utils.Logger) *Collector {
	workers := cfg.MaxConcurrency
	if workers < 1 {
		workers = 1
	}
	return &Collector{
		cfg:    cfg,
		logger: logger,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
			Logger:      logger,
		},
		visited: utils.NewStringSet(),
		pool:    utils.NewWorkerPool(workers, cfg.RequestDelay),
	}
}

func (c *Collector) Source() string { return sourceName }

// Collect drives a headless browser through the paginated search results.
func (c *Collector) Collect() ([]models.RawListing, error) {
	chromeBin := findChromeBinary(c.cfg.ChromeBin)
	c.logger.Debug("[funda] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(c.cfg.UserAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise.
	silentCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelSilent()

	var listings []models.RawListing

	for page := 1; page <= maxPages; page++ {
		url := baseURL + "/huur/amsterdam/0-2200/"
		if page > 1 {
			url += fmt.Sprintf("p%d/", page)
		}

		anchors, err := c.scrapePage(silentCtx, url, page)
		if err != nil {
			c.logger.Error("[funda] Page %d failed: %v", page, err)
			break
		}
		if len(anchors) == 0 {
			break
		}

		added := 0
		for _, a := range anchors {
			if a.Href == "" || !c.visited.Add(a.Href) {
				continue
			}
			listing, ok := parseAnchor(a)
			if !ok {
				c.logger.Debug("[funda] Skipping unparseable anchor: %s", a.Href)
				continue
			}
			listings = append(listings, listing)
			added++
		}

		c.logger.Debug("[funda] Page %d — %d new listings", page, added)
		if added == 0 {
			break
		}

		time.Sleep(c.cfg.RequestDelay)
	}

	c.enrichListings(silentCtx, listings)

	return listings, nil
}

// detailData is what the detail-page extraction script returns.
type detailData struct {
	Description string `json:"description"`
	Text        string `json:"text"`
}

// enrichListings visits detail pages for listings whose card text lacked
// area, bedrooms or a description, fanning out over the worker pool.
func (c *Collector) enrichListings(allocCtx context.Context, listings []models.RawListing) {
	for i := range listings {
		l := &listings[i]
		if l.URL == "" {
			continue
		}
		if l.AreaM2 != nil && l.Bedrooms != nil && l.DescriptionSnippet != "" {
			continue
		}

		c.pool.Submit(func() {
			detail, err := c.scrapeDetailPage(allocCtx, l.URL)
			if err != nil {
				c.logger.Warn("[funda] Detail page failed for %s: %v", l.URL, err)
				return
			}
			applyDetail(l, detail)
			c.logger.Debug("[funda] Enriched: %s", l.Title)
		})
	}
	c.pool.Wait()
}

// scrapeDetailPage loads one listing page and extracts its description plus
// the full page text for feature parsing.
func (c *Collector) scrapeDetailPage(allocCtx context.Context, url string) (detailData, error) {
	var detail detailData

	err := c.retry.Do("funda-detail", func() error {
		ctx, cancel := chromedp.NewContext(allocCtx)
		defer cancel()

		ctx, cancelTimeout := context.WithTimeout(ctx, 60*time.Second)
		defer cancelTimeout()

		err := chromedp.Run(ctx,
			chromedp.Navigate(url),
			chromedp.Sleep(3*time.Second),

			chromedp.Evaluate(`
				(function() {
					var desc = '';
					var el = document.querySelector('[class*="description"], [data-test-id="description"]');
					if (el) desc = (el.innerText || '').trim();
					return {
						description: desc,
						text: (document.body.innerText || '').replace(/\n/g, ' ').trim()
					};
				})()
			`, &detail),
		)
		if err != nil {
			return fmt.Errorf("chromedp detail scrape: %w", err)
		}
		return nil
	})

	return detail, err
}

// applyDetail fills fields the card text did not provide. Card-level values
// win; detail data only covers gaps.
func applyDetail(l *models.RawListing, d detailData) {
	if l.DescriptionSnippet == "" {
		l.DescriptionSnippet = d.Description
	}
	if l.AreaM2 == nil {
		if m := areaRe.FindStringSubmatch(d.Text); m != nil {
			if f, err := strconv.ParseFloat(m[1], 64); err == nil {
				l.AreaM2 = models.Float64(f)
			}
		}
	}
	if l.Bedrooms == nil {
		if m := bedroomsRe.FindStringSubmatch(d.Text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				l.Bedrooms = models.Int(n)
			}
		}
	}
	if l.RawLocationText == "" {
		if m := postcodeRe.FindStringSubmatch(d.Text); m != nil {
			l.RawLocationText = m[1] + " " + strings.TrimSpace(m[2])
		}
	}
}

// scrapePage loads one search page and extracts every rental detail anchor
// together with its surrounding card text.
func (c *Collector) scrapePage(allocCtx context.Context, pageURL string, pageNum int) ([]anchorData, error) {
	var anchors []anchorData

	err := c.retry.Do(fmt.Sprintf("funda-page-%d", pageNum), func() error {
		ctx, cancel := chromedp.NewContext(allocCtx)
		defer cancel()

		ctx, cancelTimeout := context.WithTimeout(ctx, 90*time.Second)
		defer cancelTimeout()

		var result []anchorData

		err := chromedp.Run(ctx,
			chromedp.Navigate(pageURL),
			chromedp.Sleep(4*time.Second),
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(2*time.Second),

			chromedp.Evaluate(`
				(function() {
					var out = [];
					var seen = {};
					var anchors = document.querySelectorAll('a[href*="/detail/huur/"]');
					for (var i = 0; i < anchors.length; i++) {
						var a = anchors[i];
						var href = a.getAttribute('href') || '';
						if (!href || seen[href]) continue;
						seen[href] = true;

						var card = a.closest('div[class*="border-b"], div[class*="flex-col"]') || a.parentElement;
						out.push({
							href:  href,
							title: (a.innerText || '').trim(),
							text:  card ? (card.innerText || '').replace(/\n/g, ' ').trim() : ''
						});
					}
					return out;
				})()
			`, &result),
		)
		if err != nil {
			return fmt.Errorf("chromedp page scrape: %w", err)
		}

		anchors = result
		return nil
	})

	return anchors, err
}

// parseAnchor turns one extracted anchor into a raw listing, pulling price,
// location, area and bedrooms from the card text.
func parseAnchor(a anchorData) (models.RawListing, bool) {
	title := strings.TrimSpace(labelRe.ReplaceAllString(a.Title, ""))
	if title == "" {
		return models.RawListing{}, false
	}

	url := a.Href
	if strings.HasPrefix(a.Href, "/") {
		url = baseURL + a.Href
	}

	sourceID := ""
	if m := sourceIDRe.FindStringSubmatch(a.Href); m != nil {
		sourceID = m[1]
	}

	var priceRaw *float64
	if m := priceRe.FindStringSubmatch(a.Text); m != nil {
		priceRaw = normalizer.ParsePriceString(m[1])
	}

	location := ""
	if m := postcodeRe.FindStringSubmatch(a.Text); m != nil {
		location = m[1] + " " + strings.TrimSpace(m[2])
	}

	var areaM2 *float64
	if m := areaRe.FindStringSubmatch(a.Text); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			areaM2 = models.Float64(f)
		}
	}

	var bedrooms *int
	if m := bedroomsRe.FindStringSubmatch(a.Text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			bedrooms = models.Int(n)
		}
	}

	return models.RawListing{
		Source:          sourceName,
		SourceID:        sourceID,
		URL:             url,
		Title:           title,
		RawLocationText: location,
		PriceRaw:        priceRaw,
		AreaM2:          areaM2,
		Bedrooms:        bedrooms,
	}, true
}

// findChromeBinary locates a Chrome/Chromium binary, preferring the
// configured path.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
