package collectors

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Michiel-H/HuizenZoeker/config"
	"github.com/Michiel-H/HuizenZoeker/models"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

// Collector is the per-source collection capability. Collect may fail; the
// pipeline always goes through SafeCollect, which never does.
type Collector interface {
	Source() string
	Collect() ([]models.RawListing, error)
}

// SafeCollect runs a collector with full error containment: errors and
// panics are logged and degrade to a partial or empty result, never a
// pipeline abort. The error comes back so the caller can record it and skip
// the missing-run sweep, but it carries whatever was gathered regardless.
func SafeCollect(c Collector, logger *utils.Logger) (listings []models.RawListing, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[%s] Collector panicked: %v", c.Source(), r)
			listings = nil
			err = fmt.Errorf("collector panic: %v", r)
		}
	}()

	listings, err = c.Collect()
	if err != nil {
		logger.Error("[%s] Collection failed: %v", c.Source(), err)
		// Keep whatever was gathered before the failure.
	}
	logger.Info("[%s] Collected %d listings", c.Source(), len(listings))
	return listings, err
}

// Client is the shared HTTP fetcher for plain-HTML sources: browser-like
// headers, a minimum delay between requests to the same site, and
// exponential-backoff retries on transport failures.
type Client struct {
	http    *http.Client
	limiter *utils.RateLimiter
	retry   *utils.RetryConfig
	agent   string
	logger  *utils.Logger
}

// NewClient builds a Client from the scraping section of the configuration.
func NewClient(cfg *config.Config, logger *utils.Logger) *Client {
	return &Client{
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: utils.NewRateLimiter(cfg.RequestDelay),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
			Logger:      logger,
		},
		agent:  cfg.UserAgent,
		logger: logger,
	}
}

// FetchPage retrieves one HTML page with rate limiting and retries.
func (c *Client) FetchPage(url string) (string, error) {
	var body string

	err := c.retry.Do("fetch "+url, func() error {
		c.limiter.Wait()

		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", c.agent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "nl-NL,nl;q=0.9,en;q=0.8")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return body, nil
}
