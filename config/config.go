package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds all application configuration loaded from environment
// variables and the neighborhood registry file. The core engines receive
// every tunable from here — nothing is hard-baked into the algorithms.
type Config struct {
	// Persistence. When DatabaseURL is set the Postgres backend is used,
	// otherwise the local SQLite file.
	DatabaseURL string
	SQLitePath  string

	// Scraping
	RequestDelay   time.Duration
	RequestTimeout time.Duration
	MaxRetries     int
	MaxConcurrency int
	UserAgent      string
	ChromeBin      string
	Sources        []string

	// Filtering
	MaxPriceEUR float64

	// Deduplication
	DedupePriceToleranceEUR float64
	DedupeAreaToleranceM2   float64
	DedupeCombinedThreshold float64

	// Change detection
	RemovedAfterMissingRuns int

	// Digest e-mail
	GmailAddress     string
	GmailAppPassword string
	ToEmail          string
	Timezone         string

	// API
	APIAddr string

	Verbose bool

	// Neighborhoods maps each canonical neighborhood name to its known
	// text variants.
	Neighborhoods map[string][]string
}

// Load reads the .env file (if present), environment variables and the
// neighborhood registry, and returns a populated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/rentals.db"),

		RequestDelay:   time.Duration(getEnvInt("REQUEST_DELAY_MS", 1000)) * time.Millisecond,
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		UserAgent: getEnv("USER_AGENT",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
				"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		ChromeBin: getEnv("CHROME_BIN", ""),
		Sources:   splitList(getEnv("SOURCES", "pararius,huurwoningen,funda")),

		MaxPriceEUR: getEnvFloat("MAX_PRICE_EUR", 2500),

		DedupePriceToleranceEUR: getEnvFloat("DEDUPE_PRICE_TOLERANCE_EUR", 50),
		DedupeAreaToleranceM2:   getEnvFloat("DEDUPE_AREA_TOLERANCE_M2", 5),
		DedupeCombinedThreshold: getEnvFloat("DEDUPE_COMBINED_THRESHOLD", 0.70),

		RemovedAfterMissingRuns: getEnvInt("REMOVED_AFTER_MISSING_RUNS", 2),

		GmailAddress:     getEnv("GMAIL_ADDRESS", ""),
		GmailAppPassword: getEnv("GMAIL_APP_PASSWORD", ""),
		Timezone:         getEnv("TIMEZONE", "Europe/Amsterdam"),

		APIAddr: getEnv("API_ADDR", ":8080"),

		Verbose: getEnvBool("VERBOSE", false),
	}
	cfg.ToEmail = getEnv("TO_EMAIL", cfg.GmailAddress)

	hoods, err := loadNeighborhoods(getEnv("NEIGHBORHOODS_PATH", ""))
	if err != nil {
		return nil, err
	}
	cfg.Neighborhoods = hoods

	return cfg, nil
}

// UsePostgres reports whether the Postgres backend was selected.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// loadNeighborhoods reads the canonical-name→variants registry from a YAML
// file, or returns the built-in Amsterdam registry when no path is given.
func loadNeighborhoods(path string) (map[string][]string, error) {
	if path == "" {
		return defaultNeighborhoods(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read neighborhoods file %q: %w", path, err)
	}

	var hoods map[string][]string
	if err := yaml.Unmarshal(data, &hoods); err != nil {
		return nil, fmt.Errorf("config: parse neighborhoods file %q: %w", path, err)
	}
	if len(hoods) == 0 {
		return nil, fmt.Errorf("config: neighborhoods file %q is empty", path)
	}
	return hoods, nil
}

// defaultNeighborhoods is the target Amsterdam registry used when no
// NEIGHBORHOODS_PATH is configured.
func defaultNeighborhoods() map[string][]string {
	return map[string][]string{
		"De Baarsjes": {
			"de baarsjes", "baarsjes",
			"amsterdam-west de baarsjes", "amsterdam west de baarsjes",
		},
		"Centrum": {
			"centrum", "amsterdam centrum", "amsterdam-centrum", "binnenstad",
		},
		"Houthavens": {
			"houthavens", "houthaven",
		},
		"Oud-West": {
			"oud-west", "oud west", "oudwest",
			"amsterdam oud-west", "amsterdam oud west",
		},
		"Oud-Zuid": {
			"oud-zuid", "oud zuid", "oudzuid",
			"amsterdam oud-zuid", "amsterdam oud zuid", "amsterdam-zuid oud-zuid",
		},
		"De Pijp": {
			"de pijp", "pijp", "depijp",
		},
		"Plantagebuurt": {
			"plantagebuurt", "plantage", "plantage buurt",
		},
		"Rivierenbuurt": {
			"rivierenbuurt", "rivieren buurt",
		},
		"Schinkelbuurt": {
			"schinkelbuurt", "schinkel buurt", "schinkel",
		},
		"Weesperzijde": {
			"weesperzijde",
		},
		"Westerpark": {
			"westerpark", "wester park",
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}
