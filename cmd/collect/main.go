package main

import (
	"fmt"
	"os"

	"github.com/Michiel-H/HuizenZoeker/collectors/registry"
	"github.com/Michiel-H/HuizenZoeker/config"
	"github.com/Michiel-H/HuizenZoeker/dedupe"
	"github.com/Michiel-H/HuizenZoeker/matcher"
	"github.com/Michiel-H/HuizenZoeker/normalizer"
	"github.com/Michiel-H/HuizenZoeker/pipeline"
	"github.com/Michiel-H/HuizenZoeker/storage"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Verbose)
	logger.Info("Amsterdam rental collector starting")

	store, err := storage.Open(cfg, logger)
	if err != nil {
		logger.Error("Failed to open store: %v", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("Storage backend: %s", store.BackendName())

	cols := registry.All(cfg, logger)
	if len(cols) == 0 {
		logger.Error("No collectors enabled, check SOURCES")
		os.Exit(1)
	}

	hoodMatcher := matcher.New(cfg.Neighborhoods)
	norm := normalizer.New(hoodMatcher)
	engine := dedupe.New(dedupe.Config{
		PriceToleranceEUR: cfg.DedupePriceToleranceEUR,
		AreaToleranceM2:   cfg.DedupeAreaToleranceM2,
		CombinedThreshold: cfg.DedupeCombinedThreshold,
	})

	p := pipeline.New(cols, norm, engine, store, cfg, logger)
	summary := p.Run()

	if len(summary.Errors) > 0 && summary.Fetched == 0 {
		// Every source failed outright.
		os.Exit(1)
	}
}
