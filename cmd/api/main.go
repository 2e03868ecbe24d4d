package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Michiel-H/HuizenZoeker/api"
	"github.com/Michiel-H/HuizenZoeker/config"
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

	store, err := storage.Open(cfg, logger)
	if err != nil {
		logger.Error("Failed to open store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	server := api.NewServer(store, logger)

	srv := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	logger.Info("API listening on %s (backend: %s)", cfg.APIAddr, store.BackendName())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("API server error: %v", err)
		os.Exit(1)
	}
}
