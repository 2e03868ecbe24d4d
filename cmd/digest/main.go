package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Michiel-H/HuizenZoeker/config"
	"github.com/Michiel-H/HuizenZoeker/notifier"
	"github.com/Michiel-H/HuizenZoeker/storage"
	"github.com/Michiel-H/HuizenZoeker/utils"
)

func main() {
	force := flag.Bool("force", false, "send regardless of the hour window and the sent-today guard")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Verbose)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("Unknown timezone %q, using UTC", cfg.Timezone)
		loc = time.UTC
	}
	now := time.Now().In(loc)
	today := now.Format("2006-01-02")

	// The digest goes out once per day, in the early-morning window. A cron
	// job may fire this more often; the guards make re-runs harmless.
	if !*force && (now.Hour() < 7 || now.Hour() >= 8) {
		logger.Info("Outside the 07:00-08:00 send window (%s), nothing to do", now.Format("15:04"))
		return
	}

	store, err := storage.Open(cfg, logger)
	if err != nil {
		logger.Error("Failed to open store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	if !*force {
		sent, err := store.WasEmailSentToday(today)
		if err != nil {
			logger.Error("Failed to check email log: %v", err)
			os.Exit(1)
		}
		if sent {
			logger.Info("Digest for %s already sent", today)
			return
		}
	}

	n := notifier.New(cfg, logger)
	if !n.Enabled() {
		logger.Warn("Gmail credentials not configured, digest disabled")
		return
	}

	since := now.Add(-24 * time.Hour).UTC()
	changes, err := store.DailyChanges(since)
	if err != nil {
		logger.Error("Failed to query daily changes: %v", err)
		os.Exit(1)
	}

	if len(changes.New) == 0 && len(changes.Changed) == 0 && len(changes.Removed) == 0 {
		logger.Info("No changes since %s, skipping digest", since.Format(time.RFC3339))
		return
	}

	if err := n.SendDailyDigest(today, changes); err != nil {
		logger.Error("Failed to send digest: %v", err)
		os.Exit(1)
	}

	if err := store.LogEmailSent(today, len(changes.New), len(changes.Changed), len(changes.Removed)); err != nil {
		logger.Error("Digest sent but failed to record it: %v", err)
		os.Exit(1)
	}
}
