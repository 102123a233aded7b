package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/config"
	"github.com/rahmetlabs/social-analyzer/internal/models"
	"github.com/rahmetlabs/social-analyzer/internal/notifications"
	"github.com/rahmetlabs/social-analyzer/internal/sources"
	"github.com/rahmetlabs/social-analyzer/internal/storage"
)

// app carries what the subcommands share once configuration is loaded
type app struct {
	platform string
	cfg      *config.Config
	notifier *notifications.Service
	store    storage.Store
	closers  []func() error
}

// reportedError marks failures whose summary was already sent
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error { return e.error }

func (a *app) load() error {
	cfg, err := config.Load(a.platform)
	if cfg != nil {
		// failures from here on can be notified
		a.notifier = notifications.NewService(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg

	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logrus.Warnf("Failed to close resource: %v", err)
		}
	}
	a.closers = nil
}

// notifyFatal sends a top-level failure unless a run summary already covered it
func (a *app) notifyFatal(err error) {
	var reported reportedError
	if a.notifier == nil || errors.As(err, &reported) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg := fmt.Sprintf("🚨 CRITICAL ERROR in analyzer (%s): %v", a.platform, err)
	if nerr := a.notifier.Notify(ctx, msg); nerr != nil {
		logrus.Warnf("Failed to send failure notification: %v", nerr)
	}
}

// openStore connects the configured backend once and reuses it across commands
func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := a.connectStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *app) connectStore(ctx context.Context) (storage.Store, error) {
	cfg := a.cfg
	switch cfg.StoreBackend {
	case config.BackendGoogleSheets:
		store, err := storage.NewGoogleSheets(ctx, cfg.GoogleSheetsURL, cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets storage: %w", err)
		}
		return store, nil
	case config.BackendAzureBlob:
		store, err := storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Azure storage: %w", err)
		}
		return store, nil
	case config.BackendSQLite:
		store, err := storage.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// newSource returns the scraper of a platform
func newSource(cfg *config.Config) (sources.Source, error) {
	switch models.Platform(cfg.Platform) {
	case models.PlatformTwitter:
		return sources.NewTwitterSource(cfg), nil
	case models.PlatformReddit:
		return sources.NewRedditSource(cfg), nil
	default:
		return nil, fmt.Errorf("no scraper for platform %q", cfg.Platform)
	}
}
