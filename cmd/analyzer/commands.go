package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rahmetlabs/social-analyzer/internal/analyzer"
	"github.com/rahmetlabs/social-analyzer/internal/genai"
	"github.com/rahmetlabs/social-analyzer/internal/scheduler"
	"github.com/rahmetlabs/social-analyzer/internal/sources"
)

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "analyzer",
		Short:         "Consolidate, filter, rewrite and sync scraped social posts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	defaultPlatform := os.Getenv("PLATFORM")
	if defaultPlatform == "" {
		defaultPlatform = "twitter"
	}
	root.PersistentFlags().StringVarP(&a.platform, "platform", "p", defaultPlatform, "platform profile to use: twitter or reddit")

	root.AddCommand(
		newRunCommand(a),
		newSyncCommand(a),
		newScrapeCommand(a),
		newServeCommand(a),
		newCheckCommand(a),
	)
	return root
}

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the analyzer pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.analyzerService(cmd.Context(), true)
			if err != nil {
				return err
			}
			if _, err := svc.Run(cmd.Context()); err != nil {
				return reportedError{err}
			}
			return nil
		},
	}
}

func newSyncCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload local log records missing from the remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.analyzerService(cmd.Context(), false)
			if err != nil {
				return err
			}
			if _, err := svc.SyncOnly(cmd.Context()); err != nil {
				return reportedError{err}
			}
			return nil
		},
	}
}

func newScrapeCommand(a *app) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch new posts from the upstream platform into its raw partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			if source != "" && source != a.cfg.Platform {
				cfg, err := a.cfg.ForPlatform(source)
				if err != nil {
					return err
				}
				a.cfg = cfg
			}

			collector, err := a.collector(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := collector.Collect(cmd.Context()); err != nil {
				return reportedError{err}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "scraper to run: reddit or twitter (defaults to --platform)")
	return cmd
}

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled analyzer and scrape cycles with an HTTP control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, err := a.analyzerService(ctx, true)
			if err != nil {
				return err
			}

			var scraper scheduler.Scraper
			if collector, err := a.collector(ctx); err != nil {
				logrus.Warnf("Scheduled scraping disabled: %v", err)
			} else {
				scraper = collector
			}

			schedulerService := scheduler.NewService(a.cfg, svc, scraper)
			if err := schedulerService.Start(ctx); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			defer schedulerService.Stop()

			server := &http.Server{
				Addr:         fmt.Sprintf(":%s", a.cfg.Port),
				Handler:      newRouter(ctx, a.cfg.Platform, svc),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logrus.Infof("HTTP server starting on port %s", a.cfg.Port)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("HTTP server failed: %w", err)
			case <-ctx.Done():
			}

			logrus.Info("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logrus.Errorf("Server forced to shutdown: %v", err)
			}

			logrus.Info("Server exited")
			return nil
		},
	}
}

func (a *app) analyzerService(ctx context.Context, withRewriter bool) (*analyzer.Service, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	var rewriter genai.Rewriter
	if withRewriter {
		if rewriter, err = genai.New(a.cfg); err != nil {
			return nil, err
		}
	}

	return analyzer.NewService(a.cfg, store, rewriter, a.notifier), nil
}

func (a *app) collector(ctx context.Context) (*sources.Collector, error) {
	source, err := newSource(a.cfg)
	if err != nil {
		return nil, err
	}
	if !source.IsEnabled() {
		return nil, fmt.Errorf("%s scraper is not configured", source.GetName())
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	return sources.NewCollector(source, store, a.cfg.Profile.RawPartition, a.notifier), nil
}
