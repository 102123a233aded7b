package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/config"
	"github.com/rahmetlabs/social-analyzer/internal/models"
	"github.com/rahmetlabs/social-analyzer/internal/sources"
)

// Analyzer runs one analyzer pipeline pass
type Analyzer interface {
	Run(ctx context.Context) (*models.RunReport, error)
}

// Scraper runs one scrape cycle
type Scraper interface {
	Collect(ctx context.Context) (*sources.CollectResult, error)
}

// Service handles scheduling of analyzer and scrape cycles
type Service struct {
	config   *config.Config
	analyzer Analyzer
	scraper  Scraper
	cron     *cron.Cron
	cancel   context.CancelFunc
}

// NewService creates a new scheduler service. scraper may be nil when no source is configured.
func NewService(cfg *config.Config, analyzer Analyzer, scraper Scraper) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger := cron.PrintfLogger(logrus.StandardLogger())

	return &Service{
		config:   cfg,
		analyzer: analyzer,
		scraper:  scraper,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Start registers the jobs and begins scheduling. Jobs receive a context derived from ctx.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.config.AnalyzerSchedule != "" {
		_, err := s.cron.AddFunc(s.config.AnalyzerSchedule, func() {
			logrus.Infof("Starting scheduled analyzer run (%s)", s.config.Platform)
			if _, err := s.analyzer.Run(ctx); err != nil {
				logrus.Errorf("Scheduled analyzer run failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid analyzer schedule %q: %w", s.config.AnalyzerSchedule, err)
		}
	}

	if s.scraper != nil && s.config.ScrapeSchedule != "" {
		_, err := s.cron.AddFunc(s.config.ScrapeSchedule, func() {
			logrus.Infof("Starting scheduled scrape cycle (%s)", s.config.Platform)
			if _, err := s.scraper.Collect(ctx); err != nil {
				logrus.Errorf("Scheduled scrape cycle failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid scrape schedule %q: %w", s.config.ScrapeSchedule, err)
		}
	}

	s.cron.Start()
	logrus.Infof("Scheduler started: analyzer %q, scrape %q (%s)",
		s.config.AnalyzerSchedule, s.config.ScrapeSchedule, s.cron.Location())
	return nil
}

// Entries returns the number of scheduled jobs
func (s *Service) Entries() int {
	return len(s.cron.Entries())
}

// Stop cancels running jobs and waits for them to return
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	logrus.Info("Scheduler stopped")
}
