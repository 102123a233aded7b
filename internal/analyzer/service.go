package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/config"
	"github.com/rahmetlabs/social-analyzer/internal/consolidate"
	"github.com/rahmetlabs/social-analyzer/internal/genai"
	"github.com/rahmetlabs/social-analyzer/internal/ingest"
	"github.com/rahmetlabs/social-analyzer/internal/ledger"
	"github.com/rahmetlabs/social-analyzer/internal/models"
	"github.com/rahmetlabs/social-analyzer/internal/notifications"
	"github.com/rahmetlabs/social-analyzer/internal/relevance"
	"github.com/rahmetlabs/social-analyzer/internal/retry"
	"github.com/rahmetlabs/social-analyzer/internal/rewrite"
	"github.com/rahmetlabs/social-analyzer/internal/state"
	"github.com/rahmetlabs/social-analyzer/internal/storage"
	"github.com/rahmetlabs/social-analyzer/internal/syncer"
)

// ErrRunInProgress is returned when a run is requested while another one is active
var ErrRunInProgress = errors.New("an analyzer run is already in progress")

const notifyTimeout = 30 * time.Second

// Service runs the analyzer pipeline for one platform
type Service struct {
	config              *config.Config
	store               storage.Store
	rewriter            genai.Rewriter
	notificationService notifications.NotificationInterface
	metrics             *Metrics
	mu                  sync.RWMutex
	runMu               sync.Mutex
	running             atomic.Bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Metrics holds analyzer metrics
type Metrics struct {
	Runs            int              `json:"runs"`
	LastRun         time.Time        `json:"last_run"`
	LastRunDuration string           `json:"last_run_duration"`
	LastRunID       string           `json:"last_run_id"`
	LastStatus      models.RunStatus `json:"last_status"`
	TotalRewritten  int              `json:"total_rewritten"`
	TotalFailed     int              `json:"total_failed"`
	TotalSynced     int              `json:"total_synced"`
	ErrorCount      int              `json:"error_count"`
}

// NewService creates a new analyzer service
func NewService(cfg *config.Config, store storage.Store, rewriter genai.Rewriter, notificationService notifications.NotificationInterface) *Service {
	return &Service{
		config:              cfg,
		store:               store,
		rewriter:            rewriter,
		notificationService: notificationService,
		metrics:             &Metrics{},
		now:                 time.Now,
		sleep:               retry.Sleep,
	}
}

// Run performs one full pipeline run and sends exactly one summary notification.
// Early exits still sync the local log; stage-fatal errors and interruptions do not.
func (s *Service) Run(ctx context.Context) (*models.RunReport, error) {
	if !s.acquire() {
		return nil, ErrRunInProgress
	}
	defer s.release()

	report := s.newReport()
	log := logrus.WithFields(logrus.Fields{"run_id": report.RunID, "platform": report.Platform})
	log.Info("Starting analyzer run")

	err := s.run(ctx, report, log)
	return s.finish(ctx, report, err)
}

// IsRunning reports whether a run or sync is in progress
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

func (s *Service) acquire() bool {
	if !s.runMu.TryLock() {
		return false
	}
	s.running.Store(true)
	return true
}

func (s *Service) release() {
	s.running.Store(false)
	s.runMu.Unlock()
}

func (s *Service) run(ctx context.Context, report *models.RunReport, log *logrus.Entry) error {
	profile := s.config.Profile
	platform := models.Platform(s.config.Platform)

	if err := s.store.EnsurePartition(ctx, profile.TargetPartition, models.TargetColumns); err != nil {
		return fmt.Errorf("preparing target partition %s: %w", profile.TargetPartition, err)
	}

	// 1. Read raw rows
	read, err := ingest.NewReader(s.store, platform).Read(ctx, profile.SourcePartitions)
	if err != nil {
		return fmt.Errorf("reading source data: %w", err)
	}
	for _, e := range read.Errors {
		report.AddError(e)
	}
	report.RawRows = len(read.Rows)

	// 2. Load processed state
	processed, err := state.NewLoader(s.store, profile.TargetPartition, profile.LocalStateFile).Load(ctx)
	if err != nil {
		return err
	}
	report.AddError(processed.RemoteErr)

	// 3. Consolidate
	consolidated := consolidate.New(platform, s.config.Location).WithClock(s.now).Consolidate(read.Rows)
	report.Units = len(consolidated.Units)
	if len(consolidated.Units) == 0 {
		report.Message = "No processable data found after consolidation."
		return s.syncOnly(ctx, report, log)
	}

	// 4. Exclude processed, then filter
	fresh, dropped := state.ExcludeProcessed(consolidated.Units, processed.All)
	report.AlreadyProcessed = dropped
	log.Infof("%d units left after excluding %d already processed", len(fresh), dropped)

	relevant, _ := relevance.Standard(relevance.Options{
		AllowedTypes:  profile.AllowedTypes,
		MinLength:     s.config.MinContentLength,
		Keywords:      s.config.Keywords,
		PromptMarkers: s.config.PromptMarkers,
		MaxCodeFences: s.config.MaxCodeFences,
	}).Apply(fresh)
	report.Relevant = len(relevant)
	if len(relevant) == 0 {
		report.Message = "No new relevant items to process."
		return s.syncOnly(ctx, report, log)
	}

	// 5. Rewrite, recording each unit locally as it completes
	writer, err := ledger.Open(profile.LocalStateFile)
	if err != nil {
		return err
	}
	engine := rewrite.NewEngine(s.rewriter, writer, s.rewriteOptions())
	summary, runErr := engine.Run(ctx, relevant)
	if closeErr := writer.Close(); closeErr != nil {
		report.AddError(fmt.Errorf("closing local log: %w", closeErr))
	}

	report.Rewritten = summary.Succeeded
	report.RewriteFailed = summary.Failed
	report.EmptySource = summary.EmptySource
	for _, e := range summary.Errors {
		report.AddError(e)
	}
	if runErr != nil {
		return runErr
	}

	// 6. Sync
	return s.sync(ctx, report, log)
}

// SyncOnly uploads whatever the local log holds that the remote store lacks
func (s *Service) SyncOnly(ctx context.Context) (*models.RunReport, error) {
	if !s.acquire() {
		return nil, ErrRunInProgress
	}
	defer s.release()

	report := s.newReport()
	log := logrus.WithFields(logrus.Fields{"run_id": report.RunID, "platform": report.Platform})

	err := s.store.EnsurePartition(ctx, s.config.Profile.TargetPartition, models.TargetColumns)
	if err == nil {
		report.Message = "Manual sync of the local log."
		err = s.sync(ctx, report, log)
	}
	return s.finish(ctx, report, err)
}

func (s *Service) syncOnly(ctx context.Context, report *models.RunReport, log *logrus.Entry) error {
	log.Info(report.Message)
	if err := s.sync(ctx, report, log); err != nil {
		return err
	}
	report.Status = models.RunNothingNew
	return nil
}

func (s *Service) sync(ctx context.Context, report *models.RunReport, log *logrus.Entry) error {
	result, err := syncer.New(s.store, s.config.Profile.TargetPartition, s.config.Profile.LocalStateFile).Sync(ctx)
	if result != nil {
		report.Synced = result.Uploaded
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Errorf("Sync failed: %v", err)
		report.AddError(err)
		return nil
	}
	log.Infof("Sync complete: %d rows uploaded", result.Uploaded)
	return nil
}

func (s *Service) finish(ctx context.Context, report *models.RunReport, err error) (*models.RunReport, error) {
	report.Duration = s.now().Sub(report.StartedAt)

	switch {
	case ctx.Err() != nil:
		report.Status = models.RunStopped
		report.Message = "Analyzer stopped by user. Completed items are saved locally and will sync on the next run."
		err = ctx.Err()
	case err != nil:
		report.Status = models.RunFailed
		report.Message = err.Error()
	case report.Status == models.RunNothingNew && len(report.Errors) == 0:
	case len(report.Errors) > 0:
		report.Status = models.RunPartial
	default:
		report.Status = models.RunSucceeded
	}

	s.updateMetrics(report)
	s.notify(ctx, report)

	logrus.WithFields(logrus.Fields{"run_id": report.RunID, "status": report.Status}).
		Infof("Analyzer run completed in %v", report.Duration)
	return report, err
}

// notify sends the report even when ctx is already cancelled; failures are only logged
func (s *Service) notify(ctx context.Context, report *models.RunReport) {
	if s.notificationService == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.notificationService.SendReport(notifyCtx, report); err != nil {
		logrus.Warnf("Failed to send run summary: %v", err)
	}
}

func (s *Service) newReport() *models.RunReport {
	return &models.RunReport{
		RunID:           uuid.NewString(),
		Platform:        s.config.Platform,
		StartedAt:       s.now(),
		TargetPartition: s.config.Profile.TargetPartition,
	}
}

func (s *Service) rewriteOptions() rewrite.Options {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = s.config.MaxAttempts
	policy.BaseDelay = s.config.RetryBaseDelay
	policy.AttemptTimeout = s.config.RewriteTimeout
	policy.Sleep = s.sleep

	return rewrite.Options{
		Concurrency:    s.config.ConcurrentRequests,
		InterCallDelay: s.config.InterCallDelay,
		PostUnitDelay:  s.config.PostUnitDelay,
		Retry:          policy,
		Sleep:          s.sleep,
	}
}

func (s *Service) updateMetrics(report *models.RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Runs++
	s.metrics.LastRun = report.StartedAt
	s.metrics.LastRunDuration = report.Duration.String()
	s.metrics.LastRunID = report.RunID
	s.metrics.LastStatus = report.Status
	s.metrics.TotalRewritten += report.Rewritten
	s.metrics.TotalFailed += report.RewriteFailed
	s.metrics.TotalSynced += report.Synced
	s.metrics.ErrorCount += len(report.Errors)
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
