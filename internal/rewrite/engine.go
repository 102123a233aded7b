package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rahmetlabs/social-analyzer/internal/genai"
	"github.com/rahmetlabs/social-analyzer/internal/models"
	"github.com/rahmetlabs/social-analyzer/internal/retry"
)

// UnitLog durably records a finished unit
type UnitLog interface {
	Append(unit models.ContentUnit) error
}

// Options tunes pacing and retries
type Options struct {
	// Concurrency is the number of units in flight; 1 serializes everything including delays
	Concurrency    int
	InterCallDelay time.Duration
	PostUnitDelay  time.Duration
	Retry          retry.Policy
	// Sleep defaults to retry.Sleep
	Sleep func(ctx context.Context, d time.Duration) error
}

// Summary describes what a Run did
type Summary struct {
	Succeeded   int
	Failed      int
	EmptySource int
	Logged      int
	Units       []models.ContentUnit
	Errors      []error
}

// Engine rewrites units into both languages and logs each one as soon as it is done
type Engine struct {
	rewriter genai.Rewriter
	log      UnitLog
	opts     Options
	gate     *semaphore.Weighted

	mu      sync.Mutex
	summary *Summary
}

// NewEngine creates an engine with an admission gate of opts.Concurrency permits
func NewEngine(rewriter genai.Rewriter, log UnitLog, opts Options) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	return &Engine{
		rewriter: rewriter,
		log:      log,
		opts:     opts,
		gate:     semaphore.NewWeighted(int64(opts.Concurrency)),
	}
}

// Run processes units in order. It returns early with ctx's error when interrupted;
// the unit in flight at that moment is not logged and will be retried next run.
func (e *Engine) Run(ctx context.Context, units []models.ContentUnit) (*Summary, error) {
	e.summary = &Summary{}
	total := len(units)

	var g errgroup.Group
	for i, unit := range units {
		i, unit := i, unit
		if err := e.gate.Acquire(ctx, 1); err != nil {
			break
		}

		g.Go(func() error {
			defer e.gate.Release(1)

			logrus.Infof("Processing item %d/%d: %s", i+1, total, unit.CanonicalURL)
			e.processUnit(ctx, unit)

			if i < total-1 {
				// cancellation surfaces at the next Acquire
				_ = e.opts.Sleep(ctx, e.opts.PostUnitDelay)
			}
			return nil
		})
	}
	g.Wait()

	logrus.Infof("Rewrite finished: %d successful, %d failed, %d empty, %d logged",
		e.summary.Succeeded, e.summary.Failed, e.summary.EmptySource, e.summary.Logged)

	if err := ctx.Err(); err != nil {
		return e.summary, err
	}
	return e.summary, nil
}

func (e *Engine) processUnit(ctx context.Context, unit models.ContentUnit) {
	outcome := e.rewriteUnit(ctx, &unit)
	if ctx.Err() != nil {
		logrus.Warnf("Interrupted while processing %s, not recording it", unit.CanonicalURL)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch outcome {
	case outcomeSuccess:
		e.summary.Succeeded++
	case outcomeEmpty:
		e.summary.EmptySource++
	default:
		e.summary.Failed++
	}
	e.summary.Units = append(e.summary.Units, unit)

	if err := e.log.Append(unit); err != nil {
		logrus.Errorf("Failed to record %s in local log: %v", unit.CanonicalURL, err)
		e.summary.Errors = append(e.summary.Errors, err)
		return
	}
	e.summary.Logged++
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailed
	outcomeEmpty
)

// rewriteUnit fills both rewrite fields. Either both hold text or both hold sentinels.
func (e *Engine) rewriteUnit(ctx context.Context, unit *models.ContentUnit) outcome {
	if strings.TrimSpace(unit.CombinedText) == "" {
		unit.RewrittenEN = models.SentinelEmptySource
		unit.RewrittenRU = models.SentinelEmptySource
		return outcomeEmpty
	}

	en, err := e.call(ctx, unit, genai.English)
	if err == nil {
		err = e.opts.Sleep(ctx, e.opts.InterCallDelay)
	}
	var ru string
	if err == nil {
		ru, err = e.call(ctx, unit, genai.Russian)
	}

	if err != nil {
		logrus.Errorf("Rewrite failed for %s: %v", unit.CanonicalURL, err)
		unit.RewrittenEN = models.SentinelFailedEN
		unit.RewrittenRU = models.SentinelFailedRU
		if ctx.Err() == nil {
			e.mu.Lock()
			e.summary.Errors = append(e.summary.Errors, fmt.Errorf("rewrite %s: %w", unit.CanonicalURL, err))
			e.mu.Unlock()
		}
		return outcomeFailed
	}

	unit.RewrittenEN = en
	unit.RewrittenRU = ru
	return outcomeSuccess
}

func (e *Engine) call(ctx context.Context, unit *models.ContentUnit, lang genai.Language) (string, error) {
	var out string
	name := fmt.Sprintf("%s rewrite (%s)", e.rewriter.Name(), lang)

	err := e.opts.Retry.Do(ctx, name, func(ctx context.Context) error {
		text, err := e.rewriter.Rewrite(ctx, unit.CombinedText, lang)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return errors.New("backend returned empty text")
		}
		if strings.HasPrefix(text, models.ErrorPrefix) {
			return retry.Permanent(errors.New("backend output starts with the error prefix"))
		}
		out = text
		return nil
	})
	return out, err
}
