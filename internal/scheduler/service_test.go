package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rahmetlabs/social-analyzer/internal/config"
	"github.com/rahmetlabs/social-analyzer/internal/models"
	"github.com/rahmetlabs/social-analyzer/internal/sources"
)

type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Run(ctx context.Context) (*models.RunReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(*models.RunReport), args.Error(1)
}

type MockScraper struct {
	mock.Mock
}

func (m *MockScraper) Collect(ctx context.Context) (*sources.CollectResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(*sources.CollectResult), args.Error(1)
}

func TestStart_RegistersJobs(t *testing.T) {
	cfg := &config.Config{AnalyzerSchedule: "0 */4 * * *", ScrapeSchedule: "30 */4 * * *", Location: time.UTC}
	s := NewService(cfg, &MockAnalyzer{}, &MockScraper{})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, 2, s.Entries())
}

func TestStart_WithoutScraper(t *testing.T) {
	cfg := &config.Config{AnalyzerSchedule: "@every 1h", ScrapeSchedule: "30 */4 * * *"}
	s := NewService(cfg, &MockAnalyzer{}, nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, 1, s.Entries())
}

func TestStart_InvalidSchedule(t *testing.T) {
	cfg := &config.Config{AnalyzerSchedule: "every tuesday", Location: time.UTC}
	s := NewService(cfg, &MockAnalyzer{}, nil)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid analyzer schedule")
}

func TestScheduledRun(t *testing.T) {
	done := make(chan struct{}, 1)
	analyzer := &MockAnalyzer{}
	analyzer.On("Run", mock.Anything).Return(&models.RunReport{}, nil).Run(func(mock.Arguments) {
		select {
		case done <- struct{}{}:
		default:
		}
	})

	cfg := &config.Config{AnalyzerSchedule: "* * * * * *", Location: time.UTC}
	s := NewService(cfg, analyzer, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("analyzer was not run by the scheduler")
	}
}
