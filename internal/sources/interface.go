package sources

import (
	"context"

	"github.com/rahmetlabs/social-analyzer/internal/models"
)

// Source interface defines the contract for all upstream scrapers
type Source interface {
	GetName() string
	IsEnabled() bool
	// Fetch returns new raw rows. Failures of a single subreddit or user are
	// reported in FetchResult.Errors; a returned error aborts the cycle.
	Fetch(ctx context.Context) (*FetchResult, error)
}

// Committer is implemented by sources that keep cursor state. Commit is called
// only after the fetched rows were appended to the raw partition.
type Committer interface {
	Commit() error
}

// FetchResult holds one scrape cycle's rows and per-item failures
type FetchResult struct {
	Rows   []models.RawRow
	Errors []error
}
