package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/ledger"
	"github.com/rahmetlabs/social-analyzer/internal/models"
	"github.com/rahmetlabs/social-analyzer/internal/storage"
)

// URLSet is a set of canonical URLs
type URLSet map[string]struct{}

// Has reports whether url is in the set
func (s URLSet) Has(url string) bool {
	_, ok := s[strings.TrimSpace(url)]
	return ok
}

func (s URLSet) add(url string) {
	if url = strings.TrimSpace(url); url != "" {
		s[url] = struct{}{}
	}
}

// Processed holds the successfully processed URL sets from each source of truth
type Processed struct {
	Local  URLSet
	Remote URLSet
	All    URLSet
	// RemoteErr is set when the remote snapshot could not be read; the run goes on with local state only
	RemoteErr error
}

// Loader loads already-processed state for one platform
type Loader struct {
	store     storage.Store
	partition string
	localPath string
}

// NewLoader creates a loader reading the remote target partition and the local log
func NewLoader(store storage.Store, targetPartition, localPath string) *Loader {
	return &Loader{store: store, partition: targetPartition, localPath: localPath}
}

// Load returns the union of successfully processed URLs from the local log and the remote store.
// A local log that exists but cannot be read is an error; a remote read failure is recorded and tolerated.
func (l *Loader) Load(ctx context.Context) (*Processed, error) {
	local, err := ledger.ReadAll(l.localPath)
	if err != nil {
		return nil, fmt.Errorf("loading local state: %w", err)
	}

	p := &Processed{
		Local:  ProcessedURLs(local),
		Remote: URLSet{},
		All:    URLSet{},
	}

	table, err := l.store.ReadAll(ctx, l.partition)
	switch {
	case err == nil:
		p.Remote = ProcessedURLs(models.UnitsFromTable(table))
	case errors.Is(err, storage.ErrPartitionNotFound):
		logrus.Infof("Target partition %s does not exist yet", l.partition)
	default:
		logrus.Warnf("Could not read target partition %s, relying on local state: %v", l.partition, err)
		p.RemoteErr = fmt.Errorf("reading target partition %s: %w", l.partition, err)
	}

	for url := range p.Local {
		p.All.add(url)
	}
	for url := range p.Remote {
		p.All.add(url)
	}

	logrus.Infof("Processed URLs: %d local, %d remote, %d total", len(p.Local), len(p.Remote), len(p.All))
	return p, nil
}

// ProcessedURLs returns the URLs of units that satisfy the success predicate
func ProcessedURLs(units []models.ContentUnit) URLSet {
	set := URLSet{}
	for _, u := range units {
		if u.IsProcessed() {
			set.add(u.CanonicalURL)
		}
	}
	return set
}

// PresentURLs returns every non-empty URL regardless of rewrite outcome
func PresentURLs(units []models.ContentUnit) URLSet {
	set := URLSet{}
	for _, u := range units {
		set.add(u.CanonicalURL)
	}
	return set
}

// ExcludeProcessed drops units whose URL is already processed, returning the rest and the drop count
func ExcludeProcessed(units []models.ContentUnit, processed URLSet) ([]models.ContentUnit, int) {
	out := make([]models.ContentUnit, 0, len(units))
	for _, u := range units {
		if processed.Has(u.CanonicalURL) {
			continue
		}
		out = append(out, u)
	}
	return out, len(units) - len(out)
}
