package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/ledger"
	"github.com/rahmetlabs/social-analyzer/internal/models"
	"github.com/rahmetlabs/social-analyzer/internal/state"
	"github.com/rahmetlabs/social-analyzer/internal/storage"
)

// Result describes one sync pass
type Result struct {
	LocalRows    int
	RemoteURLs   int
	Uploaded     int
	SkippedNoURL int
}

// Syncer mirrors the local log into the remote target partition
type Syncer struct {
	store     storage.Store
	partition string
	localPath string
}

// New creates a syncer for one platform
func New(store storage.Store, targetPartition, localPath string) *Syncer {
	return &Syncer{store: store, partition: targetPartition, localPath: localPath}
}

// Sync uploads every local record whose URL is absent remotely, in one bulk append.
// A URL already present remotely counts as synced even if that row is a recorded failure.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	local, err := ledger.ReadAll(s.localPath)
	if err != nil {
		return nil, fmt.Errorf("reading local log for sync: %w", err)
	}

	result := &Result{LocalRows: len(local)}
	if len(local) == 0 {
		logrus.Infof("Local log %s is empty, nothing to sync", s.localPath)
		return result, nil
	}

	remote, err := s.remoteURLs(ctx)
	if err != nil {
		return result, err
	}
	result.RemoteURLs = len(remote)

	missing, skipped := Missing(local, remote)
	result.SkippedNoURL = skipped
	if skipped > 0 {
		logrus.Warnf("Skipped %d local rows without a URL", skipped)
	}

	if len(missing) == 0 {
		logrus.Infof("Remote partition %s is up to date (%d local rows)", s.partition, len(local))
		return result, nil
	}

	rows := make([][]string, len(missing))
	for i, u := range missing {
		rows[i] = u.Record()
	}

	logrus.Infof("Uploading %d missing rows to %s", len(rows), s.partition)
	if err := s.store.AppendRows(ctx, s.partition, rows); err != nil {
		return result, fmt.Errorf("appending %d rows to %s: %w", len(rows), s.partition, err)
	}
	result.Uploaded = len(rows)

	return result, nil
}

func (s *Syncer) remoteURLs(ctx context.Context) (state.URLSet, error) {
	table, err := s.store.ReadAll(ctx, s.partition)
	if err != nil {
		if errors.Is(err, storage.ErrPartitionNotFound) {
			return nil, fmt.Errorf("target partition %s does not exist: %w", s.partition, err)
		}
		return nil, fmt.Errorf("reading remote snapshot of %s, sync aborted: %w", s.partition, err)
	}
	return state.PresentURLs(models.UnitsFromTable(table)), nil
}

// Missing returns one record per local URL that is not in remote, in first-seen order.
// When the log holds several records for a URL, the latest successful one wins, else the latest.
func Missing(local []models.ContentUnit, remote state.URLSet) ([]models.ContentUnit, int) {
	chosen := make(map[string]models.ContentUnit)
	var order []string
	skipped := 0

	for _, u := range local {
		url := strings.TrimSpace(u.CanonicalURL)
		if url == "" {
			skipped++
			continue
		}
		if remote.Has(url) {
			continue
		}

		prev, seen := chosen[url]
		if !seen {
			order = append(order, url)
			chosen[url] = u
			continue
		}
		if u.IsProcessed() || !prev.IsProcessed() {
			chosen[url] = u
		}
	}

	out := make([]models.ContentUnit, 0, len(order))
	for _, url := range order {
		out = append(out, chosen[url])
	}
	return out, skipped
}
