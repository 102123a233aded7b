package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/consolidate"
	"github.com/rahmetlabs/social-analyzer/internal/models"
	"github.com/rahmetlabs/social-analyzer/internal/notifications"
	"github.com/rahmetlabs/social-analyzer/internal/storage"
)

// CollectResult summarizes one scrape cycle
type CollectResult struct {
	Source   string
	Fetched  int
	Known    int
	Appended int
	Duration time.Duration
	Errors   []string
}

// Collector runs a source and appends its new rows to a raw partition
type Collector struct {
	source              Source
	store               storage.Store
	partition           string
	notificationService notifications.NotificationInterface
	now                 func() time.Time
}

// NewCollector creates a collector writing into partition
func NewCollector(source Source, store storage.Store, partition string, notificationService notifications.NotificationInterface) *Collector {
	return &Collector{
		source:              source,
		store:               store,
		partition:           partition,
		notificationService: notificationService,
		now:                 time.Now,
	}
}

// Collect runs one scrape cycle and sends one summary notification.
// Rows already present in the raw partition, by post id or URL, are not appended again.
func (c *Collector) Collect(ctx context.Context) (*CollectResult, error) {
	start := c.now()
	result := &CollectResult{Source: c.source.GetName()}
	log := logrus.WithFields(logrus.Fields{"source": result.Source, "partition": c.partition})
	log.Info("Starting scrape cycle")

	err := c.collect(ctx, result, log)
	result.Duration = c.now().Sub(start)

	c.notify(ctx, result, err)
	return result, err
}

func (c *Collector) collect(ctx context.Context, result *CollectResult, log *logrus.Entry) error {
	if err := c.store.EnsurePartition(ctx, c.partition, models.RawColumns); err != nil {
		return fmt.Errorf("preparing raw partition %s: %w", c.partition, err)
	}

	known, err := c.knownKeys(ctx)
	if err != nil {
		log.Warnf("Could not read existing rows for duplicate check: %v", err)
		result.Errors = append(result.Errors, fmt.Sprintf("duplicate check: %v", err))
	}

	fetched, err := c.source.Fetch(ctx)
	if fetched != nil {
		for _, e := range fetched.Errors {
			result.Errors = append(result.Errors, e.Error())
		}
	}
	if err != nil {
		return fmt.Errorf("%s fetch failed: %w", result.Source, err)
	}
	result.Fetched = len(fetched.Rows)

	var fresh []models.RawRow
	for _, row := range fetched.Rows {
		key := rowKey(row.PostID, row.URL)
		if key != "" && known[key] {
			result.Known++
			continue
		}
		if key != "" {
			known[key] = true
		}
		fresh = append(fresh, row)
	}

	if len(fresh) == 0 {
		log.Info("No new rows to append")
		return c.commit(result)
	}

	SortByTimestamp(fresh)

	records := make([][]string, 0, len(fresh))
	for _, row := range fresh {
		records = append(records, row.RawRecord())
	}
	if err := c.store.AppendRows(ctx, c.partition, records); err != nil {
		return fmt.Errorf("appending %d rows to %s: %w", len(records), c.partition, err)
	}
	result.Appended = len(records)
	log.Infof("Appended %d new rows", result.Appended)

	return c.commit(result)
}

func (c *Collector) commit(result *CollectResult) error {
	committer, ok := c.source.(Committer)
	if !ok {
		return nil
	}
	if err := committer.Commit(); err != nil {
		logrus.Errorf("Failed to save %s cursor state: %v", result.Source, err)
		result.Errors = append(result.Errors, fmt.Sprintf("saving state: %v", err))
	}
	return nil
}

// knownKeys returns the post ids and URLs already in the raw partition
func (c *Collector) knownKeys(ctx context.Context) (map[string]bool, error) {
	known := make(map[string]bool)

	table, err := c.store.ReadAll(ctx, c.partition)
	if err != nil {
		if errors.Is(err, storage.ErrPartitionNotFound) {
			return known, nil
		}
		return known, err
	}
	if len(table) < 2 {
		return known, nil
	}

	postCol, urlCol := -1, -1
	for i, h := range table[0] {
		switch strings.TrimSpace(h) {
		case models.ColPostID:
			postCol = i
		case "Tweet URL", models.ColCanonicalURL:
			urlCol = i
		}
	}

	cell := func(record []string, i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return record[i]
	}
	for _, record := range table[1:] {
		if key := rowKey(cell(record, postCol), cell(record, urlCol)); key != "" {
			known[key] = true
		}
	}
	return known, nil
}

func rowKey(postID, url string) string {
	if id := strings.TrimSpace(postID); id != "" {
		return "post:" + id
	}
	if u := strings.TrimSpace(url); u != "" {
		return "url:" + u
	}
	return ""
}

// SortByTimestamp orders rows oldest first. Unparseable timestamps sort last, by raw value.
func SortByTimestamp(rows []models.RawRow) {
	type dated struct {
		row models.RawRow
		at  time.Time
		ok  bool
	}
	items := make([]dated, len(rows))
	for i, row := range rows {
		at, err := consolidate.ParseTimestamp(row.Timestamp)
		items[i] = dated{row: row, at: at, ok: err == nil}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.ok && b.ok:
			return a.at.Before(b.at)
		case a.ok != b.ok:
			return a.ok
		default:
			return a.row.Timestamp < b.row.Timestamp
		}
	})

	for i := range items {
		rows[i] = items[i].row
	}
}

func (c *Collector) notify(ctx context.Context, result *CollectResult, err error) {
	if c.notificationService == nil {
		return
	}

	name := strings.ToUpper(result.Source[:1]) + result.Source[1:]
	var msg string
	switch {
	case ctx.Err() != nil:
		msg = fmt.Sprintf("🛑 %s scraper stopped by user.", name)
	case err != nil:
		msg = fmt.Sprintf("🚨 %s scraper failed: %v", name, err)
	case result.Appended == 0:
		msg = fmt.Sprintf("ℹ️ %s scraper run finished: No new posts found.", name)
	default:
		msg = fmt.Sprintf("✅ %s scraper finished successfully in %.2fs. Appended %d new posts.",
			name, result.Duration.Seconds(), result.Appended)
	}
	if len(result.Errors) > 0 {
		msg += "\n\n⚠️ " + models.ErrorDigest(result.Errors)
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := c.notificationService.Notify(notifyCtx, msg); err != nil {
		logrus.Warnf("Failed to send scrape summary: %v", err)
	}
}
