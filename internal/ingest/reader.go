package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/models"
	"github.com/rahmetlabs/social-analyzer/internal/storage"
)

// ErrMissingColumns means a source partition lacks a column the consolidator groups on.
// It is stage-fatal: the run aborts.
var ErrMissingColumns = errors.New("missing required source columns")

type field int

const (
	fieldPlatform field = iota
	fieldAuthor
	fieldAuthorID
	fieldDisplayName
	fieldTimestamp
	fieldText
	fieldURL
	fieldLikes
	fieldRetweets
	fieldReplies
	fieldQuotes
	fieldBookmarks
	fieldViews
	fieldType
	fieldConversationID
	fieldSubreddit
	fieldScore
	fieldNumComments
	fieldPostID
)

// headerAliases lists accepted header names per field, preferred name first.
// Raw scrape partitions and previously analyzed partitions use different names.
var headerAliases = map[field][]string{
	fieldPlatform:       {"Platform"},
	fieldAuthor:         {models.ColAuthor, "Username"},
	fieldAuthorID:       {"User ID"},
	fieldDisplayName:    {"Display Name", models.ColDisplayName},
	fieldTimestamp:      {models.ColFirstTimestamp, "Tweet Timestamp"},
	fieldText:           {"Tweet Text", models.ColCombinedText},
	fieldURL:            {models.ColCanonicalURL, "Tweet URL"},
	fieldLikes:          {models.ColLikes, "Likes"},
	fieldRetweets:       {models.ColRetweets, "Retweets"},
	fieldReplies:        {models.ColReplies, "Replies"},
	fieldQuotes:         {models.ColQuotes, "Quotes"},
	fieldBookmarks:      {models.ColBookmarks, "Bookmarks"},
	fieldViews:          {models.ColViews, "Views"},
	fieldType:           {"Tweet Type", models.ColContentType},
	fieldConversationID: {models.ColConversationID},
	fieldSubreddit:      {models.ColSubreddit},
	fieldScore:          {models.ColScore},
	fieldNumComments:    {models.ColNumComments},
	fieldPostID:         {models.ColPostID},
}

var requiredFields = []field{fieldAuthor, fieldConversationID, fieldText}

// Result is the unified raw table plus the partial errors met while reading it
type Result struct {
	Rows    []models.RawRow
	Read    []string
	Skipped []string
	Errors  []error
}

// Reader loads raw rows from source partitions of a store
type Reader struct {
	store    storage.Store
	platform models.Platform
}

// NewReader creates a reader for the given platform
func NewReader(store storage.Store, platform models.Platform) *Reader {
	return &Reader{store: store, platform: platform}
}

// Read concatenates all readable partitions. Missing or empty partitions are skipped,
// unreadable ones are recorded in Result.Errors. A partition without the grouping
// columns fails the whole read with ErrMissingColumns.
func (r *Reader) Read(ctx context.Context, partitions []string) (*Result, error) {
	result := &Result{}

	for _, partition := range partitions {
		partition = strings.TrimSpace(partition)
		if partition == "" {
			continue
		}

		table, err := r.store.ReadAll(ctx, partition)
		if err != nil {
			if errors.Is(err, storage.ErrPartitionNotFound) {
				logrus.Warnf("Source partition %s not found, skipping", partition)
				result.Skipped = append(result.Skipped, partition)
				continue
			}
			logrus.Errorf("Failed to read source partition %s: %v", partition, err)
			result.Errors = append(result.Errors, fmt.Errorf("read partition %s: %w", partition, err))
			continue
		}

		if len(table) < 2 {
			logrus.Warnf("Source partition %s has no data rows, skipping", partition)
			result.Skipped = append(result.Skipped, partition)
			continue
		}

		rows, err := r.parse(table)
		if err != nil {
			return nil, fmt.Errorf("partition %s: %w", partition, err)
		}

		logrus.Infof("Read %d rows from source partition %s", len(rows), partition)
		result.Rows = append(result.Rows, rows...)
		result.Read = append(result.Read, partition)
	}

	logrus.Infof("Total raw rows read: %d from %d partitions", len(result.Rows), len(result.Read))
	return result, nil
}

func (r *Reader) parse(table [][]string) ([]models.RawRow, error) {
	index := resolveHeader(table[0])

	var missing []string
	for _, f := range requiredFields {
		if _, ok := index[f]; !ok {
			missing = append(missing, headerAliases[f][0])
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	rows := make([]models.RawRow, 0, len(table)-1)
	for _, record := range table[1:] {
		get := func(f field) string {
			i, ok := index[f]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		row := models.RawRow{
			Platform:       get(fieldPlatform),
			Author:         get(fieldAuthor),
			AuthorID:       get(fieldAuthorID),
			DisplayName:    get(fieldDisplayName),
			Timestamp:      get(fieldTimestamp),
			Text:           get(fieldText),
			URL:            get(fieldURL),
			Likes:          parseCount(get(fieldLikes)),
			Retweets:       parseCount(get(fieldRetweets)),
			Replies:        parseCount(get(fieldReplies)),
			Quotes:         parseCount(get(fieldQuotes)),
			Bookmarks:      parseCount(get(fieldBookmarks)),
			Views:          parseCount(get(fieldViews)),
			Type:           get(fieldType),
			ConversationID: get(fieldConversationID),
			Subreddit:      get(fieldSubreddit),
			Score:          parseCount(get(fieldScore)),
			NumComments:    parseCount(get(fieldNumComments)),
			PostID:         get(fieldPostID),
		}
		if row.Platform == "" {
			row.Platform = string(r.platform)
		}
		if row.DisplayName == "" {
			row.DisplayName = row.Author
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// resolveHeader maps each field to the column index of its first matching alias
func resolveHeader(header []string) map[field]int {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, seen := positions[h]; !seen {
			positions[h] = i
		}
	}

	index := make(map[field]int, len(headerAliases))
	for f, aliases := range headerAliases {
		for _, alias := range aliases {
			if i, ok := positions[alias]; ok {
				index[f] = i
				break
			}
		}
	}
	return index
}

// parseCount reads a metric cell. Blank or malformed cells count as zero.
func parseCount(value string) int64 {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if value == "" {
		return 0
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return int64(f)
	}
	return 0
}
