package consolidate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/models"
)

// ProcessedAtLayout is the format of the Processed Timestamp column
const ProcessedAtLayout = "2006-01-02 15:04:05 MST"

// leadingMention captures the handle a text opens with, e.g. "  @bob thanks"
var leadingMention = regexp.MustCompile(`^\s*@([\p{L}\p{N}_]+)`)

// Result is the consolidated output plus counters for the run report
type Result struct {
	Units []models.ContentUnit
	// Groups is the number of (author, conversation) keys seen
	Groups int
	// RepliesDropped counts rows removed by the ownership filter
	RepliesDropped int
	// GroupsDiscarded counts groups that had no row left after the ownership filter
	GroupsDiscarded int
	// TimestampDropped counts units dropped because their first timestamp did not parse
	TimestampDropped int
}

// Consolidator folds raw rows into content units
type Consolidator struct {
	platform models.Platform
	location *time.Location
	now      func() time.Time
}

// New creates a consolidator stamping units in the given location
func New(platform models.Platform, location *time.Location) *Consolidator {
	if location == nil {
		location = time.UTC
	}
	return &Consolidator{platform: platform, location: location, now: time.Now}
}

// WithClock overrides the clock used for Processed Timestamp
func (c *Consolidator) WithClock(now func() time.Time) *Consolidator {
	c.now = now
	return c
}

type groupKey struct {
	author string
	conv   string
}

type datedRow struct {
	row    models.RawRow
	at     time.Time
	parsed bool
}

// Consolidate groups rows by (author, conversation id), drops replies addressed to other
// users and emits one unit per non-empty group, sorted by author then conversation.
func (c *Consolidator) Consolidate(rows []models.RawRow) *Result {
	groups := make(map[groupKey][]datedRow)
	var order []groupKey

	for _, row := range rows {
		key := groupKey{author: row.Author, conv: row.ConversationID}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		at, err := ParseTimestamp(row.Timestamp)
		groups[key] = append(groups[key], datedRow{row: row, at: at, parsed: err == nil})
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].author != order[j].author {
			return order[i].author < order[j].author
		}
		return order[i].conv < order[j].conv
	})

	result := &Result{Groups: len(order)}
	processedAt := c.now().In(c.location).Format(ProcessedAtLayout)

	for _, key := range order {
		group := groups[key]
		sortChronologically(group)

		kept := make([]models.RawRow, 0, len(group))
		for _, dr := range group {
			if IsReplyToOther(dr.row.Text, key.author) {
				result.RepliesDropped++
				continue
			}
			kept = append(kept, dr.row)
		}

		if len(kept) == 0 {
			result.GroupsDiscarded++
			continue
		}

		if _, err := ParseTimestamp(kept[0].Timestamp); err != nil {
			result.TimestampDropped++
			continue
		}

		result.Units = append(result.Units, c.buildUnit(kept, processedAt))
	}

	if result.TimestampDropped > 0 {
		logrus.Warnf("Dropped %d units due to unparseable timestamps", result.TimestampDropped)
	}
	logrus.Infof("Consolidated %d rows into %d units (%d groups, %d replies to others removed, %d groups discarded)",
		len(rows), len(result.Units), result.Groups, result.RepliesDropped, result.GroupsDiscarded)

	return result
}

func (c *Consolidator) buildUnit(kept []models.RawRow, processedAt string) models.ContentUnit {
	first := kept[0]

	unit := models.ContentUnit{
		ProcessedAt:    processedAt,
		Author:         first.Author,
		DisplayName:    first.DisplayName,
		FirstTimestamp: first.Timestamp,
		CombinedText:   first.Text,
		CanonicalURL:   first.URL,
		Likes:          models.FormatCount(first.Likes),
		Retweets:       models.FormatCount(first.Retweets),
		Replies:        models.FormatCount(first.Replies),
		Quotes:         models.FormatCount(first.Quotes),
		Bookmarks:      models.FormatCount(first.Bookmarks),
		Views:          models.FormatCount(first.Views),
		ContentType:    first.Type,
		ConversationID: first.ConversationID,
		SourceRowCount: strconv.Itoa(len(kept)),
		Platform:       string(c.platform),
	}

	if len(kept) > 1 {
		texts := make([]string, len(kept))
		for i, r := range kept {
			texts[i] = r.Text
		}
		unit.CombinedText = strings.Join(texts, models.ThreadSeparator)
		unit.ContentType = models.TypeThread
	}

	if c.platform == models.PlatformReddit {
		unit.Subreddit = first.Subreddit
		unit.Score = models.FormatCount(first.Score)
		unit.NumComments = models.FormatCount(first.NumComments)
		unit.PostID = first.PostID
	}

	return unit
}

// IsReplyToOther reports whether text opens with an @-mention of someone other than author
func IsReplyToOther(text, author string) bool {
	m := leadingMention.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	return !strings.EqualFold(m[1], strings.TrimPrefix(strings.TrimSpace(author), "@"))
}

// ParseTimestamp parses an upstream timestamp. When the full string is not understood,
// the first two space-separated tokens (date and time) are tried on their own.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	t, err := dateparse.ParseAny(value)
	if err == nil {
		return t, nil
	}

	parts := strings.Fields(value)
	if len(parts) >= 2 {
		if t, err2 := dateparse.ParseAny(parts[0] + " " + parts[1]); err2 == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// sortChronologically orders rows by parsed time; rows that did not parse go last, by raw value
func sortChronologically(group []datedRow) {
	sort.SliceStable(group, func(i, j int) bool {
		a, b := group[i], group[j]
		switch {
		case a.parsed && b.parsed:
			return a.at.Before(b.at)
		case a.parsed != b.parsed:
			return a.parsed
		default:
			return a.row.Timestamp < b.row.Timestamp
		}
	})
}
