package models

import (
	"strconv"
	"strings"
)

// Platform identifies the upstream network a row was scraped from
type Platform string

const (
	PlatformTwitter Platform = "twitter"
	PlatformReddit  Platform = "reddit"
)

// Content type tags as written by the scrapers and the consolidator
const (
	TypeOriginalTweet = "Original Tweet"
	TypeThread        = "Thread"
	TypeReply         = "Reply"
	TypeQuoteTweet    = "Quote Tweet"
	TypeRetweet       = "Retweet"
	TypeRedditPost    = "Reddit Post"
)

// Rewrite sentinels. Anything starting with ErrorPrefix is a recorded failure.
const (
	ErrorPrefix         = "Error:"
	SentinelFailedEN    = "Error: Rewrite Failed (EN)"
	SentinelFailedRU    = "Error: Rewrite Failed (RU)"
	SentinelEmptySource = "Error: Empty Source Text"
)

// ThreadSeparator joins the texts of a consolidated thread
const ThreadSeparator = "\n\n---\n\n"

// RawRow is one observation read from a source partition. Never mutated after ingestion.
type RawRow struct {
	Platform       string
	Author         string
	AuthorID       string
	DisplayName    string
	Timestamp      string // as written upstream; parsed by the consolidator
	Text           string
	URL            string
	Likes          int64
	Retweets       int64
	Replies        int64
	Quotes         int64
	Bookmarks      int64
	Views          int64
	Type           string
	ConversationID string // opaque, never converted to a number

	// Forum-only fields
	Subreddit   string
	Score       int64
	NumComments int64
	PostID      string
}

// ContentUnit is one row of the analyzed target schema: a standalone post or a consolidated thread
type ContentUnit struct {
	ProcessedAt    string `json:"processed_at"`
	Author         string `json:"author"`
	DisplayName    string `json:"display_name"`
	FirstTimestamp string `json:"first_timestamp"`
	CombinedText   string `json:"combined_text"`
	CanonicalURL   string `json:"canonical_url"`
	Likes          string `json:"likes"`
	Retweets       string `json:"retweets"`
	Replies        string `json:"replies"`
	Quotes         string `json:"quotes"`
	Bookmarks      string `json:"bookmarks"`
	Views          string `json:"views"`
	ContentType    string `json:"content_type"`
	ConversationID string `json:"conversation_id"`
	RewrittenEN    string `json:"rewritten_en"`
	RewrittenRU    string `json:"rewritten_ru"`
	SourceRowCount string `json:"source_row_count"`
	Platform       string `json:"platform"`
	Subreddit      string `json:"subreddit"`
	Score          string `json:"score"`
	NumComments    string `json:"num_comments"`
	PostID         string `json:"post_id"`
}

// IsProcessed reports whether the unit was successfully rewritten into both languages.
// This is the single definition of "already done" used by every dedup check.
func (u ContentUnit) IsProcessed() bool {
	if strings.TrimSpace(u.CanonicalURL) == "" {
		return false
	}
	return isRewritten(u.RewrittenEN) && isRewritten(u.RewrittenRU)
}

// IsFailure reports whether the unit carries error sentinels
func (u ContentUnit) IsFailure() bool {
	return strings.HasPrefix(u.RewrittenEN, ErrorPrefix) || strings.HasPrefix(u.RewrittenRU, ErrorPrefix)
}

func isRewritten(text string) bool {
	return text != "" && !strings.HasPrefix(text, ErrorPrefix)
}

// FormatCount renders a metric the way it is stored in sheets
func FormatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}
