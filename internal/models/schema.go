package models

// Target column headers, in the order every store and the local log use
const (
	ColProcessedAt    = "Processed Timestamp"
	ColAuthor         = "Original Username"
	ColDisplayName    = "Original Display Name"
	ColFirstTimestamp = "First Tweet Timestamp"
	ColCombinedText   = "Combined Original Text"
	ColCanonicalURL   = "First Tweet URL"
	ColLikes          = "Likes (First Tweet)"
	ColRetweets       = "Retweets (First Tweet)"
	ColReplies        = "Replies (First Tweet)"
	ColQuotes         = "Quotes (First Tweet)"
	ColBookmarks      = "Bookmarks (First Tweet)"
	ColViews          = "Views (First Tweet)"
	ColContentType    = "Content Type"
	ColConversationID = "Conversation ID"
	ColRewrittenEN    = "Rewritten EN"
	ColRewrittenRU    = "Rewritten RU"
	ColSourceRowCount = "Source Row Count"
	ColPlatform       = "Platform"
	ColSubreddit      = "Subreddit"
	ColScore          = "Score"
	ColNumComments    = "Num Comments"
	ColPostID         = "Post ID"
)

// TargetColumns is the fixed column order of the analyzed schema
var TargetColumns = []string{
	ColProcessedAt, ColAuthor, ColDisplayName,
	ColFirstTimestamp, ColCombinedText, ColCanonicalURL,
	ColLikes, ColRetweets, ColReplies,
	ColQuotes, ColBookmarks, ColViews,
	ColContentType,
	ColConversationID,
	ColRewrittenEN, ColRewrittenRU,
	ColSourceRowCount,
	ColPlatform,
	ColSubreddit, ColScore, ColNumComments, ColPostID,
}

// RawColumns is the header the scrapers write to raw partitions
var RawColumns = []string{
	"Platform", "Username", "User ID", "Display Name", "Tweet Timestamp",
	"Tweet Text", "Tweet URL", "Likes", "Retweets", "Replies", "Quotes",
	"Bookmarks", "Views", "Tweet Type", "Conversation ID",
	"Subreddit", "Score", "Num Comments", "Post ID",
}

// Record returns the unit's cells in TargetColumns order
func (u ContentUnit) Record() []string {
	return []string{
		u.ProcessedAt, u.Author, u.DisplayName,
		u.FirstTimestamp, u.CombinedText, u.CanonicalURL,
		u.Likes, u.Retweets, u.Replies,
		u.Quotes, u.Bookmarks, u.Views,
		u.ContentType,
		u.ConversationID,
		u.RewrittenEN, u.RewrittenRU,
		u.SourceRowCount,
		u.Platform,
		u.Subreddit, u.Score, u.NumComments, u.PostID,
	}
}

// UnitFromRecord maps a record onto a ContentUnit using the given header.
// Columns missing from the header are left empty; unknown columns are ignored.
func UnitFromRecord(header, record []string) ContentUnit {
	get := func(col string) string {
		for i, h := range header {
			if h == col && i < len(record) {
				return record[i]
			}
		}
		return ""
	}

	return ContentUnit{
		ProcessedAt:    get(ColProcessedAt),
		Author:         get(ColAuthor),
		DisplayName:    get(ColDisplayName),
		FirstTimestamp: get(ColFirstTimestamp),
		CombinedText:   get(ColCombinedText),
		CanonicalURL:   get(ColCanonicalURL),
		Likes:          get(ColLikes),
		Retweets:       get(ColRetweets),
		Replies:        get(ColReplies),
		Quotes:         get(ColQuotes),
		Bookmarks:      get(ColBookmarks),
		Views:          get(ColViews),
		ContentType:    get(ColContentType),
		ConversationID: get(ColConversationID),
		RewrittenEN:    get(ColRewrittenEN),
		RewrittenRU:    get(ColRewrittenRU),
		SourceRowCount: get(ColSourceRowCount),
		Platform:       get(ColPlatform),
		Subreddit:      get(ColSubreddit),
		Score:          get(ColScore),
		NumComments:    get(ColNumComments),
		PostID:         get(ColPostID),
	}
}

// UnitsFromTable converts a header-first table (as returned by a store) into units.
// Tables with fewer than two rows yield no units.
func UnitsFromTable(table [][]string) []ContentUnit {
	if len(table) < 2 {
		return nil
	}
	header := table[0]
	units := make([]ContentUnit, 0, len(table)-1)
	for _, record := range table[1:] {
		units = append(units, UnitFromRecord(header, record))
	}
	return units
}

// RawRecord returns the row's cells in RawColumns order
func (r RawRow) RawRecord() []string {
	return []string{
		r.Platform, r.Author, r.AuthorID, r.DisplayName, r.Timestamp,
		r.Text, r.URL, FormatCount(r.Likes), FormatCount(r.Retweets), FormatCount(r.Replies), FormatCount(r.Quotes),
		FormatCount(r.Bookmarks), FormatCount(r.Views), r.Type, r.ConversationID,
		r.Subreddit, FormatCount(r.Score), FormatCount(r.NumComments), r.PostID,
	}
}
