package consolidate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahmetlabs/social-analyzer/internal/models"
)

var fixedNow = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

func newTwitter() *Consolidator {
	return New(models.PlatformTwitter, time.UTC).WithClock(func() time.Time { return fixedNow })
}

func tweet(author, conv, ts, text, url string) models.RawRow {
	return models.RawRow{
		Author:         author,
		DisplayName:    author,
		ConversationID: conv,
		Timestamp:      ts,
		Text:           text,
		URL:            url,
		Type:           models.TypeOriginalTweet,
	}
}

func TestConsolidate_ReplyToOtherDropped(t *testing.T) {
	first := tweet("alice", "conv1", "2024-05-01 10:00:00", "hello", "https://x.com/alice/status/1")
	first.Type = models.TypeQuoteTweet
	first.Likes = 5
	rows := []models.RawRow{
		first,
		tweet("alice", "conv1", "2024-05-01 10:05:00", "@bob reply", "https://x.com/alice/status/2"),
	}

	result := newTwitter().Consolidate(rows)

	require.Len(t, result.Units, 1)
	unit := result.Units[0]
	assert.Equal(t, models.TypeQuoteTweet, unit.ContentType)
	assert.Equal(t, "1", unit.SourceRowCount)
	assert.Equal(t, "hello", unit.CombinedText)
	assert.Equal(t, "https://x.com/alice/status/1", unit.CanonicalURL)
	assert.Equal(t, "5", unit.Likes)
	assert.Equal(t, 1, result.RepliesDropped)
}

func TestConsolidate_ThreadJoined(t *testing.T) {
	rows := []models.RawRow{
		tweet("alice", "conv1", "2024-05-01 10:05:00", "part 2", "https://x.com/alice/status/2"),
		tweet("alice", "conv1", "2024-05-01 10:00:00", "part 1", "https://x.com/alice/status/1"),
	}

	result := newTwitter().Consolidate(rows)

	require.Len(t, result.Units, 1)
	unit := result.Units[0]
	assert.Equal(t, "part 1\n\n---\n\npart 2", unit.CombinedText)
	assert.Equal(t, models.TypeThread, unit.ContentType)
	assert.Equal(t, "2", unit.SourceRowCount)
	assert.Equal(t, "https://x.com/alice/status/1", unit.CanonicalURL)
	assert.Equal(t, "2024-05-01 10:00:00", unit.FirstTimestamp)
	assert.Equal(t, "twitter", unit.Platform)
	assert.Equal(t, "2024-05-02 09:30:00 UTC", unit.ProcessedAt)
	assert.Empty(t, unit.Subreddit)
}

func TestConsolidate_OnlyRepliesDiscardsGroup(t *testing.T) {
	rows := []models.RawRow{
		tweet("alice", "conv1", "2024-05-01 10:00:00", "@bob one", "u1"),
		tweet("alice", "conv1", "2024-05-01 10:01:00", "  @carol two", "u2"),
	}

	result := newTwitter().Consolidate(rows)

	assert.Empty(t, result.Units)
	assert.Equal(t, 1, result.GroupsDiscarded)
	assert.Equal(t, 2, result.RepliesDropped)
}

func TestConsolidate_SelfMentionKept(t *testing.T) {
	rows := []models.RawRow{
		tweet("Alice", "conv1", "2024-05-01 10:00:00", "start", "u1"),
		tweet("Alice", "conv1", "2024-05-01 10:01:00", "@alice continuing", "u2"),
	}

	result := newTwitter().Consolidate(rows)

	require.Len(t, result.Units, 1)
	assert.Equal(t, "2", result.Units[0].SourceRowCount)
}

func TestConsolidate_UnparseableFirstTimestampDropsUnit(t *testing.T) {
	rows := []models.RawRow{
		tweet("alice", "conv1", "not a date", "text", "u1"),
		tweet("bob", "conv2", "2024-05-01 10:00:00 UTC+0000", "text", "u2"),
	}

	result := newTwitter().Consolidate(rows)

	require.Len(t, result.Units, 1)
	assert.Equal(t, "bob", result.Units[0].Author)
	assert.Equal(t, 1, result.TimestampDropped)
}

func TestConsolidate_ConversationIDsAreOpaque(t *testing.T) {
	rows := []models.RawRow{
		tweet("alice", "0123", "2024-05-01 10:00:00", "a", "u1"),
		tweet("alice", "123", "2024-05-01 10:01:00", "b", "u2"),
	}

	result := newTwitter().Consolidate(rows)

	require.Len(t, result.Units, 2)
	assert.Equal(t, "0123", result.Units[0].ConversationID)
	assert.Equal(t, "123", result.Units[1].ConversationID)
}

func TestConsolidate_SortedByAuthorThenConversation(t *testing.T) {
	rows := []models.RawRow{
		tweet("zed", "c1", "2024-05-01 10:00:00", "z", "u1"),
		tweet("amy", "c2", "2024-05-01 10:00:00", "a2", "u2"),
		tweet("amy", "c1", "2024-05-01 10:00:00", "a1", "u3"),
	}

	result := newTwitter().Consolidate(rows)

	require.Len(t, result.Units, 3)
	assert.Equal(t, []string{"u3", "u2", "u1"}, []string{
		result.Units[0].CanonicalURL, result.Units[1].CanonicalURL, result.Units[2].CanonicalURL,
	})
}

func TestConsolidate_RedditFieldsCarried(t *testing.T) {
	row := tweet("someone", "abc123", "2024-05-01 10:00:00", "Title: hi", "https://www.reddit.com/r/golang/abc123")
	row.Type = models.TypeRedditPost
	row.Subreddit = "golang"
	row.Score = 120
	row.NumComments = 14
	row.PostID = "abc123"

	result := New(models.PlatformReddit, time.UTC).Consolidate([]models.RawRow{row})

	require.Len(t, result.Units, 1)
	unit := result.Units[0]
	assert.Equal(t, "reddit", unit.Platform)
	assert.Equal(t, "golang", unit.Subreddit)
	assert.Equal(t, "120", unit.Score)
	assert.Equal(t, "14", unit.NumComments)
	assert.Equal(t, "abc123", unit.PostID)
}

func TestConsolidate_OwnershipProperty(t *testing.T) {
	rows := []models.RawRow{
		tweet("alice", "c1", "2024-05-01 10:00:00", "@alice_fan hi", "u1"),
		tweet("alice", "c1", "2024-05-01 10:01:00", "own words", "u2"),
		tweet("alice", "c1", "2024-05-01 10:02:00", "@ALICE more", "u3"),
		tweet("bob", "c2", "2024-05-01 10:00:00", "@alice nope", "u4"),
	}

	result := newTwitter().Consolidate(rows)

	require.Len(t, result.Units, 1)
	assert.Equal(t, "own words\n\n---\n\n@ALICE more", result.Units[0].CombinedText)
	assert.Equal(t, 1, result.GroupsDiscarded)
}

func TestIsReplyToOther(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		author   string
		expected bool
	}{
		{"Plain text", "hello @bob", "alice", false},
		{"Reply to other", "@bob hi", "alice", true},
		{"Leading whitespace", "\n  @bob hi", "alice", true},
		{"Own handle any case", "@AliCe hi", "alice", false},
		{"Longer handle with author prefix", "@alicex hi", "alice", true},
		{"Own handle then punctuation", "@alice's thread", "alice", false},
		{"Bare at sign", "@ hi", "alice", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsReplyToOther(tt.text, tt.author))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2024-05-01 10:00:00")
	require.NoError(t, err)
	assert.Equal(t, 10, ts.Hour())

	_, err = ParseTimestamp("2024-05-01 10:00:00 garbage-zone-token")
	assert.NoError(t, err)

	_, err = ParseTimestamp("")
	assert.Error(t, err)
}
