package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rahmetlabs/social-analyzer/internal/config"
	"github.com/rahmetlabs/social-analyzer/internal/models"
	"github.com/rahmetlabs/social-analyzer/internal/storage"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestRedditSource_IsEnabled(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		expected bool
	}{
		{
			name:     "All credentials provided",
			cfg:      config.Config{RedditClientID: "id", RedditClientSecret: "secret", RedditUserAgent: "agent"},
			expected: true,
		},
		{
			name:     "Missing client ID",
			cfg:      config.Config{RedditClientSecret: "secret", RedditUserAgent: "agent"},
			expected: false,
		},
		{
			name:     "Missing user agent",
			cfg:      config.Config{RedditClientID: "id", RedditClientSecret: "secret"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := NewRedditSource(&tt.cfg)
			assert.Equal(t, "reddit", source.GetName())
			assert.Equal(t, tt.expected, source.IsEnabled())
		})
	}
}

func TestRedditSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/access_token":
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "id", user)
			assert.Equal(t, "secret", pass)
			w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
		case "/r/golang/top":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "day", r.URL.Query().Get("t"))
			assert.Equal(t, "25", r.URL.Query().Get("limit"))
			w.Write([]byte(`{"data":{"children":[
				{"data":{"id":"p1","title":"Go 1.23 released","selftext":"md","selftext_html":"<div class=\"md\"><p>First para</p><p>Second <b>para</b></p></div>","author":"gopher","author_fullname":"t2_x","subreddit":"golang","permalink":"/r/golang/comments/p1/go/","created_utc":1714557600,"score":120,"num_comments":14}},
				{"data":{"id":"p2","title":"Link post","selftext":"","author":"[deleted]","subreddit":"golang","permalink":"/r/golang/comments/p2/link/","created_utc":1714561200,"score":3,"num_comments":0}}
			]}}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	cfg := &config.Config{
		RedditClientID: "id", RedditClientSecret: "secret", RedditUserAgent: "agent",
		RedditSubreddits: []string{"golang", "broken"}, RedditPostLimit: 25, RedditTimeFilter: "day",
		Location: time.UTC,
	}
	source := NewRedditSource(cfg)
	source.authURL, source.apiURL, source.sleep = server.URL, server.URL, noSleep

	result, err := source.Fetch(context.Background())

	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "r/broken")

	first := result.Rows[0]
	assert.Equal(t, "Title: Go 1.23 released\n\nBody:\nFirst para\n\nSecond para", first.Text)
	assert.Equal(t, "https://www.reddit.com/r/golang/comments/p1/go/", first.URL)
	assert.Equal(t, "2024-05-01 10:00:00 UTC+0000", first.Timestamp)
	assert.Equal(t, models.TypeRedditPost, first.Type)
	assert.Equal(t, "p1", first.ConversationID)
	assert.Equal(t, "p1", first.PostID)
	assert.Equal(t, int64(120), first.Score)
	assert.Equal(t, int64(14), first.Replies)

	second := result.Rows[1]
	assert.Equal(t, "Title: Link post", second.Text)
	assert.Equal(t, "[deleted]", second.Author)
	assert.Equal(t, "[deleted]", second.AuthorID)
}

func TestRedditSource_AuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	source := NewRedditSource(&config.Config{RedditClientID: "id", RedditClientSecret: "bad", RedditUserAgent: "agent", RedditSubreddits: []string{"golang"}})
	source.authURL, source.apiURL = server.URL, server.URL

	_, err := source.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestPostBody(t *testing.T) {
	tests := []struct {
		name     string
		post     redditPost
		expected string
	}{
		{"Markdown only", redditPost{Selftext: "  plain body "}, "plain body"},
		{"Rendered paragraphs", redditPost{SelftextHTML: `<div class="md"><p>a</p><ul><li>b</li><li>c</li></ul></div>`}, "a\n\nbc"},
		{"Bare HTML", redditPost{SelftextHTML: `<p>just text</p>`}, "just text"},
		{"Empty", redditPost{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, postBody(tt.post))
		})
	}
}

func twitterServer(t *testing.T, sinceIDs *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/2/users/by/username/alice":
			w.Write([]byte(`{"data":{"id":"100","name":"Alice A","username":"alice"}}`))
		case "/2/users/by/username/ghost":
			w.Write([]byte(`{"errors":[{"title":"Not Found Error","detail":"Could not find user with username: [ghost]."}]}`))
		case "/2/users/100/tweets":
			*sinceIDs = append(*sinceIDs, r.URL.Query().Get("since_id"))
			w.Write([]byte(`{"data":[
				{"id":"12","text":"@bob thanks","created_at":"2024-05-01T10:10:00.000Z","conversation_id":"5","referenced_tweets":[{"type":"replied_to","id":"11"}]},
				{"id":"11","text":"quoting this","created_at":"2024-05-01T10:05:00.000Z","conversation_id":"11","referenced_tweets":[{"type":"quoted","id":"3"}],"public_metrics":{"like_count":7,"impression_count":900}},
				{"id":"10","text":"hello world","created_at":"2024-05-01T10:00:00.000Z","conversation_id":"10"}
			],"meta":{"result_count":3,"newest_id":"12"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestTwitterSource_FetchAndCommit(t *testing.T) {
	var sinceIDs []string
	server := twitterServer(t, &sinceIDs)
	defer server.Close()

	stateFile := filepath.Join(t.TempDir(), "last_seen_ids.json")
	cfg := &config.Config{
		TwitterBearerToken: "token", TwitterUsernames: []string{"alice", "ghost"},
		TweetFetchLimit: 30, TwitterStateFile: stateFile, Location: time.UTC,
	}
	source := NewTwitterSource(cfg)
	source.apiURL, source.sleep = server.URL, noSleep

	result, err := source.Fetch(context.Background())

	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "@ghost")

	assert.Equal(t, "hello world", result.Rows[0].Text)
	assert.Equal(t, models.TypeOriginalTweet, result.Rows[0].Type)
	assert.Equal(t, "2024-05-01 10:00:00 UTC+0000", result.Rows[0].Timestamp)
	assert.Equal(t, "https://x.com/alice/status/10", result.Rows[0].URL)
	assert.Equal(t, "Alice A", result.Rows[0].DisplayName)
	assert.Equal(t, models.TypeQuoteTweet, result.Rows[1].Type)
	assert.Equal(t, int64(900), result.Rows[1].Views)
	assert.Equal(t, models.TypeReply, result.Rows[2].Type)
	assert.Equal(t, "5", result.Rows[2].ConversationID)

	state, err := LoadLastSeen(stateFile)
	require.NoError(t, err)
	assert.Empty(t, state, "cursors are only written on commit")

	require.NoError(t, source.Commit())
	state, err = LoadLastSeen(stateFile)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), state["alice"])

	result, err = source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Equal(t, []string{"", "12"}, sinceIDs)
}

func TestTwitterSource_UsernamesFileReadEveryFetch(t *testing.T) {
	var sinceIDs []string
	server := twitterServer(t, &sinceIDs)
	defer server.Close()

	dir := t.TempDir()
	usersFile := filepath.Join(dir, "usernames.json")
	require.NoError(t, os.WriteFile(usersFile, []byte(`{"target_users": ["@alice", " "]}`), 0o644))

	cfg := &config.Config{
		TwitterBearerToken: "token", UsernamesFile: usersFile,
		TweetFetchLimit: 30, TwitterStateFile: filepath.Join(dir, "state.json"), Location: time.UTC,
	}
	source := NewTwitterSource(cfg)
	source.apiURL, source.sleep = server.URL, noSleep
	require.True(t, source.IsEnabled())

	result, err := source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Rows, 3)
	assert.Empty(t, result.Errors)

	require.NoError(t, os.WriteFile(usersFile, []byte(`{"target_users": []}`), 0o644))
	result, err = source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Len(t, sinceIDs, 1)

	require.NoError(t, os.WriteFile(usersFile, []byte(`{"target_users": [`), 0o644))
	_, err = source.Fetch(context.Background())
	assert.ErrorContains(t, err, "decoding usernames file")
}

func TestLoadUsernames_Missing(t *testing.T) {
	_, err := LoadUsernames(filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)
}

func TestLoadLastSeen_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, SaveLastSeen(path, LastSeen{"alice": 18446744073709551615}))

	state, err := LoadLastSeen(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), state["alice"])

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = LoadLastSeen(path)
	assert.Error(t, err)
}

func TestClassifyTweet(t *testing.T) {
	ref := func(kinds ...string) twitterTweet {
		var tw twitterTweet
		for _, k := range kinds {
			tw.ReferencedTweets = append(tw.ReferencedTweets, struct {
				Type string `json:"type"`
				ID   string `json:"id"`
			}{Type: k})
		}
		return tw
	}

	assert.Equal(t, models.TypeOriginalTweet, classifyTweet(ref()))
	assert.Equal(t, models.TypeRetweet, classifyTweet(ref("quoted", "retweeted")))
	assert.Equal(t, models.TypeQuoteTweet, classifyTweet(ref("replied_to", "quoted")))
	assert.Equal(t, models.TypeReply, classifyTweet(ref("replied_to")))
}

func TestTimelinePageSize(t *testing.T) {
	assert.Equal(t, 5, timelinePageSize(1))
	assert.Equal(t, 30, timelinePageSize(30))
	assert.Equal(t, 100, timelinePageSize(500))
}

// MockNotificationService is a mock implementation of NotificationInterface
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) Notify(ctx context.Context, message string) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockNotificationService) SendReport(ctx context.Context, report *models.RunReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

type stubSource struct {
	result    *FetchResult
	err       error
	commits   int
	commitErr error
}

func (s *stubSource) GetName() string { return "reddit" }

func (s *stubSource) IsEnabled() bool { return true }

func (s *stubSource) Fetch(context.Context) (*FetchResult, error) { return s.result, s.err }

func (s *stubSource) Commit() error {
	s.commits++
	return s.commitErr
}

func redditRow(id, ts string) models.RawRow {
	return models.RawRow{
		Platform:  string(models.PlatformReddit),
		Author:    "gopher",
		Timestamp: ts,
		Text:      "Title: " + id,
		URL:       "https://www.reddit.com/r/golang/comments/" + id,
		Type:      models.TypeRedditPost,
		PostID:    id,
	}
}

func TestCollector_AppendsOnlyNewRowsSorted(t *testing.T) {
	store := storage.NewMemoryStore()
	store.Seed("Sheet_Reddit_Raw", [][]string{models.RawColumns, redditRow("p1", "2024-05-01 09:00:00 UTC+0000").RawRecord()})

	source := &stubSource{result: &FetchResult{
		Rows: []models.RawRow{
			redditRow("p3", "2024-05-01 12:00:00 UTC+0000"),
			redditRow("p1", "2024-05-01 09:00:00 UTC+0000"),
			redditRow("p2", "2024-05-01 11:00:00 UTC+0000"),
			redditRow("p3", "2024-05-01 12:00:00 UTC+0000"),
		},
		Errors: []error{errors.New("subreddit r/broken: status 503")},
	}}
	notifier := &MockNotificationService{}
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	result, err := NewCollector(source, store, "Sheet_Reddit_Raw", notifier).Collect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, result.Fetched)
	assert.Equal(t, 2, result.Known)
	assert.Equal(t, 2, result.Appended)
	assert.Equal(t, 1, source.commits)

	table, err := store.ReadAll(context.Background(), "Sheet_Reddit_Raw")
	require.NoError(t, err)
	require.Len(t, table, 4)
	assert.Equal(t, "p2", table[2][len(table[2])-1])
	assert.Equal(t, "p3", table[3][len(table[3])-1])

	notifier.AssertNumberOfCalls(t, "Notify", 1)
	msg := notifier.Calls[0].Arguments.String(1)
	assert.True(t, strings.HasPrefix(msg, "✅ Reddit scraper finished successfully"))
	assert.Contains(t, msg, "1 error(s) occurred")
}

func TestCollector_AppendFailureKeepsCursor(t *testing.T) {
	store := storage.NewMemoryStore()
	store.AppendErr = errors.New("quota exceeded")
	source := &stubSource{result: &FetchResult{Rows: []models.RawRow{redditRow("p1", "2024-05-01 09:00:00")}}}
	notifier := &MockNotificationService{}
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	_, err := NewCollector(source, store, "Sheet_Reddit_Raw", notifier).Collect(context.Background())

	require.Error(t, err)
	assert.Zero(t, source.commits)
	msg := notifier.Calls[0].Arguments.String(1)
	assert.True(t, strings.HasPrefix(msg, "🚨 Reddit scraper failed"))
}

func TestCollector_NothingNew(t *testing.T) {
	store := storage.NewMemoryStore()
	source := &stubSource{result: &FetchResult{}}
	notifier := &MockNotificationService{}
	notifier.On("Notify", mock.Anything, "ℹ️ Reddit scraper run finished: No new posts found.").Return(nil)

	result, err := NewCollector(source, store, "Sheet_Reddit_Raw", notifier).Collect(context.Background())

	require.NoError(t, err)
	assert.Zero(t, result.Appended)
	assert.Zero(t, store.Appends)
	assert.Equal(t, 1, source.commits)
	notifier.AssertExpectations(t)
}

func TestSortByTimestamp(t *testing.T) {
	rows := []models.RawRow{
		{Timestamp: "garbage"},
		{Timestamp: "2024-05-01 10:05:00 UTC+0000"},
		{Timestamp: "2024-05-01 10:00:00"},
	}
	SortByTimestamp(rows)
	assert.Equal(t, "2024-05-01 10:00:00", rows[0].Timestamp)
	assert.Equal(t, "2024-05-01 10:05:00 UTC+0000", rows[1].Timestamp)
	assert.Equal(t, "garbage", rows[2].Timestamp)
}
