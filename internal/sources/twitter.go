package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/config"
	"github.com/rahmetlabs/social-analyzer/internal/models"
	"github.com/rahmetlabs/social-analyzer/internal/retry"
)

const twitterAPIURL = "https://api.twitter.com"

// Timeline page size bounds of the v2 API
const (
	minTimelineResults = 5
	maxTimelineResults = 100
)

// TwitterSource fetches the recent timelines of configured users
type TwitterSource struct {
	bearerToken string
	usernames   []string
	limit       int
	delay       time.Duration
	stateFile   string
	location    *time.Location

	// usernamesFile is re-read every Fetch when usernames is empty
	usernamesFile string

	client *resty.Client
	apiURL string
	sleep  func(ctx context.Context, d time.Duration) error

	// pending holds cursors advanced by the last Fetch until Commit persists them
	pending LastSeen
}

// LastSeen maps a username to the highest tweet id already scraped
type LastSeen map[string]uint64

type twitterUserResponse struct {
	Data struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"data"`
	Errors []twitterAPIError `json:"errors"`
}

type twitterAPIError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type twitterTimelineResponse struct {
	Data []twitterTweet `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NewestID    string `json:"newest_id"`
	} `json:"meta"`
}

type twitterTweet struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	CreatedAt      string `json:"created_at"`
	ConversationID string `json:"conversation_id"`
	PublicMetrics  struct {
		RetweetCount    int64 `json:"retweet_count"`
		LikeCount       int64 `json:"like_count"`
		ReplyCount      int64 `json:"reply_count"`
		QuoteCount      int64 `json:"quote_count"`
		BookmarkCount   int64 `json:"bookmark_count"`
		ImpressionCount int64 `json:"impression_count"`
	} `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

// NewTwitterSource creates a new Twitter source
func NewTwitterSource(cfg *config.Config) *TwitterSource {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &TwitterSource{
		bearerToken:   cfg.TwitterBearerToken,
		usernames:     cfg.TwitterUsernames,
		usernamesFile: cfg.UsernamesFile,
		limit:         cfg.TweetFetchLimit,
		delay:         cfg.DelayBetweenUsers,
		stateFile:     cfg.TwitterStateFile,
		location:      loc,
		client: resty.New().
			SetTimeout(30*time.Second).
			SetHeader("User-Agent", "social-analyzer/1.0"),
		apiURL: twitterAPIURL,
		sleep:  retry.Sleep,
	}
}

func (t *TwitterSource) GetName() string {
	return "twitter"
}

func (t *TwitterSource) IsEnabled() bool {
	return t.bearerToken != "" && (len(t.usernames) > 0 || t.usernamesFile != "")
}

// targetUsers returns the configured usernames, or the usernames file's target_users
func (t *TwitterSource) targetUsers() ([]string, error) {
	if len(t.usernames) > 0 {
		return t.usernames, nil
	}
	users, err := LoadUsernames(t.usernamesFile)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Loaded %d target usernames from %s", len(users), t.usernamesFile)
	return users, nil
}

type usernamesFile struct {
	TargetUsers []string `json:"target_users"`
}

// LoadUsernames reads the target_users list of a usernames file
func LoadUsernames(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading usernames file %s: %w", path, err)
	}

	var file usernamesFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decoding usernames file %s: %w", path, err)
	}

	users := make([]string, 0, len(file.TargetUsers))
	for _, u := range file.TargetUsers {
		if u = strings.TrimPrefix(strings.TrimSpace(u), "@"); u != "" {
			users = append(users, u)
		}
	}
	return users, nil
}

// Fetch reads every user's tweets newer than the stored cursor. Rows come out oldest first per user.
func (t *TwitterSource) Fetch(ctx context.Context) (*FetchResult, error) {
	if !t.IsEnabled() {
		return nil, fmt.Errorf("twitter source disabled: bearer token and usernames are required")
	}

	usernames, err := t.targetUsers()
	if err != nil {
		return nil, err
	}
	if len(usernames) == 0 {
		logrus.Warnf("No target usernames configured, skipping cycle")
		return &FetchResult{}, nil
	}

	result := &FetchResult{}
	state, err := LoadLastSeen(t.stateFile)
	if err != nil {
		logrus.Warnf("Starting with empty tweet cursors: %v", err)
		result.Errors = append(result.Errors, err)
		state = LastSeen{}
	}

	seen := make(map[string]bool)
	t.pending = maps.Clone(state)

	for i, username := range usernames {
		if i > 0 {
			if err := t.sleep(ctx, t.delay); err != nil {
				return result, err
			}
		}

		rows, newest, err := t.fetchUser(ctx, username, state[username])
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			logrus.Errorf("Failed to fetch tweets of @%s: %v", username, err)
			result.Errors = append(result.Errors, fmt.Errorf("user @%s: %w", username, err))
			continue
		}

		for _, row := range rows {
			if seen[row.URL] {
				continue
			}
			seen[row.URL] = true
			result.Rows = append(result.Rows, row)
		}
		if newest > state[username] {
			t.pending[username] = newest
		}
		logrus.Infof("Fetched %d new tweets of @%s", len(rows), username)
	}

	return result, nil
}

// Commit writes the cursors advanced by the last Fetch
func (t *TwitterSource) Commit() error {
	if t.pending == nil {
		return nil
	}
	return SaveLastSeen(t.stateFile, t.pending)
}

func (t *TwitterSource) fetchUser(ctx context.Context, username string, lastSeen uint64) ([]models.RawRow, uint64, error) {
	var user twitterUserResponse
	if err := t.get(ctx, fmt.Sprintf("/2/users/by/username/%s", username), nil, &user); err != nil {
		return nil, 0, fmt.Errorf("user lookup: %w", err)
	}
	if user.Data.ID == "" {
		if len(user.Errors) > 0 {
			return nil, 0, fmt.Errorf("user lookup: %s", user.Errors[0].Detail)
		}
		return nil, 0, errors.New("user not found")
	}

	params := map[string]string{
		"max_results":  strconv.Itoa(timelinePageSize(t.limit)),
		"tweet.fields": "created_at,conversation_id,public_metrics,referenced_tweets",
	}
	if lastSeen > 0 {
		params["since_id"] = strconv.FormatUint(lastSeen, 10)
	}

	var timeline twitterTimelineResponse
	if err := t.get(ctx, fmt.Sprintf("/2/users/%s/tweets", user.Data.ID), params, &timeline); err != nil {
		return nil, 0, fmt.Errorf("timeline: %w", err)
	}

	newest := lastSeen
	var rows []models.RawRow
	// the API returns newest first
	for i := len(timeline.Data) - 1; i >= 0; i-- {
		tweet := timeline.Data[i]
		id, err := strconv.ParseUint(tweet.ID, 10, 64)
		if err != nil || id <= lastSeen {
			continue
		}
		if id > newest {
			newest = id
		}
		rows = append(rows, t.toRow(username, user.Data.ID, user.Data.Name, tweet))
	}

	return rows, newest, nil
}

func (t *TwitterSource) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+t.bearerToken).
		SetQueryParams(params).
		Get(t.apiURL + path)

	if err != nil {
		return err
	}

	if resp.StatusCode() == 429 {
		return fmt.Errorf("rate limited until %s", resp.Header().Get("x-rate-limit-reset"))
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("twitter API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to parse Twitter response: %w", err)
	}
	return nil
}

func (t *TwitterSource) toRow(username, userID, displayName string, tweet twitterTweet) models.RawRow {
	timestamp := tweet.CreatedAt
	if created, err := time.Parse(time.RFC3339, tweet.CreatedAt); err == nil {
		timestamp = created.In(t.location).Format(TimestampLayout)
	}

	conversationID := tweet.ConversationID
	if conversationID == "" {
		conversationID = "N/A"
	}
	if displayName == "" {
		displayName = "N/A"
	}

	m := tweet.PublicMetrics
	return models.RawRow{
		Platform:       string(models.PlatformTwitter),
		Author:         username,
		AuthorID:       userID,
		DisplayName:    displayName,
		Timestamp:      timestamp,
		Text:           tweet.Text,
		URL:            fmt.Sprintf("https://x.com/%s/status/%s", username, tweet.ID),
		Likes:          m.LikeCount,
		Retweets:       m.RetweetCount,
		Replies:        m.ReplyCount,
		Quotes:         m.QuoteCount,
		Bookmarks:      m.BookmarkCount,
		Views:          m.ImpressionCount,
		Type:           classifyTweet(tweet),
		ConversationID: conversationID,
	}
}

// classifyTweet applies retweet, then quote, then reply precedence
func classifyTweet(tweet twitterTweet) string {
	kinds := make(map[string]bool, len(tweet.ReferencedTweets))
	for _, ref := range tweet.ReferencedTweets {
		kinds[ref.Type] = true
	}

	switch {
	case kinds["retweeted"]:
		return models.TypeRetweet
	case kinds["quoted"]:
		return models.TypeQuoteTweet
	case kinds["replied_to"]:
		return models.TypeReply
	default:
		return models.TypeOriginalTweet
	}
}

func timelinePageSize(limit int) int {
	switch {
	case limit < minTimelineResults:
		return minTimelineResults
	case limit > maxTimelineResults:
		return maxTimelineResults
	default:
		return limit
	}
}

// LoadLastSeen reads the cursor file. A missing file yields empty cursors.
func LoadLastSeen(path string) (LastSeen, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return LastSeen{}, nil
	}
	if err != nil {
		return nil, err
	}

	state := LastSeen{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt state file %s: %w", path, err)
	}
	return state, nil
}

// SaveLastSeen replaces the cursor file atomically
func SaveLastSeen(path string, state LastSeen) error {
	data, err := json.MarshalIndent(state, "", "    ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
