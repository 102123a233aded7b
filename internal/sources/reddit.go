package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/config"
	"github.com/rahmetlabs/social-analyzer/internal/models"
	"github.com/rahmetlabs/social-analyzer/internal/retry"
)

// TimestampLayout is how scrapers write post times to raw partitions
const TimestampLayout = "2006-01-02 15:04:05 MST-0700"

const (
	redditAuthURL       = "https://www.reddit.com"
	redditAPIURL        = "https://oauth.reddit.com"
	delayBetweenReddits = 2 * time.Second
	deletedAuthor       = "[deleted]"
)

// RedditSource fetches top posts of configured subreddits
type RedditSource struct {
	clientID     string
	clientSecret string
	userAgent    string
	subreddits   []string
	limit        int
	timeFilter   string
	location     *time.Location

	client      *resty.Client
	authURL     string
	apiURL      string
	accessToken string
	sleep       func(ctx context.Context, d time.Duration) error
}

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Selftext       string  `json:"selftext"`
	SelftextHTML   string  `json:"selftext_html"`
	Author         string  `json:"author"`
	AuthorFullname string  `json:"author_fullname"`
	Subreddit      string  `json:"subreddit"`
	Permalink      string  `json:"permalink"`
	Created        float64 `json:"created_utc"`
	Score          int64   `json:"score"`
	NumComments    int64   `json:"num_comments"`
}

// NewRedditSource creates a new Reddit source
func NewRedditSource(cfg *config.Config) *RedditSource {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &RedditSource{
		clientID:     cfg.RedditClientID,
		clientSecret: cfg.RedditClientSecret,
		userAgent:    cfg.RedditUserAgent,
		subreddits:   cfg.RedditSubreddits,
		limit:        cfg.RedditPostLimit,
		timeFilter:   cfg.RedditTimeFilter,
		location:     loc,
		client:       resty.New().SetTimeout(30 * time.Second),
		authURL:      redditAuthURL,
		apiURL:       redditAPIURL,
		sleep:        retry.Sleep,
	}
}

func (r *RedditSource) GetName() string {
	return "reddit"
}

func (r *RedditSource) IsEnabled() bool {
	return r.clientID != "" && r.clientSecret != "" && r.userAgent != ""
}

// Fetch reads the top posts of every subreddit. One failing subreddit does not stop the others.
func (r *RedditSource) Fetch(ctx context.Context) (*FetchResult, error) {
	if !r.IsEnabled() {
		return nil, fmt.Errorf("reddit source disabled: client id, secret and user agent are required")
	}

	if err := r.authenticate(ctx); err != nil {
		return nil, fmt.Errorf("reddit authentication failed: %w", err)
	}

	result := &FetchResult{}
	seen := make(map[string]bool)

	for i, subreddit := range r.subreddits {
		if i > 0 {
			if err := r.sleep(ctx, delayBetweenReddits); err != nil {
				return result, err
			}
		}

		logrus.Infof("Fetching top %d posts of r/%s (%s)", r.limit, subreddit, r.timeFilter)
		posts, err := r.topPosts(ctx, subreddit)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			logrus.Errorf("Failed to fetch subreddit %s: %v", subreddit, err)
			result.Errors = append(result.Errors, fmt.Errorf("subreddit r/%s: %w", subreddit, err))
			continue
		}

		added := 0
		for _, post := range posts {
			if post.ID == "" || seen[post.ID] {
				continue
			}
			seen[post.ID] = true
			result.Rows = append(result.Rows, r.toRow(post))
			added++
		}
		logrus.Infof("Fetched %d posts from r/%s", added, subreddit)
	}

	return result, nil
}

func (r *RedditSource) authenticate(ctx context.Context) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", r.userAgent).
		SetBasicAuth(r.clientID, r.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
		}).
		Post(r.authURL + "/api/v1/access_token")

	if err != nil {
		return err
	}

	if resp.IsError() {
		return fmt.Errorf("token endpoint returned status %d", resp.StatusCode())
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return err
	}
	if authResp.AccessToken == "" {
		return fmt.Errorf("no access token in response: %s", authResp.Error)
	}

	r.accessToken = authResp.AccessToken
	return nil
}

func (r *RedditSource) topPosts(ctx context.Context, subreddit string) ([]redditPost, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+r.accessToken).
		SetHeader("User-Agent", r.userAgent).
		SetQueryParams(map[string]string{
			"t":        r.timeFilter,
			"limit":    fmt.Sprintf("%d", r.limit),
			"raw_json": "1",
		}).
		Get(fmt.Sprintf("%s/r/%s/top", r.apiURL, url.PathEscape(subreddit)))

	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("reddit API returned status %d", resp.StatusCode())
	}

	var listing redditListing
	if err := json.Unmarshal(resp.Body(), &listing); err != nil {
		return nil, err
	}

	posts := make([]redditPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}

func (r *RedditSource) toRow(post redditPost) models.RawRow {
	author := post.Author
	authorID := post.AuthorFullname
	if author == "" || author == deletedAuthor {
		author, authorID = deletedAuthor, deletedAuthor
	}

	text := "Title: " + post.Title
	if body := postBody(post); body != "" {
		text += "\n\nBody:\n" + body
	}

	created := time.Unix(int64(post.Created), 0).In(r.location)

	return models.RawRow{
		Platform:       string(models.PlatformReddit),
		Author:         author,
		AuthorID:       authorID,
		DisplayName:    author,
		Timestamp:      created.Format(TimestampLayout),
		Text:           text,
		URL:            "https://www.reddit.com" + post.Permalink,
		Replies:        post.NumComments,
		Type:           models.TypeRedditPost,
		ConversationID: post.ID,
		Subreddit:      post.Subreddit,
		Score:          post.Score,
		NumComments:    post.NumComments,
		PostID:         post.ID,
	}
}

// postBody prefers the rendered HTML, flattened to paragraphs, over the markdown source
func postBody(post redditPost) string {
	if strings.TrimSpace(post.SelftextHTML) == "" {
		return strings.TrimSpace(post.Selftext)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(post.SelftextHTML))
	if err != nil {
		return strings.TrimSpace(post.Selftext)
	}

	blocks := doc.Find("div.md").Children()
	if blocks.Length() == 0 {
		return strings.TrimSpace(doc.Text())
	}

	var paragraphs []string
	blocks.Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return strings.Join(paragraphs, "\n\n")
}
