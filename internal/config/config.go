package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/models"
)

// Store backends
const (
	BackendGoogleSheets = "gsheets"
	BackendAzureBlob    = "azblob"
	BackendSQLite       = "sqlite"
)

// Rewrite backends
const (
	RewriteGemini = "gemini"
	RewriteOpenAI = "openai"
)

// PlatformProfile describes where one platform's data lives and what survives the type filter
type PlatformProfile struct {
	SourcePartitions []string `yaml:"source_partitions"`
	TargetPartition  string   `yaml:"target_partition"`
	RawPartition     string   `yaml:"raw_partition"`
	LocalStateFile   string   `yaml:"local_state_file"`
	AllowedTypes     []string `yaml:"allowed_types"`
}

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Platform being processed and its resolved profile
	Platform string
	Profile  PlatformProfile
	Profiles map[string]PlatformProfile

	// Schedule configuration
	AnalyzerSchedule string
	ScrapeSchedule   string
	TargetTimezone   string
	Location         *time.Location

	// Remote store configuration
	StoreBackend       string
	GoogleSheetsURL    string
	ServiceAccountFile string
	StorageAccount     string
	StorageContainer   string
	SQLitePath         string

	// Rewrite configuration
	RewriteBackend     string
	GeminiAPIKey       string
	GeminiModel        string
	GeminiEndpoint     string
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIEndpoint     string
	ConcurrentRequests int
	RewriteTimeout     time.Duration
	MaxAttempts        int
	RetryBaseDelay     time.Duration
	InterCallDelay     time.Duration
	PostUnitDelay      time.Duration

	// Relevance filtering
	MinContentLength int
	Keywords         []string
	PromptMarkers    []string
	MaxCodeFences    int

	// Notification configuration
	TelegramBotToken  string
	TelegramChatID    string
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Scraper credentials and limits
	RedditClientID     string
	RedditClientSecret string
	RedditUserAgent    string
	RedditSubreddits   []string
	RedditPostLimit    int
	RedditTimeFilter   string
	TwitterBearerToken string
	TwitterUsernames   []string
	UsernamesFile      string
	TweetFetchLimit    int
	TwitterStateFile   string
	DelayBetweenUsers  time.Duration
}

// DefaultKeywords is the relevance vocabulary used when none is configured.
// Matching is a case-insensitive substring test, so leading spaces are significant.
var DefaultKeywords = []string{
	"ai", "agi", "openai", "google", "gemini", "claude", "mistral", "llm",
	"model", "automation", " n8n", "python", "api", "workflow", "data",
	"tech", "business", "startup", "rahmetlabs", "scraping", "analyze",
	"process", "update", "news", "release", "research", "paper", "opinion",
	"thought", "develop", "build", "future", "risk", "safety", "alignment",
	"code", "coding", "launch", "feature", "limit", "rate limit", "context window",
	"token", "prompt", "engineer", "benchmark", "test",
}

// DefaultPromptMarkers flag texts that look like embedded prompts rather than posts
var DefaultPromptMarkers = []string{"# Prompt", "<Role>", "<Instructions>", "<Context>"}

// Load loads configuration from environment variables, overlaid on the optional
// CONFIG_FILE profile, and resolves the profile of the given platform.
// On a setup error the partially loaded configuration is returned with the error,
// so the caller can still reach the notification channels.
func Load(platform string) (*Config, error) {
	file, fileErr := loadFile(os.Getenv("CONFIG_FILE"))

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Debug:            getBoolEnv("DEBUG", false),
		AnalyzerSchedule: getEnv("ANALYZER_SCHEDULE", "0 */4 * * *"),
		ScrapeSchedule:   getEnv("SCRAPE_SCHEDULE", "30 */4 * * *"),
		TargetTimezone:   getEnv("TARGET_TIMEZONE", "UTC"),

		StoreBackend:       getEnv("STORE_BACKEND", BackendGoogleSheets),
		GoogleSheetsURL:    getEnv("GOOGLE_SHEETS_URL", ""),
		ServiceAccountFile: getEnv("SERVICE_ACCOUNT_FILE_PATH", "service_account.json"),
		StorageAccount:     getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer:   getEnv("AZURE_STORAGE_CONTAINER", "analyzer"),
		SQLitePath:         getEnv("SQLITE_PATH", "analyzer.db"),

		RewriteBackend:     getEnv("REWRITE_BACKEND", RewriteGemini),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiEndpoint:     getEnv("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIEndpoint:     getEnv("OPENAI_ENDPOINT", "https://api.openai.com/v1"),
		ConcurrentRequests: getIntEnv("GEMINI_CONCURRENT_REQUESTS", 1),
		RewriteTimeout:     getDurationEnv("REWRITE_TIMEOUT", 180*time.Second),
		MaxAttempts:        getIntEnv("REWRITE_MAX_ATTEMPTS", 3),
		RetryBaseDelay:     getDurationEnv("REWRITE_RETRY_BASE_DELAY", time.Second),
		InterCallDelay:     getDurationEnv("REWRITE_INTER_CALL_DELAY", time.Second),
		PostUnitDelay:      getDurationEnv("REWRITE_POST_UNIT_DELAY", 10*time.Second),

		MinContentLength: getIntEnv("MIN_CONTENT_LENGTH", 50),
		Keywords:         getSliceEnv("RELEVANT_KEYWORDS", firstNonEmptySlice(file.Keywords, DefaultKeywords)),
		PromptMarkers:    getSliceEnv("PROMPT_MARKERS", firstNonEmptySlice(file.PromptMarkers, DefaultPromptMarkers)),
		MaxCodeFences:    getIntEnv("MAX_CODE_FENCES", 2),

		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:    getEnv("TELEGRAM_CHAT_ID", ""),
		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		RedditUserAgent:    getEnv("REDDIT_USER_AGENT", "social-analyzer/1.0"),
		RedditSubreddits:   getSliceEnv("REDDIT_SUBREDDITS", []string{"MachineLearning", "programming", "technology", "startups", "artificial"}),
		RedditPostLimit:    getIntEnv("REDDIT_POST_LIMIT", 25),
		RedditTimeFilter:   getEnv("REDDIT_TIMEFILTER", "day"),
		TwitterBearerToken: getEnv("TWITTER_BEARER_TOKEN", ""),
		TwitterUsernames:   getSliceEnv("TWITTER_USERNAMES", nil),
		UsernamesFile:      getEnv("USERNAMES_FILE", "usernames.json"),
		TweetFetchLimit:    getIntEnv("TWEET_FETCH_LIMIT", 30),
		TwitterStateFile:   getEnv("TWITTER_STATE_FILE", "last_seen_ids.json"),
		DelayBetweenUsers:  getDurationEnv("DELAY_BETWEEN_USERS", 10*time.Second),
	}

	cfg.Profiles = map[string]PlatformProfile{
		string(models.PlatformTwitter): platformProfile(file.Platforms[string(models.PlatformTwitter)], "TWITTER", PlatformProfile{
			SourcePartitions: []string{"Sheet1"},
			TargetPartition:  "Analyzed_Twitter",
			RawPartition:     "Sheet1",
			LocalStateFile:   "twitter_processed_state.csv",
			AllowedTypes:     []string{models.TypeOriginalTweet, models.TypeThread},
		}),
		string(models.PlatformReddit): platformProfile(file.Platforms[string(models.PlatformReddit)], "REDDIT", PlatformProfile{
			SourcePartitions: []string{"Sheet_Reddit_Raw"},
			TargetPartition:  "Analyzed_Reddit",
			RawPartition:     "Sheet_Reddit_Raw",
			LocalStateFile:   "reddit_processed_state.csv",
			AllowedTypes:     []string{models.TypeRedditPost},
		}),
	}

	cfg.Location = resolveLocation(cfg.TargetTimezone)

	if fileErr != nil {
		return cfg, fileErr
	}

	if err := cfg.SetPlatform(platform); err != nil {
		return cfg, err
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SetPlatform selects the active platform profile
func (c *Config) SetPlatform(platform string) error {
	platform = strings.ToLower(strings.TrimSpace(platform))
	profile, ok := c.Profiles[platform]
	if !ok {
		return fmt.Errorf("unknown platform %q: must be 'twitter' or 'reddit'", platform)
	}
	c.Platform = platform
	c.Profile = profile
	return nil
}

// ForPlatform returns a copy of the configuration switched to another platform
func (c *Config) ForPlatform(platform string) (*Config, error) {
	clone := *c
	if err := clone.SetPlatform(platform); err != nil {
		return nil, err
	}
	return &clone, nil
}

// ValidateRewrite checks the settings needed to call the rewrite backend
func (c *Config) ValidateRewrite() error {
	switch c.RewriteBackend {
	case RewriteGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when REWRITE_BACKEND is 'gemini'")
		}
	case RewriteOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when REWRITE_BACKEND is 'openai'")
		}
	default:
		return fmt.Errorf("REWRITE_BACKEND must be 'gemini' or 'openai'")
	}
	return nil
}

func (c *Config) validate() error {
	if c.TelegramBotToken == "" && c.TeamsWebhookURL == "" && c.NotificationEmail == "" {
		return fmt.Errorf("at least one notification method must be configured (TELEGRAM_BOT_TOKEN, TEAMS_WEBHOOK_URL or NOTIFICATION_EMAIL)")
	}

	if c.TelegramBotToken != "" && c.TelegramChatID == "" {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	switch c.StoreBackend {
	case BackendGoogleSheets:
		if c.GoogleSheetsURL == "" {
			return fmt.Errorf("GOOGLE_SHEETS_URL is required when STORE_BACKEND is 'gsheets'")
		}
	case BackendAzureBlob:
		if c.StorageAccount == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT is required when STORE_BACKEND is 'azblob'")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND is 'sqlite'")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be 'gsheets', 'azblob' or 'sqlite'")
	}

	if c.ConcurrentRequests <= 0 {
		return fmt.Errorf("GEMINI_CONCURRENT_REQUESTS must be positive")
	}

	if c.MaxAttempts <= 0 {
		return fmt.Errorf("REWRITE_MAX_ATTEMPTS must be positive")
	}

	if len(c.Profile.SourcePartitions) == 0 || c.Profile.TargetPartition == "" || c.Profile.LocalStateFile == "" {
		return fmt.Errorf("platform %s needs source partitions, a target partition and a local state file", c.Platform)
	}

	return nil
}

func platformProfile(file PlatformProfile, prefix string, defaults PlatformProfile) PlatformProfile {
	return PlatformProfile{
		SourcePartitions: getSliceEnv(prefix+"_SOURCE_SHEET_NAMES", firstNonEmptySlice(file.SourcePartitions, defaults.SourcePartitions)),
		TargetPartition:  getEnv(prefix+"_ANALYZED_SHEET_NAME", firstNonEmpty(file.TargetPartition, defaults.TargetPartition)),
		RawPartition:     getEnv(prefix+"_RAW_SHEET_NAME", firstNonEmpty(file.RawPartition, defaults.RawPartition)),
		LocalStateFile:   getEnv(prefix+"_LOCAL_STATE_FILE", firstNonEmpty(file.LocalStateFile, defaults.LocalStateFile)),
		AllowedTypes:     firstNonEmptySlice(file.AllowedTypes, defaults.AllowedTypes),
	}
}

func resolveLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		logrus.Warnf("Invalid TARGET_TIMEZONE %q, falling back to UTC: %v", name, err)
		return time.UTC
	}
	return loc
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptySlice(values ...[]string) []string {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("90s") or plain seconds ("90")
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if secs, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
