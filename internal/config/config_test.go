package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setMinimalEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("STORE_BACKEND", BackendSQLite)
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "test.db"))
}

func TestLoad_Defaults(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load("twitter")
	require.NoError(t, err)

	assert.Equal(t, "twitter", cfg.Platform)
	assert.Equal(t, []string{"Sheet1"}, cfg.Profile.SourcePartitions)
	assert.Equal(t, "Analyzed_Twitter", cfg.Profile.TargetPartition)
	assert.Equal(t, "twitter_processed_state.csv", cfg.Profile.LocalStateFile)
	assert.Equal(t, []string{"Original Tweet", "Thread"}, cfg.Profile.AllowedTypes)
	assert.Equal(t, 1, cfg.ConcurrentRequests)
	assert.Equal(t, 180*time.Second, cfg.RewriteTimeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.InterCallDelay)
	assert.Equal(t, 10*time.Second, cfg.PostUnitDelay)
	assert.Equal(t, 50, cfg.MinContentLength)
	assert.Contains(t, cfg.Keywords, " n8n")
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestLoad_RedditProfileFromEnv(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("REDDIT_SOURCE_SHEET_NAMES", "Raw_A, Raw_B")
	t.Setenv("REDDIT_ANALYZED_SHEET_NAME", "Out")

	cfg, err := Load("Reddit")
	require.NoError(t, err)

	assert.Equal(t, "reddit", cfg.Platform)
	assert.Equal(t, []string{"Raw_A", "Raw_B"}, cfg.Profile.SourcePartitions)
	assert.Equal(t, "Out", cfg.Profile.TargetPartition)
	assert.Equal(t, []string{"Reddit Post"}, cfg.Profile.AllowedTypes)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		env      map[string]string
	}{
		{
			name:     "Unknown platform",
			platform: "mastodon",
		},
		{
			name:     "No notification channel",
			platform: "twitter",
			env:      map[string]string{"TELEGRAM_BOT_TOKEN": ""},
		},
		{
			name:     "Telegram without chat",
			platform: "twitter",
			env:      map[string]string{"TELEGRAM_CHAT_ID": ""},
		},
		{
			name:     "Sheets backend without URL",
			platform: "twitter",
			env:      map[string]string{"STORE_BACKEND": BackendGoogleSheets, "GOOGLE_SHEETS_URL": ""},
		},
		{
			name:     "Unknown backend",
			platform: "twitter",
			env:      map[string]string{"STORE_BACKEND": "ftp"},
		},
		{
			name:     "Zero concurrency",
			platform: "twitter",
			env:      map[string]string{"GEMINI_CONCURRENT_REQUESTS": "0"},
		},
		{
			name:     "Email without SMTP",
			platform: "twitter",
			env:      map[string]string{"NOTIFICATION_EMAIL": "ops@example.com", "SMTP_HOST": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setMinimalEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(tt.platform)
			assert.Error(t, err)
		})
	}
}

func TestLoad_ValidationErrorKeepsNotificationSettings(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("STORE_BACKEND", "excel")

	cfg, err := Load("twitter")
	require.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "token", cfg.TelegramBotToken)
	assert.Equal(t, "42", cfg.TelegramChatID)
}

func TestLoad_BadConfigFileKeepsNotificationSettings(t *testing.T) {
	setMinimalEnv(t)

	path := filepath.Join(t.TempDir(), "analyzer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keywords: [unclosed"), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load("twitter")
	require.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "token", cfg.TelegramBotToken)
}

func TestLoad_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("TARGET_TIMEZONE", "Mars/Olympus")

	cfg, err := Load("twitter")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestLoad_FileOverlay(t *testing.T) {
	setMinimalEnv(t)

	path := filepath.Join(t.TempDir(), "analyzer.yaml")
	content := `
keywords: [kubernetes, golang]
platforms:
  twitter:
    source_partitions: [Tweets_2024]
    target_partition: Tweets_Out
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TWITTER_ANALYZED_SHEET_NAME", "Env_Wins")

	cfg, err := Load("twitter")
	require.NoError(t, err)

	assert.Equal(t, []string{"kubernetes", "golang"}, cfg.Keywords)
	assert.Equal(t, []string{"Tweets_2024"}, cfg.Profile.SourcePartitions)
	assert.Equal(t, "Env_Wins", cfg.Profile.TargetPartition)
	assert.Equal(t, "twitter_processed_state.csv", cfg.Profile.LocalStateFile)
}

func TestForPlatform(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load("twitter")
	require.NoError(t, err)

	reddit, err := cfg.ForPlatform("reddit")
	require.NoError(t, err)
	assert.Equal(t, "reddit", reddit.Platform)
	assert.Equal(t, "twitter", cfg.Platform)
}

func TestValidateRewrite(t *testing.T) {
	cfg := &Config{RewriteBackend: RewriteGemini}
	assert.Error(t, cfg.ValidateRewrite())

	cfg.GeminiAPIKey = "key"
	assert.NoError(t, cfg.ValidateRewrite())

	cfg.RewriteBackend = "bard"
	assert.Error(t, cfg.ValidateRewrite())
}

func TestGetDurationEnv(t *testing.T) {
	t.Setenv("D1", "90s")
	t.Setenv("D2", "2")
	t.Setenv("D3", "soon")

	assert.Equal(t, 90*time.Second, getDurationEnv("D1", time.Second))
	assert.Equal(t, 2*time.Second, getDurationEnv("D2", time.Second))
	assert.Equal(t, time.Second, getDurationEnv("D3", time.Second))
}
