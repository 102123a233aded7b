package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahmetlabs/social-analyzer/internal/config"
	"github.com/rahmetlabs/social-analyzer/internal/retry"
)

func TestGemini_Rewrite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if !assert.Len(t, req.Contents, 1) {
			return
		}
		assert.Contains(t, req.Contents[0].Parts[0].Text, "source text")
		assert.Contains(t, req.Contents[0].Parts[0].Text, "русском")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  готово "},{"text":"!"}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	client := NewGemini(server.URL+"/v1beta/", "gemini-1.5-flash", "secret")
	out, err := client.Rewrite(context.Background(), "source text", Russian)

	require.NoError(t, err)
	assert.Equal(t, "готово !", out)
	assert.Equal(t, "gemini/gemini-1.5-flash", client.Name())
}

func TestGemini_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{"Rate limited", http.StatusTooManyRequests, `{"error":{"message":"quota"}}`, false},
		{"Server error", http.StatusInternalServerError, `oops`, false},
		{"Bad request", http.StatusBadRequest, `{"error":{"message":"bad"}}`, true},
		{"Blocked", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`, true},
		{"No candidates", http.StatusOK, `{"candidates":[]}`, false},
		{"Empty text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":" "}]},"finishReason":"MAX_TOKENS"}]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewGemini(server.URL, "m", "k").Rewrite(context.Background(), "text", English)
			require.Error(t, err)
			assert.Equal(t, tt.permanent, retry.IsPermanent(err))
		})
	}
}

func TestOpenAI_Rewrite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		if !assert.Len(t, req.Messages, 2) {
			return
		}
		assert.Equal(t, "system", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"done"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	out, err := NewOpenAI(server.URL+"/v1", "gpt-test", "sk-test").Rewrite(context.Background(), "text", English)
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestUserPrompt(t *testing.T) {
	prompt, err := UserPrompt("  hello  ", English)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(prompt, "<<<\nhello\n>>>"))

	_, err = UserPrompt("hello", Language("DE"))
	assert.Error(t, err)
}

func TestNew_SelectsBackend(t *testing.T) {
	cfg := &config.Config{RewriteBackend: config.RewriteOpenAI, OpenAIAPIKey: "k", OpenAIModel: "m", OpenAIEndpoint: "http://localhost"}
	r, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai/m", r.Name())

	cfg.OpenAIAPIKey = ""
	_, err = New(cfg)
	assert.Error(t, err)
}
