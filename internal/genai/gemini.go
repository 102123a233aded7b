package genai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/rahmetlabs/social-analyzer/internal/retry"
)

// GeminiClient calls the Generative Language API generateContent endpoint
type GeminiClient struct {
	client   *resty.Client
	endpoint string
	model    string
	apiKey   string
}

// Ensure GeminiClient implements Rewriter
var _ Rewriter = (*GeminiClient)(nil)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// NewGemini creates a Gemini client. Timeouts come from the caller's context.
func NewGemini(endpoint, model, apiKey string) *GeminiClient {
	return &GeminiClient{
		client:   resty.New(),
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		apiKey:   apiKey,
	}
}

func (g *GeminiClient) Name() string {
	return "gemini/" + g.model
}

// Rewrite sends one generateContent request and returns the first candidate's text
func (g *GeminiClient) Rewrite(ctx context.Context, text string, lang Language) (string, error) {
	prompt, err := UserPrompt(text, lang)
	if err != nil {
		return "", retry.Permanent(err)
	}

	body := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: SystemPrompt()}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	body.GenerationConfig.Temperature = 0.7

	var result geminiResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-goog-api-key", g.apiKey).
		SetBody(body).
		SetResult(&result).
		Post(fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, g.model))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	if resp.IsError() {
		return "", classifyStatus("gemini", resp)
	}

	if result.PromptFeedback.BlockReason != "" {
		return "", retry.Permanent(fmt.Errorf("gemini blocked the prompt: %s", result.PromptFeedback.BlockReason))
	}
	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var out strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}
	rewritten := strings.TrimSpace(out.String())
	if rewritten == "" {
		return "", fmt.Errorf("gemini returned empty text (finish reason %s)", result.Candidates[0].FinishReason)
	}
	return rewritten, nil
}

// classifyStatus marks client errors other than rate limiting as permanent
func classifyStatus(backend string, resp *resty.Response) error {
	err := fmt.Errorf("%s returned status %d: %s", backend, resp.StatusCode(), truncate(resp.String(), 300))
	switch resp.StatusCode() {
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return err
	}
	if resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
		return retry.Permanent(err)
	}
	return err
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
