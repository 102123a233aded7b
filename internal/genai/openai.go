package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/rahmetlabs/social-analyzer/internal/retry"
)

// OpenAIClient calls an OpenAI-compatible chat completions API
type OpenAIClient struct {
	client   *resty.Client
	endpoint string
	model    string
	apiKey   string
}

// Ensure OpenAIClient implements Rewriter
var _ Rewriter = (*OpenAIClient)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// NewOpenAI creates a chat completions client
func NewOpenAI(endpoint, model, apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client:   resty.New(),
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		apiKey:   apiKey,
	}
}

func (o *OpenAIClient) Name() string {
	return "openai/" + o.model
}

func (o *OpenAIClient) Rewrite(ctx context.Context, text string, lang Language) (string, error) {
	prompt, err := UserPrompt(text, lang)
	if err != nil {
		return "", retry.Permanent(err)
	}

	var result chatResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetAuthToken(o.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(chatRequest{
			Model: o.model,
			Messages: []chatMessage{
				{Role: "system", Content: SystemPrompt()},
				{Role: "user", Content: prompt},
			},
			Temperature: 0.7,
		}).
		SetResult(&result).
		Post(o.endpoint + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if resp.IsError() {
		return "", classifyStatus("openai", resp)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	rewritten := strings.TrimSpace(result.Choices[0].Message.Content)
	if rewritten == "" {
		return "", fmt.Errorf("openai returned empty text (finish reason %s)", result.Choices[0].FinishReason)
	}
	return rewritten, nil
}
