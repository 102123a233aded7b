package genai

import (
	"context"
	"fmt"

	"github.com/rahmetlabs/social-analyzer/internal/config"
)

// Language is a rewrite target language
type Language string

const (
	English Language = "EN"
	Russian Language = "RU"
)

// Rewriter turns a source post into a rewritten post in the target language
type Rewriter interface {
	Rewrite(ctx context.Context, text string, lang Language) (string, error)
	Name() string
}

// New creates the rewriter selected by REWRITE_BACKEND
func New(cfg *config.Config) (Rewriter, error) {
	if err := cfg.ValidateRewrite(); err != nil {
		return nil, err
	}

	switch cfg.RewriteBackend {
	case config.RewriteGemini:
		return NewGemini(cfg.GeminiEndpoint, cfg.GeminiModel, cfg.GeminiAPIKey), nil
	case config.RewriteOpenAI:
		return NewOpenAI(cfg.OpenAIEndpoint, cfg.OpenAIModel, cfg.OpenAIAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown rewrite backend %q", cfg.RewriteBackend)
	}
}
