package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ansor-ai/ansor/pkg/adapters/llm/anthropic"
	"github.com/ansor-ai/ansor/pkg/ports"
)

// Config holds completion client configuration
type Config struct {
	Provider string
	APIKey   string
	Model    string
	Logger   *zap.Logger
}

// NewClient creates a new completion client based on provider
func NewClient(cfg *Config) (ports.CompletionClient, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewClient(cfg.APIKey, cfg.Model, cfg.Logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
