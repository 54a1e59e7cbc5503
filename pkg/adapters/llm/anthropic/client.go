package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const defaultModel = "claude-sonnet-4-20250514"

// Client implements CompletionClient using the Anthropic API.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
	logger *zap.Logger
}

// NewClient creates a new Anthropic completion client.
func NewClient(apiKey, model string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		logger: logger,
	}, nil
}

// Complete sends a single-turn prompt and returns the text of the response.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	c.logger.Debug("completion finished",
		zap.String("model", string(c.model)),
		zap.Duration("latency", time.Since(start)),
		zap.Int("chars", sb.Len()))
	return sb.String(), nil
}
