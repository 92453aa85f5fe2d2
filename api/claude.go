package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"farmersaid/internal/logger"
)

// ClaudeClient generates reports through the Anthropic Messages API
type ClaudeClient struct {
	client   anthropic.Client
	settings GenerationSettings
}

// NewClaudeClient creates a Claude client. baseURL may be empty.
func NewClaudeClient(apiKey, baseURL string, settings GenerationSettings) (*ClaudeClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("Claude API key is required")
	}

	// Retries are driven by retryCompletion
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &ClaudeClient{
		client:   anthropic.NewClient(opts...),
		settings: settings,
	}, nil
}

// Provider returns the provider name used in logs and metrics
func (c *ClaudeClient) Provider() string {
	return "anthropic"
}

// Generate sends the prompt and returns the first text block of the reply
func (c *ClaudeClient) Generate(ctx context.Context, prompt Prompt) (*Completion, error) {
	complete := logger.LogOperationStart("claude_generate", map[string]any{
		"model":       prompt.Model,
		"max_tokens":  c.settings.MaxTokens,
		"temperature": c.settings.Temperature,
		"max_retries": c.settings.MaxRetries,
	})

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(prompt.Model),
		MaxTokens:   int64(c.settings.MaxTokens),
		Temperature: anthropic.Float(c.settings.Temperature),
		TopP:        anthropic.Float(c.settings.TopP),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: prompt.System}}
	}

	resp, err := retryCompletion(ctx, c.Provider(), prompt.Model, c.settings, func(ctx context.Context) (*Completion, error) {
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return nil, err
		}

		var text string
		for _, block := range msg.Content {
			if block.Type == "text" && block.Text != "" {
				text = block.Text
				break
			}
		}
		return &Completion{
			Text:        text,
			Model:       string(msg.Model),
			TokensUsed:  int(msg.Usage.OutputTokens),
			GeneratedAt: time.Now(),
		}, nil
	})

	complete(err)
	return resp, err
}
