package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"farmersaid/internal/logger"
)

// ChatClient generates reports through an OpenAI-compatible chat completions
// endpoint, such as the GitHub Models inference service
type ChatClient struct {
	client   openai.Client
	settings GenerationSettings
}

// NewChatClient creates a chat completions client. baseURL may be empty to
// use the OpenAI default.
func NewChatClient(apiKey, baseURL string, settings GenerationSettings) (*ChatClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("chat completions API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &ChatClient{
		client:   openai.NewClient(opts...),
		settings: settings,
	}, nil
}

// Provider returns the provider name used in logs and metrics
func (c *ChatClient) Provider() string {
	return "openai"
}

// Generate sends a system and a user message and returns the first choice
func (c *ChatClient) Generate(ctx context.Context, prompt Prompt) (*Completion, error) {
	complete := logger.LogOperationStart("chat_generate", map[string]any{
		"model":       prompt.Model,
		"max_tokens":  c.settings.MaxTokens,
		"temperature": c.settings.Temperature,
		"max_retries": c.settings.MaxRetries,
	})

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	messages = append(messages, openai.UserMessage(prompt.User))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(prompt.Model),
		Messages:    messages,
		Temperature: openai.Float(c.settings.Temperature),
		TopP:        openai.Float(c.settings.TopP),
		MaxTokens:   openai.Int(int64(c.settings.MaxTokens)),
	}

	resp, err := retryCompletion(ctx, c.Provider(), prompt.Model, c.settings, func(ctx context.Context) (*Completion, error) {
		chat, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, err
		}
		if len(chat.Choices) == 0 {
			return &Completion{Model: chat.Model}, nil
		}
		return &Completion{
			Text:        chat.Choices[0].Message.Content,
			Model:       chat.Model,
			TokensUsed:  int(chat.Usage.CompletionTokens),
			GeneratedAt: time.Now(),
		}, nil
	})

	complete(err)
	return resp, err
}
