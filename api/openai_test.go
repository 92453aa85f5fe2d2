package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmersaid/internal/logger"
)

const chatReply = `{"id": "chatcmpl-1", "object": "chat.completion", "created": 1725372000, "model": "Cohere-command-r",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "# Weekly Outlook\n---\n## Planting"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 300, "completion_tokens": 64, "total_tokens": 364}}`

func TestChatGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))

		var body struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			TopP        float64 `json:"top_p"`
			MaxTokens   int     `json:"max_tokens"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Cohere-command-r", body.Model)
		assert.Equal(t, 0.3, body.Temperature)
		assert.Equal(t, 0.9, body.TopP)
		assert.Equal(t, 4096, body.MaxTokens)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "user", body.Messages[1].Role)
		assert.Equal(t, "question", body.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatReply)
	}))
	defer srv.Close()

	client, err := NewChatClient("gh-token", srv.URL, testSettings())
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), Prompt{Model: "Cohere-command-r", System: "system prompt", User: "question"})
	require.NoError(t, err)
	assert.Equal(t, "# Weekly Outlook\n---\n## Planting", resp.Text)
	assert.Equal(t, 64, resp.TokensUsed)
	assert.Equal(t, "Cohere-command-r", resp.Model)
}

func TestChatRetriesRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error": {"code": "RateLimitReached", "message": "Rate limit of 15 per 60s exceeded"}}`)
			return
		}
		fmt.Fprint(w, chatReply)
	}))
	defer srv.Close()

	var logs bytes.Buffer
	logger.SetGlobal(logger.NewWithWriter(&logs, "warn"))
	defer logger.SetGlobal(logger.NewWithWriter(io.Discard, "error"))

	client, err := NewChatClient("gh-token", srv.URL, testSettings())
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Prompt{Model: "gpt-4o-mini", User: "question"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())

	out := logs.String()
	assert.Contains(t, out, "llm request (retrying)")
	assert.Contains(t, out, "api_provider=openai")
	assert.Contains(t, out, "model=gpt-4o-mini")
	assert.Contains(t, out, "attempt=2")
}

func TestChatGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"error": {"message": "upstream"}}`)
	}))
	defer srv.Close()

	client, err := NewChatClient("gh-token", srv.URL, testSettings())
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Prompt{Model: "gpt-4o-mini", User: "question"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), hits.Load())
}

func TestChatEmptyChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "x", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini", "choices": []}`)
	}))
	defer srv.Close()

	client, err := NewChatClient("gh-token", srv.URL, testSettings())
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Prompt{Model: "gpt-4o-mini", User: "question"})
	assert.ErrorContains(t, err, "empty response")
}

func TestClassifyGenerationError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  string
		retryable bool
	}{
		{"deadline", context.DeadlineExceeded, "timeout", true},
		{"cancelled", context.Canceled, "cancelled", false},
		{"wrapped deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), "timeout", true},
		{"unknown", errors.New("boom"), "api_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyGenerationError("openai", tt.err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.IsRetryable())
			assert.ErrorIs(t, got, tt.err)
		})
	}
}
