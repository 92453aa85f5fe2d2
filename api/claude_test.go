package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmersaid/config"
)

func testSettings() GenerationSettings {
	return GenerationSettings{
		MaxTokens:   4096,
		Temperature: 0.3,
		TopP:        0.9,
		MaxRetries:  2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Timeout:     5 * time.Second,
	}
}

const claudeReply = `{"id": "msg_01", "type": "message", "role": "assistant", "model": "claude-3-5-sonnet-20241022",
	"content": [{"type": "text", "text": "# Farm Report\n## Irrigation\nWater early."}],
	"stop_reason": "end_turn", "usage": {"input_tokens": 120, "output_tokens": 42}}`

func TestClaudeClientAPIKeyValidation(t *testing.T) {
	tests := []struct {
		name      string
		apiKey    string
		wantError bool
	}{
		{"Empty API key", "", true},
		{"Whitespace API key", "   ", true},
		{"Valid API key", "sk-ant-api-key", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClaudeClient(tt.apiKey, "", testSettings())
			if (err != nil) != tt.wantError {
				t.Errorf("NewClaudeClient() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestClaudeGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-3-5-sonnet-20241022", body["model"])
		assert.Equal(t, 4096.0, body["max_tokens"])
		assert.Equal(t, 0.3, body["temperature"])
		assert.Equal(t, 0.9, body["top_p"])
		assert.Contains(t, fmt.Sprint(body["system"]), "agronomist")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, claudeReply)
	}))
	defer srv.Close()

	client, err := NewClaudeClient("test-key", srv.URL, testSettings())
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), Prompt{
		Model:  "claude-3-5-sonnet-20241022",
		System: "You are an agronomist.",
		User:   "Current and historical data:\n...",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "# Farm Report")
	assert.Equal(t, 42, resp.TokensUsed)
	assert.Equal(t, "anthropic", client.Provider())
}

func TestClaudeRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"type": "error", "error": {"type": "overloaded_error", "message": "Overloaded"}}`)
			return
		}
		fmt.Fprint(w, claudeReply)
	}))
	defer srv.Close()

	client, err := NewClaudeClient("test-key", srv.URL, testSettings())
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), Prompt{Model: "claude-3-5-sonnet-20241022", User: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Text)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClaudeDoesNotRetryAuthErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`)
	}))
	defer srv.Close()

	client, err := NewClaudeClient("bad-key", srv.URL, testSettings())
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Prompt{Model: "claude-3-5-sonnet-20241022", User: "hi"})
	require.Error(t, err)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "authentication_error", genErr.Type)
	assert.Equal(t, http.StatusUnauthorized, genErr.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNewGeneratorSelectsProvider(t *testing.T) {
	cfg := config.New()
	_, err := NewGenerator(cfg)
	assert.Error(t, err, "missing LLM key")

	cfg.APIs.LLM = "key"
	gen, err := NewGenerator(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", gen.Provider())

	cfg.Report.Provider = config.ProviderAnthropic
	gen, err = NewGenerator(cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", gen.Provider())
}

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig(config.New().Report)
	assert.Equal(t, 4096, s.MaxTokens)
	assert.Equal(t, time.Second, s.BaseDelay)
	assert.Equal(t, 30*time.Second, s.MaxDelay)
	assert.Equal(t, 120*time.Second, s.Timeout)
}
