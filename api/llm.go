package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v3"

	"farmersaid/config"
	"farmersaid/internal/errorutil"
	"farmersaid/internal/logger"
)

// Prompt is one system+user exchange sent to a language model
type Prompt struct {
	Model  string
	System string
	User   string
}

// Completion is the generated text and its accounting
type Completion struct {
	Text        string
	Model       string
	TokensUsed  int
	GeneratedAt time.Time
}

// Generator produces text from a prompt. Implementations retry transient
// failures themselves.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (*Completion, error)
	Provider() string
}

// GenerationSettings are the sampling and retry parameters shared by all providers
type GenerationSettings struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Timeout     time.Duration
}

// SettingsFromConfig converts the [report] section into GenerationSettings
func SettingsFromConfig(r config.Report) GenerationSettings {
	return GenerationSettings{
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		TopP:        r.TopP,
		MaxRetries:  r.MaxRetries,
		BaseDelay:   time.Duration(r.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(r.MaxDelayMs) * time.Millisecond,
		Timeout:     time.Duration(r.TimeoutSec) * time.Second,
	}
}

// NewGenerator returns the Generator selected by [report] provider
func NewGenerator(cfg *config.Config) (Generator, error) {
	if err := cfg.RequireLLM(); err != nil {
		return nil, err
	}

	switch cfg.Report.Provider {
	case config.ProviderAnthropic:
		return NewClaudeClient(cfg.APIs.LLM, cfg.Report.BaseURL, SettingsFromConfig(cfg.Report))
	case config.ProviderOpenAI:
		return NewChatClient(cfg.APIs.LLM, cfg.Report.BaseURL, SettingsFromConfig(cfg.Report))
	default:
		return nil, fmt.Errorf("unknown report provider %q", cfg.Report.Provider)
	}
}

// GenerationError is a classified failure from a language model provider
type GenerationError struct {
	Provider   string
	Type       string
	StatusCode int
	Retryable  bool
	Underlying error
}

func (e *GenerationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error (status %d, type %s): %v", e.Provider, e.StatusCode, e.Type, e.Underlying)
	}
	return fmt.Sprintf("%s API error (type %s): %v", e.Provider, e.Type, e.Underlying)
}

func (e *GenerationError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns true if this error indicates a retryable condition
func (e *GenerationError) IsRetryable() bool {
	return e.Retryable
}

// classifyGenerationError maps SDK, context and network errors onto GenerationError
func classifyGenerationError(provider string, err error) *GenerationError {
	genErr := &GenerationError{Provider: provider, Type: "api_error", Underlying: err}

	var anthropicErr *anthropic.Error
	var openaiErr *openai.Error
	var netErr net.Error

	switch {
	case errors.Is(err, context.Canceled):
		genErr.Type = "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		genErr.Type = "timeout"
		genErr.Retryable = true
	case errors.As(err, &anthropicErr):
		genErr.StatusCode = anthropicErr.StatusCode
	case errors.As(err, &openaiErr):
		genErr.StatusCode = openaiErr.StatusCode
	case errors.As(err, &netErr):
		genErr.Type = "network_error"
		genErr.Retryable = true
	}

	if genErr.StatusCode > 0 {
		genErr.Type = statusErrorType(genErr.StatusCode)
		genErr.Retryable = errorutil.IsRetryableStatus(genErr.StatusCode)
	}
	return genErr
}

func statusErrorType(status int) string {
	switch {
	case status == 401 || status == 403:
		return "authentication_error"
	case status == 429:
		return "rate_limit_error"
	case status >= 500:
		return "server_error"
	default:
		return "invalid_request_error"
	}
}

// retryCompletion runs call with exponential backoff. Only errors classified
// as retryable are attempted again; each attempt gets its own timeout.
func retryCompletion(ctx context.Context, provider, model string, s GenerationSettings, call func(context.Context) (*Completion, error)) (*Completion, error) {
	bo := backoff.NewExponentialBackOff()
	if s.BaseDelay > 0 {
		bo.InitialInterval = s.BaseDelay
	}
	if s.MaxDelay > 0 {
		bo.MaxInterval = s.MaxDelay
	}
	bo.MaxElapsedTime = 0

	attempt := 0
	operation := func() (*Completion, error) {
		attempt++
		reqCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.Timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		}
		defer cancel()

		resp, err := call(reqCtx)
		if err != nil {
			genErr := classifyGenerationError(provider, err)
			if !genErr.Retryable {
				return nil, backoff.Permanent(genErr)
			}
			return nil, genErr
		}
		if strings.TrimSpace(resp.Text) == "" {
			return nil, backoff.Permanent(fmt.Errorf("empty response from %s", provider))
		}
		return resp, nil
	}

	notify := func(err error, wait time.Duration) {
		attrs := append(errorutil.APIContext(provider, model),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.MaxRetries+1),
			slog.Int64("delay_ms", wait.Milliseconds()),
		)
		errorutil.LogWarning(logger.Get().Logger, "llm request (retrying)", err, attrs...)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(max(s.MaxRetries, 0))), ctx)
	resp, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		if attempt > 1 {
			return nil, fmt.Errorf("%s request failed after %d attempts: %w", provider, attempt, err)
		}
		return nil, err
	}
	return resp, nil
}
