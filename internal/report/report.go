package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"farmersaid/api"
	"farmersaid/config"
	"farmersaid/internal/logger"
	"farmersaid/internal/metrics"
	"farmersaid/internal/pipeline"
)

// Report kinds
const (
	KindNarrative = "narrative"
	KindCustom    = "custom"
)

// ErrEmptyQuestion is returned by Ask when no question was given
var ErrEmptyQuestion = errors.New("question is required")

// Report is a generated agronomic text
type Report struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Text        string    `json:"text"`
	TokensUsed  int       `json:"tokens_used"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Reporter turns weather tables into narrative reports through a Generator
type Reporter struct {
	gen      api.Generator
	model    string
	askModel string
	metrics  *metrics.Metrics
}

// New creates a Reporter. m may be nil.
func New(gen api.Generator, cfg config.Report, m *metrics.Metrics) *Reporter {
	return &Reporter{
		gen:      gen,
		model:    cfg.Model,
		askModel: cfg.AskModel,
		metrics:  m,
	}
}

// Report writes the farmer-facing report from the history and forecast tables
func (r *Reporter) Report(ctx context.Context, history, forecast pipeline.WeatherTable) (*Report, error) {
	prompt := api.Prompt{
		Model:  r.model,
		System: reportSystemPrompt,
		User:   reportUserMessage(RenderTable(history), RenderTable(forecast)),
	}
	return r.generate(ctx, KindNarrative, prompt, len(history), len(forecast))
}

// Ask answers a custom statistic question about the place's data
func (r *Reporter) Ask(ctx context.Context, question string, place api.Place, history, forecast pipeline.WeatherTable) (*Report, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	prompt := api.Prompt{
		Model: r.askModel,
		System: substitute(askSystemTemplate, map[string]string{
			"location": describePlace(place),
			"current":  RenderTable(history),
			"forecast": RenderTable(forecast),
		}),
		User: question,
	}
	return r.generate(ctx, KindCustom, prompt, len(history), len(forecast))
}

func (r *Reporter) generate(ctx context.Context, kind string, prompt api.Prompt, historyRows, forecastRows int) (*Report, error) {
	provider := r.gen.Provider()
	complete := logger.LogOperationStart("report_"+kind, map[string]any{
		"provider":      provider,
		"model":         prompt.Model,
		"history_rows":  historyRows,
		"forecast_rows": forecastRows,
	})

	completion, err := r.gen.Generate(ctx, prompt)
	r.record(provider, err)
	if err != nil {
		complete(err)
		return nil, fmt.Errorf("failed to generate %s report: %w", kind, err)
	}
	complete(nil)

	return &Report{
		ID:          uuid.NewString(),
		Kind:        kind,
		Provider:    provider,
		Model:       completion.Model,
		Text:        completion.Text,
		TokensUsed:  completion.TokensUsed,
		GeneratedAt: completion.GeneratedAt,
	}, nil
}

func (r *Reporter) record(provider string, err error) {
	if r.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.metrics.ReportRequests.WithLabelValues(provider, outcome).Inc()
}
