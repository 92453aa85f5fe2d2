package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"farmersaid/config"
	"farmersaid/internal/logger"
)

const (
	sourcePower = "power"

	powerDateLayout = "20060102"
)

// PowerClient fetches satellite precipitation from the NASA POWER daily point API
type PowerClient struct {
	client     *resty.Client
	apiKey     string
	daysBefore int
	daysAfter  int
	community  string
	parameter  string
}

// NewPowerClient creates a NASA POWER client from the application config
func NewPowerClient(cfg *config.Config) *PowerClient {
	return &PowerClient{
		client:     newRestClient(sourcePower, cfg.Endpoints.Power),
		apiKey:     cfg.APIs.NASA,
		daysBefore: cfg.Precipitation.DaysBefore,
		daysAfter:  cfg.Precipitation.DaysAfter,
		community:  cfg.Precipitation.Community,
		parameter:  cfg.Precipitation.Parameter,
	}
}

// PowerSeries maps the source's date keys (YYYYMMDD) to precipitation values.
// Fill values (-999) are passed through untouched; a null value stays nil.
type PowerSeries map[string]*float64

// powerResponse is the subset of the GeoJSON response that carries values
type powerResponse struct {
	Properties *struct {
		Parameter map[string]map[string]*float64 `json:"parameter"`
	} `json:"properties"`
}

// Window returns the inclusive start and end dates requested for a given now
func (p *PowerClient) Window(now time.Time) (time.Time, time.Time) {
	return now.AddDate(0, 0, -p.daysBefore), now.AddDate(0, 0, p.daysAfter)
}

// Precipitation fetches the configured window around now in one ranged request
func (p *PowerClient) Precipitation(ctx context.Context, latitude, longitude string, now time.Time) Outcome[PowerSeries] {
	start, end := p.Window(now)
	complete := logger.LogOperationStart("power_precipitation", map[string]any{
		"latitude":  latitude,
		"longitude": longitude,
		"start":     start.Format(powerDateLayout),
		"end":       end.Format(powerDateLayout),
	})

	query := map[string]string{
		"start":      start.Format(powerDateLayout),
		"end":        end.Format(powerDateLayout),
		"latitude":   latitude,
		"longitude":  longitude,
		"community":  p.community,
		"parameters": p.parameter,
		"format":     "JSON",
		"header":     "true",
	}
	if p.apiKey != "" {
		query["api_key"] = p.apiKey
	}

	body, err := fetch(ctx, p.client, request{
		source:    sourcePower,
		operation: "precipitation",
		path:      "",
		query:     query,
	})
	if err != nil {
		complete(err)
		return Unavailable[PowerSeries](err)
	}

	var resp powerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		err = fmt.Errorf("failed to decode precipitation: %w", err)
		complete(err)
		return Empty[PowerSeries](err)
	}

	complete(nil)
	if resp.Properties == nil || len(resp.Properties.Parameter[p.parameter]) == 0 {
		return Empty[PowerSeries](fmt.Errorf("no %s values in response", p.parameter))
	}
	return OK(PowerSeries(resp.Properties.Parameter[p.parameter]))
}
