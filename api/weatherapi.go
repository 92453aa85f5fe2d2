package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"farmersaid/config"
	"farmersaid/internal/logger"
)

const (
	sourceWeatherAPI = "weatherapi"

	currentEndpoint  = "/current.json"
	historyEndpoint  = "/history.json"
	forecastEndpoint = "/forecast.json"

	dateLayout = "2006-01-02"
)

// WeatherClient handles WeatherAPI.com current, history and forecast requests
type WeatherClient struct {
	client *resty.Client
	apiKey string
}

// NewWeatherClient creates a WeatherAPI.com client from the application config
func NewWeatherClient(cfg *config.Config) *WeatherClient {
	return &WeatherClient{
		client: newRestClient(sourceWeatherAPI, cfg.Endpoints.WeatherAPI),
		apiKey: cfg.APIs.WeatherAPI,
	}
}

// LocationInfo is the location block shared by every WeatherAPI.com response
type LocationInfo struct {
	Name      *string `json:"name"`
	Country   *string `json:"country"`
	LocalTime *string `json:"localtime"`
}

// Condition is a free-text weather description
type Condition struct {
	Text *string `json:"text"`
}

// CurrentConditions is an instantaneous reading
type CurrentConditions struct {
	TempC     *float64   `json:"temp_c"`
	Humidity  *float64   `json:"humidity"`
	PrecipMM  *float64   `json:"precip_mm"`
	Condition *Condition `json:"condition"`
}

// CurrentResponse represents the /current.json response
type CurrentResponse struct {
	Location *LocationInfo      `json:"location"`
	Current  *CurrentConditions `json:"current"`
}

// DayStats holds the daily aggregates of a history or forecast day
type DayStats struct {
	AvgTempC      *float64   `json:"avgtemp_c"`
	AvgHumidity   *float64   `json:"avghumidity"`
	TotalPrecipMM *float64   `json:"totalprecip_mm"`
	Condition     *Condition `json:"condition"`
}

// ForecastDay is one entry of forecast.forecastday
type ForecastDay struct {
	Date *string   `json:"date"`
	Day  *DayStats `json:"day"`
}

// ForecastBlock wraps the forecastday array
type ForecastBlock struct {
	ForecastDay []ForecastDay `json:"forecastday"`
}

// ForecastResponse represents both /history.json and /forecast.json, which
// share a shape. History carries a single forecastday.
type ForecastResponse struct {
	Location *LocationInfo  `json:"location"`
	Forecast *ForecastBlock `json:"forecast"`
}

// Days returns the forecastday entries, or nil when the block is missing
func (r *ForecastResponse) Days() []ForecastDay {
	if r == nil || r.Forecast == nil {
		return nil
	}
	return r.Forecast.ForecastDay
}

// Current fetches the current conditions for a location string
func (w *WeatherClient) Current(ctx context.Context, location string) Outcome[*CurrentResponse] {
	complete := logger.LogOperationStart("weather_current", map[string]any{
		"location": location,
	})

	body, err := fetch(ctx, w.client, request{
		source:    sourceWeatherAPI,
		operation: "current",
		path:      currentEndpoint,
		query: map[string]string{
			"key": w.apiKey,
			"q":   location,
			"aqi": "no",
		},
	})
	if err != nil {
		complete(err)
		return Unavailable[*CurrentResponse](err)
	}

	var resp CurrentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		err = fmt.Errorf("failed to decode current conditions: %w", err)
		complete(err)
		return Empty[*CurrentResponse](err)
	}

	complete(nil)
	if resp.Current == nil {
		return Empty[*CurrentResponse](fmt.Errorf("current conditions missing for %s", location))
	}
	return OK(&resp)
}

// History fetches the daily aggregates for a single date. One request is
// made per date.
func (w *WeatherClient) History(ctx context.Context, location string, date time.Time) Outcome[*ForecastResponse] {
	dt := date.Format(dateLayout)
	complete := logger.LogOperationStart("weather_history", map[string]any{
		"location": location,
		"date":     dt,
	})

	body, err := fetch(ctx, w.client, request{
		source:    sourceWeatherAPI,
		operation: "history " + dt,
		path:      historyEndpoint,
		query: map[string]string{
			"key": w.apiKey,
			"q":   location,
			"dt":  dt,
		},
	})
	if err != nil {
		complete(err)
		return Unavailable[*ForecastResponse](err)
	}

	var resp ForecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		err = fmt.Errorf("failed to decode history for %s: %w", dt, err)
		complete(err)
		return Empty[*ForecastResponse](err)
	}

	complete(nil)
	if len(resp.Days()) == 0 {
		return Empty[*ForecastResponse](fmt.Errorf("no history for %s", dt))
	}
	return OK(&resp)
}

// Forecast fetches a multi-day forecast in a single request
func (w *WeatherClient) Forecast(ctx context.Context, location string, days int) Outcome[*ForecastResponse] {
	complete := logger.LogOperationStart("weather_forecast", map[string]any{
		"location": location,
		"days":     days,
	})

	body, err := fetch(ctx, w.client, request{
		source:    sourceWeatherAPI,
		operation: "forecast",
		path:      forecastEndpoint,
		query: map[string]string{
			"key":  w.apiKey,
			"q":    location,
			"days": strconv.Itoa(days),
			"aqi":  "no",
		},
	})
	if err != nil {
		complete(err)
		return Unavailable[*ForecastResponse](err)
	}

	var resp ForecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		err = fmt.Errorf("failed to decode forecast: %w", err)
		complete(err)
		return Empty[*ForecastResponse](err)
	}

	complete(nil)
	if len(resp.Days()) == 0 {
		return Empty[*ForecastResponse](fmt.Errorf("forecast for %s has no days", location))
	}
	return OK(&resp)
}
