package api

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"farmersaid/config"
	"farmersaid/internal/logger"
)

const (
	sourceAmbee = "ambee"

	latestPollenEndpoint   = "/latest/pollen/by-place"
	forecastPollenEndpoint = "/forecast/pollen/by-place"
)

// PollenClient fetches pollen readings from Ambee
type PollenClient struct {
	client *resty.Client
	apiKey string
}

// NewPollenClient creates an Ambee client from the application config
func NewPollenClient(cfg *config.Config) *PollenClient {
	return &PollenClient{
		client: newRestClient(sourceAmbee, cfg.Endpoints.Ambee),
		apiKey: cfg.APIs.Ambee,
	}
}

// Latest fetches the current pollen reading for a "City,Country" place
func (p *PollenClient) Latest(ctx context.Context, place string) Outcome[gjson.Result] {
	return p.byPlace(ctx, "latest", latestPollenEndpoint, place)
}

// Forecast fetches the hourly pollen forecast for a "City,Country" place
func (p *PollenClient) Forecast(ctx context.Context, place string) Outcome[gjson.Result] {
	return p.byPlace(ctx, "forecast", forecastPollenEndpoint, place)
}

// byPlace returns the response's data field untouched. Its shape differs
// between endpoints (an array of readings, sometimes a single object), so
// flattening is left to the caller.
func (p *PollenClient) byPlace(ctx context.Context, operation, path, place string) Outcome[gjson.Result] {
	complete := logger.LogOperationStart("pollen_"+operation, map[string]any{
		"place": place,
	})

	body, err := fetch(ctx, p.client, request{
		source:    sourceAmbee,
		operation: operation,
		path:      path,
		query:     map[string]string{"place": place},
		headers: map[string]string{
			"x-api-key":       p.apiKey,
			"Content-type":    "application/json",
			"Accept-Language": "en",
		},
	})
	if err != nil {
		complete(err)
		return Unavailable[gjson.Result](err)
	}

	if !gjson.ValidBytes(body) {
		err := fmt.Errorf("pollen %s response is not valid JSON", operation)
		complete(err)
		return Empty[gjson.Result](err)
	}

	complete(nil)
	data := gjson.GetBytes(body, "data")
	if isBlank(data) {
		return Empty[gjson.Result](fmt.Errorf("pollen %s response has no data for %s", operation, place))
	}
	return OK(data)
}

// isBlank matches values a truthiness check would reject: missing, null,
// false, empty arrays and empty objects
func isBlank(v gjson.Result) bool {
	if !v.Exists() {
		return true
	}
	switch v.Type {
	case gjson.Null, gjson.False:
		return true
	case gjson.String:
		return v.Str == ""
	case gjson.JSON:
		if v.IsArray() {
			return len(v.Array()) == 0
		}
		return len(v.Map()) == 0
	}
	return false
}
