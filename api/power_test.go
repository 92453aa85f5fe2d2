package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPowerWindow(t *testing.T) {
	now := time.Date(2024, time.September, 3, 15, 0, 0, 0, time.UTC)
	start, end := NewPowerClient(testConfig("http://unused")).Window(now)

	assert.Equal(t, "20240827", start.Format(powerDateLayout))
	assert.Equal(t, "20240906", end.Format(powerDateLayout))
}

func TestPowerPrecipitation(t *testing.T) {
	now := time.Date(2024, time.September, 3, 15, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/power", r.URL.Path)
		assert.Equal(t, "20240827", q.Get("start"))
		assert.Equal(t, "20240906", q.Get("end"))
		assert.Equal(t, "26.2285", q.Get("latitude"))
		assert.Equal(t, "50.5860", q.Get("longitude"))
		assert.Equal(t, "AG", q.Get("community"))
		assert.Equal(t, "PRECTOTCORR", q.Get("parameters"))
		assert.Equal(t, "JSON", q.Get("format"))
		assert.Equal(t, "true", q.Get("header"))
		assert.False(t, q.Has("api_key"), "no key configured")
		fmt.Fprint(w, `{"type": "Feature", "properties": {"parameter": {"PRECTOTCORR": {
			"20240902": 0.3, "20240903": 2.0, "20240906": -999.0}}}}`)
	}))
	defer srv.Close()

	out := NewPowerClient(testConfig(srv.URL)).Precipitation(context.Background(), "26.2285", "50.5860", now)
	require.True(t, out.OK(), "outcome: %v", out.Err())

	assert.Equal(t, PowerSeries{"20240902": f64(0.3), "20240903": f64(2.0), "20240906": f64(-999.0)}, out.Data)
}

func TestPowerPrecipitationKeepsNullsAsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"properties": {"parameter": {"PRECTOTCORR": {"20240903": null, "20240902": 0.4}}}}`)
	}))
	defer srv.Close()

	out := NewPowerClient(testConfig(srv.URL)).Precipitation(context.Background(), "1", "2", time.Now())
	require.True(t, out.OK(), "outcome: %v", out.Err())

	v, present := out.Data["20240903"]
	assert.True(t, present)
	assert.Nil(t, v)
	require.NotNil(t, out.Data["20240902"])
	assert.Equal(t, 0.4, *out.Data["20240902"])
}

func f64(v float64) *float64 { return &v }

func TestPowerSendsKeyWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "nasa-key", r.URL.Query().Get("api_key"))
		fmt.Fprint(w, `{"properties": {"parameter": {"PRECTOTCORR": {"20240903": 0.1}}}}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.APIs.NASA = "nasa-key"

	out := NewPowerClient(cfg).Precipitation(context.Background(), "1", "2", time.Now())
	assert.True(t, out.OK())
}

func TestPowerOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Status
	}{
		{"missing parameter", http.StatusOK, `{"properties": {"parameter": {}}}`, StatusEmpty},
		{"missing properties", http.StatusOK, `{"messages": []}`, StatusEmpty},
		{"malformed body", http.StatusOK, `<html>`, StatusEmpty},
		{"rate limited", http.StatusTooManyRequests, `{"message": "slow down"}`, StatusUnavailable},
		{"bad request", http.StatusUnprocessableEntity, `{"messages": ["bad coordinates"]}`, StatusUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			out := NewPowerClient(testConfig(srv.URL)).Precipitation(context.Background(), "1", "2", time.Now())
			assert.Equal(t, tt.want, out.Status)
			assert.Error(t, out.Reason)
		})
	}
}
