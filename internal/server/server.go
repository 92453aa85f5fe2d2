package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"farmersaid/api"
	"farmersaid/internal/logger"
	"farmersaid/internal/metrics"
	"farmersaid/internal/pipeline"
	"farmersaid/internal/report"
)

// Dashboard is the data side of the HTTP surface
type Dashboard interface {
	Now() time.Time
	ResolvePlace(ctx context.Context) api.Place
	Weather(ctx context.Context, place api.Place) pipeline.MergeResult
	Pollen(ctx context.Context, place string) pipeline.PollenResult
	Run(ctx context.Context) pipeline.Snapshot
}

// Narrator writes reports from weather tables
type Narrator interface {
	Report(ctx context.Context, history, forecast pipeline.WeatherTable) (*report.Report, error)
	Ask(ctx context.Context, question string, place api.Place, history, forecast pipeline.WeatherTable) (*report.Report, error)
}

// Server exposes the dashboard data, reports, health and metrics over HTTP.
// Every request recomputes its data from the upstream sources.
type Server struct {
	httpServer *http.Server
	dashboard  Dashboard
	narrator   Narrator
}

// New creates the HTTP server. narrator may be nil when no language model
// is configured; the report routes then answer 503.
func New(addr string, dashboard Dashboard, narrator Narrator, m *metrics.Metrics) *Server {
	router := mux.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     router,
			ReadTimeout: 10 * time.Second,
			// reports wait on the language model
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		dashboard: dashboard,
		narrator:  narrator,
	}

	router.Use(logRequests)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	router.HandleFunc("/api/weather", s.handleWeather).Methods(http.MethodGet)
	router.HandleFunc("/api/pollen", s.handlePollen).Methods(http.MethodGet)
	router.HandleFunc("/api/summary", s.handleSummary).Methods(http.MethodGet)
	router.HandleFunc("/api/correlation", s.handleCorrelation).Methods(http.MethodGet)
	router.HandleFunc("/api/report", s.handleReport).Methods(http.MethodPost)
	router.HandleFunc("/api/ask", s.handleAsk).Methods(http.MethodPost)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	logger.Info("HTTP server starting on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the router
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type weatherResponse struct {
	Place              api.Place             `json:"place"`
	Today              string                `json:"today"`
	Columns            []string              `json:"columns"`
	Rows               pipeline.WeatherTable `json:"rows"`
	Satellite          bool                  `json:"satellite"`
	SatelliteOverrides int                   `json:"satellite_overrides"`
}

type pollenResponse struct {
	Place    string               `json:"place"`
	Origin   string               `json:"origin"`
	Fallback bool                 `json:"fallback"`
	Table    pipeline.PollenTable `json:"table"`
}

type summaryResponse struct {
	Place api.Place `json:"place"`
	Today string    `json:"today"`
	pipeline.Summary
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	place := s.dashboard.ResolvePlace(r.Context())
	result := s.dashboard.Weather(r.Context(), place)

	writeJSON(w, http.StatusOK, weatherResponse{
		Place:              place,
		Today:              s.today(),
		Columns:            pipeline.WeatherColumns,
		Rows:               result.Table,
		Satellite:          result.Satellite,
		SatelliteOverrides: result.Overrides,
	})
}

func (s *Server) handlePollen(w http.ResponseWriter, r *http.Request) {
	place := s.dashboard.ResolvePlace(r.Context()).Query()
	result := s.dashboard.Pollen(r.Context(), place)

	writeJSON(w, http.StatusOK, pollenResponse{
		Place:    place,
		Origin:   result.Origin,
		Fallback: result.Fallback(),
		Table:    result.Table,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	place := s.dashboard.ResolvePlace(r.Context())
	today := s.today()
	history, _ := s.dashboard.Weather(r.Context(), place).Table.Split(today)

	writeJSON(w, http.StatusOK, summaryResponse{
		Place:   place,
		Today:   today,
		Summary: pipeline.Summarize(history),
	})
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	snap := s.dashboard.Run(r.Context())
	writeJSON(w, http.StatusOK, snap.Correlation())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.narrator == nil {
		writeError(w, http.StatusServiceUnavailable, errNoNarrator)
		return
	}

	snap := s.dashboard.Run(r.Context())
	history, forecast := snap.Tables()

	rep, err := s.narrator.Report(r.Context(), history, forecast)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.narrator == nil {
		writeError(w, http.StatusServiceUnavailable, errNoNarrator)
		return
	}

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap := s.dashboard.Run(r.Context())
	history, forecast := snap.Tables()

	rep, err := s.narrator.Ask(r.Context(), req.Question, snap.Place, history, forecast)
	switch {
	case errors.Is(err, report.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

func (s *Server) today() string {
	return s.dashboard.Now().Format("2006-01-02")
}

var errNoNarrator = errors.New("reports are disabled: no language model API key configured")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// logRequests records method, path, status and duration of every request
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.LogWithFields(logger.DebugLevel, "HTTP request", map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
