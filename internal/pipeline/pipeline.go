package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/tidwall/gjson"

	"farmersaid/api"
	"farmersaid/config"
	"farmersaid/internal/errorutil"
	"farmersaid/internal/logger"
	"farmersaid/internal/metrics"
)

// WeatherSource supplies current, historical and forecast conditions
type WeatherSource interface {
	Current(ctx context.Context, location string) api.Outcome[*api.CurrentResponse]
	History(ctx context.Context, location string, date time.Time) api.Outcome[*api.ForecastResponse]
	Forecast(ctx context.Context, location string, days int) api.Outcome[*api.ForecastResponse]
}

// PrecipitationSource supplies the satellite precipitation series
type PrecipitationSource interface {
	Precipitation(ctx context.Context, latitude, longitude string, now time.Time) api.Outcome[api.PowerSeries]
}

// PollenSource supplies live pollen readings
type PollenSource interface {
	Latest(ctx context.Context, place string) api.Outcome[gjson.Result]
	Forecast(ctx context.Context, place string) api.Outcome[gjson.Result]
}

// Locator resolves the caller's location
type Locator interface {
	Lookup(ctx context.Context) api.Outcome[api.Place]
}

// Sources bundles the upstreams a Pipeline reads from
type Sources struct {
	Weather       WeatherSource
	Precipitation PrecipitationSource
	Pollen        PollenSource
	Locator       Locator
	Fallback      *FallbackProvider
}

// Options tunes a Pipeline
type Options struct {
	HistoryDays  int
	ForecastDays int
	Place        *api.Place // pinned location; skips the lookup when set
	Clock        clockwork.Clock
	Metrics      *metrics.Metrics
}

// Pipeline fetches every source in turn and reconciles the results. It keeps
// no state between runs.
type Pipeline struct {
	src     Sources
	opts    Options
	clock   clockwork.Clock
	metrics *metrics.Metrics
}

// New creates a Pipeline over the given sources
func New(src Sources, opts Options) *Pipeline {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if src.Fallback == nil {
		src.Fallback = NewFallbackProvider("", clock)
	}
	return &Pipeline{src: src, opts: opts, clock: clock, metrics: opts.Metrics}
}

// FromConfig wires the production adapters described by cfg
func FromConfig(cfg *config.Config, m *metrics.Metrics, clock clockwork.Clock) *Pipeline {
	opts := Options{
		HistoryDays:  cfg.Weather.HistoryDays,
		ForecastDays: cfg.Weather.ForecastDays,
		Clock:        clock,
		Metrics:      m,
	}
	if place, ok := api.PlaceFromConfig(cfg.Location); ok {
		opts.Place = &place
	}

	return New(Sources{
		Weather:       api.NewWeatherClient(cfg),
		Precipitation: api.NewPowerClient(cfg),
		Pollen:        api.NewPollenClient(cfg),
		Locator:       api.NewGeoClient(cfg),
		Fallback:      NewFallbackProvider(cfg.Pollen.BackupFile, clock),
	}, opts)
}

// Now returns the pipeline clock's current time
func (p *Pipeline) Now() time.Time {
	return p.clock.Now()
}

// ResolvePlace returns the pinned place or looks it up. A failed lookup
// yields UnknownPlace.
func (p *Pipeline) ResolvePlace(ctx context.Context) api.Place {
	if p.opts.Place != nil {
		return *p.opts.Place
	}

	start := time.Now()
	out := p.src.Locator.Lookup(ctx)
	p.observe("ipinfo", start, out.Status)

	if place, ok := out.Get(); ok {
		return place
	}
	degraded("ipinfo", "lookup", out.Err())
	return api.UnknownPlace
}

// Weather builds the merged weather table for place. Upstream failures only
// reduce the rows; they never fail the run.
func (p *Pipeline) Weather(ctx context.Context, place api.Place) MergeResult {
	complete := logger.LogOperationStart("weather_pipeline", map[string]any{
		"location":      place.City,
		"history_days":  p.opts.HistoryDays,
		"forecast_days": p.opts.ForecastDays,
	})
	now := p.clock.Now()

	current := p.currentRows(ctx, place.City, now)
	history := p.historyRows(ctx, place.City, now)
	forecast := p.forecastRows(ctx, place.City)
	samples := p.satelliteSamples(ctx, place, now)

	result := Merge(current, history, forecast, samples)
	if p.metrics != nil {
		p.metrics.MergedRows.Set(float64(len(result.Table)))
		p.metrics.SatelliteOverrides.Add(float64(result.Overrides))
	}

	logger.LogWithFields(logger.InfoLevel, "Weather table merged", map[string]any{
		"rows":      len(result.Table),
		"current":   len(current),
		"history":   len(history),
		"forecast":  len(forecast),
		"satellite": result.Satellite,
		"overrides": result.Overrides,
	})
	complete(nil)
	return result
}

func (p *Pipeline) currentRows(ctx context.Context, location string, now time.Time) WeatherTable {
	start := time.Now()
	out := p.src.Weather.Current(ctx, location)
	p.observe("weatherapi_current", start, out.Status)

	resp, ok := out.Get()
	if !ok {
		degraded("weatherapi", "current", out.Err(), errorutil.LocationContext(location, "", "")...)
		return WeatherTable{}
	}
	return WeatherTable{FromCurrent(resp, now)}
}

// historyRows issues one request per day, today first. A day without data
// becomes a marker row.
func (p *Pipeline) historyRows(ctx context.Context, location string, now time.Time) WeatherTable {
	rows := make(WeatherTable, 0, p.opts.HistoryDays)
	for i := 0; i < p.opts.HistoryDays; i++ {
		day := now.AddDate(0, 0, -i)
		date := day.Format(dateLayout)

		start := time.Now()
		out := p.src.Weather.History(ctx, location, day)
		p.observe("weatherapi_history", start, out.Status)

		switch out.Status {
		case api.StatusOK:
			rows = append(rows, FromHistory(out.Data, date))
		case api.StatusEmpty:
			degraded("weatherapi", "history "+date, out.Err(), errorutil.LocationContext(location, "", "")...)
			rows = append(rows, Marker(date, ErrNoDataForDay))
		default:
			degraded("weatherapi", "history "+date, out.Err(), errorutil.LocationContext(location, "", "")...)
			rows = append(rows, Marker(date, ErrFetchingData))
		}
	}
	return rows
}

func (p *Pipeline) forecastRows(ctx context.Context, location string) WeatherTable {
	start := time.Now()
	out := p.src.Weather.Forecast(ctx, location, p.opts.ForecastDays)
	p.observe("weatherapi_forecast", start, out.Status)

	resp, ok := out.Get()
	if !ok {
		degraded("weatherapi", "forecast", out.Err(), errorutil.LocationContext(location, "", "")...)
		return WeatherTable{}
	}
	return FromForecast(resp)
}

// satelliteSamples returns nil when the satellite contributed nothing, which
// tells Merge to skip the override
func (p *Pipeline) satelliteSamples(ctx context.Context, place api.Place, now time.Time) []PrecipitationSample {
	start := time.Now()
	out := p.src.Precipitation.Precipitation(ctx, place.Latitude, place.Longitude, now)
	p.observe("power", start, out.Status)

	series, ok := out.Get()
	if !ok {
		degraded("power", "precipitation", out.Err(), errorutil.LocationContext("", place.Latitude, place.Longitude)...)
		return nil
	}
	return SamplesFromSeries(series)
}

// Pollen origins reported in PollenResult
const (
	PollenLive   = "live"
	PollenBackup = "backup"
	PollenNone   = "none"
)

// PollenResult is the stacked pollen table and where it came from
type PollenResult struct {
	Table  PollenTable `json:"table"`
	Origin string      `json:"origin"`
}

// Fallback reports whether the backup dataset was served
func (r PollenResult) Fallback() bool {
	return r.Origin == PollenBackup
}

// Pollen fetches latest and forecast readings and stacks them. The backup
// dataset is served only when both endpoints are unavailable.
func (p *Pipeline) Pollen(ctx context.Context, place string) PollenResult {
	complete := logger.LogOperationStart("pollen_pipeline", map[string]any{"place": place})

	start := time.Now()
	latest := p.src.Pollen.Latest(ctx, place)
	p.observe("ambee_latest", start, latest.Status)

	start = time.Now()
	forecast := p.src.Pollen.Forecast(ctx, place)
	p.observe("ambee_forecast", start, forecast.Status)

	var tables []PollenTable
	if data, ok := latest.Get(); ok {
		tables = append(tables, FlattenPollen(data))
	} else {
		degraded("ambee", "latest", latest.Err(), errorutil.LocationContext(place, "", "")...)
	}
	if data, ok := forecast.Get(); ok {
		tables = append(tables, FlattenPollen(data))
	} else {
		degraded("ambee", "forecast", forecast.Err(), errorutil.LocationContext(place, "", "")...)
	}

	if len(tables) > 0 {
		complete(nil)
		return PollenResult{Table: StackPollen(tables...), Origin: PollenLive}
	}

	if latest.Status != api.StatusUnavailable || forecast.Status != api.StatusUnavailable {
		complete(nil)
		return PollenResult{Table: StackPollen(), Origin: PollenNone}
	}

	table, err := p.src.Fallback.Load()
	if err != nil {
		complete(err)
		return PollenResult{Table: StackPollen(), Origin: PollenNone}
	}
	if p.metrics != nil {
		p.metrics.PollenFallback.Inc()
	}
	complete(nil)
	return PollenResult{Table: table, Origin: PollenBackup}
}

// Snapshot is everything one dashboard render needs
type Snapshot struct {
	ID          string       `json:"id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Today       string       `json:"today"`
	Place       api.Place    `json:"place"`
	Weather     MergeResult  `json:"weather"`
	Pollen      PollenResult `json:"pollen"`
}

// Run resolves the place, then fetches pollen and weather, strictly in sequence
func (p *Pipeline) Run(ctx context.Context) Snapshot {
	now := p.clock.Now()
	place := p.ResolvePlace(ctx)

	snap := Snapshot{
		ID:          uuid.NewString(),
		GeneratedAt: now,
		Today:       now.Format(dateLayout),
		Place:       place,
	}
	snap.Pollen = p.Pollen(ctx, place.Query())
	snap.Weather = p.Weather(ctx, place)
	return snap
}

// Tables splits the merged weather table into rows up to today and rows after
func (s Snapshot) Tables() (history, forecast WeatherTable) {
	return s.Weather.Table.Split(s.Today)
}

// Summary returns the headline metrics over rows up to today
func (s Snapshot) Summary() Summary {
	history, _ := s.Tables()
	return Summarize(history)
}

// Correlation returns the pollen and weather correlation matrix
func (s Snapshot) Correlation() CorrelationMatrix {
	return Correlate(s.Pollen.Table, s.Weather.Table)
}

// degraded records that a source contributed nothing and the run continued
func degraded(source, operation string, err error, attrs ...slog.Attr) {
	if err == nil {
		err = errors.New("no data")
	}
	attrs = append(errorutil.SourceContext(source, operation), attrs...)
	errorutil.LogWarning(logger.Get().Logger, source+" "+operation, err, attrs...)
}

func (p *Pipeline) observe(source string, start time.Time, status api.Status) {
	if p.metrics == nil {
		return
	}
	p.metrics.SourceRequests.WithLabelValues(source, status.String()).Inc()
	p.metrics.SourceDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}
