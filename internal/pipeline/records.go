package pipeline

import (
	"strconv"
)

// WeatherColumns is the fixed column set of the merged weather table, in order
var WeatherColumns = []string{
	"Date",
	"Location",
	"Country",
	"Local Time",
	"Avg Temperature (°C)",
	"Avg Humidity (%)",
	"Total Precipitation (mm)",
	"Condition",
}

// Marker texts carried by rows standing in for a failed history day
const (
	ErrFetchingData = "Error fetching data"
	ErrNoDataForDay = "No data for date"
)

// WeatherRecord is one row of the merged weather table. Numeric fields are
// nil when the source did not supply them.
type WeatherRecord struct {
	Date                 string   `json:"date"`
	Location             string   `json:"location"`
	Country              string   `json:"country"`
	LocalTime            string   `json:"local_time"`
	AvgTemperatureC      *float64 `json:"avg_temperature_c"`
	AvgHumidityPct       *float64 `json:"avg_humidity_pct"`
	TotalPrecipitationMM *float64 `json:"total_precipitation_mm"`
	Condition            string   `json:"condition"`

	// Error is set on marker rows only. It is not one of WeatherColumns.
	Error string `json:"error,omitempty"`
}

// Values returns the row's cells in WeatherColumns order. Nulls render as
// null.
func (r WeatherRecord) Values(null string) []string {
	return []string{
		r.Date,
		r.Location,
		r.Country,
		r.LocalTime,
		formatFloat(r.AvgTemperatureC, null),
		formatFloat(r.AvgHumidityPct, null),
		formatFloat(r.TotalPrecipitationMM, null),
		r.Condition,
	}
}

func formatFloat(v *float64, null string) string {
	if v == nil {
		return null
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// WeatherTable is an ordered set of rows. Dates may repeat.
type WeatherTable []WeatherRecord

// Split separates rows dated on or before today from later ones, keeping order
func (t WeatherTable) Split(today string) (history, forecast WeatherTable) {
	history = WeatherTable{}
	forecast = WeatherTable{}
	for _, r := range t {
		if r.Date > today {
			forecast = append(forecast, r)
		} else {
			history = append(history, r)
		}
	}
	return history, forecast
}

// Column returns the named numeric column, or nil for a text column
func (t WeatherTable) Column(name string) []*float64 {
	var pick func(WeatherRecord) *float64
	switch name {
	case "Avg Temperature (°C)":
		pick = func(r WeatherRecord) *float64 { return r.AvgTemperatureC }
	case "Avg Humidity (%)":
		pick = func(r WeatherRecord) *float64 { return r.AvgHumidityPct }
	case "Total Precipitation (mm)":
		pick = func(r WeatherRecord) *float64 { return r.TotalPrecipitationMM }
	default:
		return nil
	}

	out := make([]*float64, len(t))
	for i, r := range t {
		out[i] = pick(r)
	}
	return out
}

// PrecipitationSample is one satellite reading
type PrecipitationSample struct {
	Date            string  `json:"date"`
	PrecipitationMM float64 `json:"precipitation_mm"`
}

func float(v float64) *float64 {
	return &v
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return float(*v)
}
