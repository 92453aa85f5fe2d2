package pipeline

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds the headline metrics of a weather table
type Summary struct {
	AvgTemperatureC      *float64 `json:"avg_temperature_c"`
	AvgHumidityPct       *float64 `json:"avg_humidity_pct"`
	TotalPrecipitationMM float64  `json:"total_precipitation_mm"`
	Rows                 int      `json:"rows"`
}

// Summarize computes mean temperature, mean humidity and total
// precipitation, skipping nulls. A mean over no values is nil; a sum over
// no values is zero.
func Summarize(t WeatherTable) Summary {
	return Summary{
		AvgTemperatureC:      mean(present(t.Column("Avg Temperature (°C)"))),
		AvgHumidityPct:       mean(present(t.Column("Avg Humidity (%)"))),
		TotalPrecipitationMM: floats.Sum(present(t.Column("Total Precipitation (mm)"))),
		Rows:                 len(t),
	}
}

// CorrelationColumns are the variables of the correlation matrix, in order
var CorrelationColumns = []string{WeedPollenColumn, "Avg Temperature (°C)", "Avg Humidity (%)"}

// CorrelationMatrix is a symmetric Pearson matrix. A nil cell means the
// pair had fewer than two complete observations or no variance.
type CorrelationMatrix struct {
	Columns []string     `json:"columns"`
	Values  [][]*float64 `json:"values"`
}

// Correlate aligns weed pollen counts with weather rows by position and
// computes pairwise-complete Pearson coefficients. The pollen table sets
// the number of rows; weather rows past its end are ignored.
func Correlate(pollen PollenTable, weather WeatherTable) CorrelationMatrix {
	n := pollen.Len()
	series := [][]*float64{
		pollen.Column(WeedPollenColumn),
		align(weather.Column("Avg Temperature (°C)"), n),
		align(weather.Column("Avg Humidity (%)"), n),
	}

	m := CorrelationMatrix{
		Columns: append([]string{}, CorrelationColumns...),
		Values:  make([][]*float64, len(series)),
	}
	for i := range series {
		m.Values[i] = make([]*float64, len(series))
		for j := range series {
			m.Values[i][j] = pearson(series[i], series[j])
		}
	}
	return m
}

func pearson(a, b []*float64) *float64 {
	var x, y []float64
	for i := range a {
		if a[i] != nil && b[i] != nil {
			x = append(x, *a[i])
			y = append(y, *b[i])
		}
	}
	if len(x) < 2 {
		return nil
	}

	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return nil
	}
	return float(r)
}

// align pads or cuts a column to n cells
func align(col []*float64, n int) []*float64 {
	out := make([]*float64, n)
	copy(out, col)
	return out
}

func present(col []*float64) []float64 {
	out := make([]float64, 0, len(col))
	for _, v := range col {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func mean(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	return float(stat.Mean(xs, nil))
}
