package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmersaid/api"
)

func TestClampPrecipitation(t *testing.T) {
	tests := []struct {
		name string
		in   *float64
		want *float64
	}{
		{"below floor", float(-5), float(0.01)},
		{"zero", float(0), float(0.01)},
		{"above ceiling", float(50), float(0.99)},
		{"inside band", float(0.5), float(0.5)},
		{"at floor", float(0.01), float(0.01)},
		{"at ceiling", float(0.99), float(0.99)},
		{"missing", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := WeatherTable{{Date: "2024-09-03", TotalPrecipitationMM: tt.in}}
			ClampPrecipitation(table)

			if tt.want == nil {
				assert.Nil(t, table[0].TotalPrecipitationMM)
				return
			}
			require.NotNil(t, table[0].TotalPrecipitationMM)
			assert.Equal(t, *tt.want, *table[0].TotalPrecipitationMM)
		})
	}
}

func TestMergeOverridesByExactDate(t *testing.T) {
	history := WeatherTable{
		{Date: "2024-09-03", TotalPrecipitationMM: float(2.0)},
		{Date: "2024-09-02", TotalPrecipitationMM: float(0.4)},
	}
	samples := []PrecipitationSample{
		{Date: "2024-09-03", PrecipitationMM: 0.3},
		{Date: "2024-09-01", PrecipitationMM: 0.7},
	}

	result := Merge(nil, history, nil, samples)

	require.Len(t, result.Table, 2)
	assert.True(t, result.Satellite)
	assert.Equal(t, 1, result.Overrides)
	assert.Equal(t, 0.3, *result.Table[0].TotalPrecipitationMM)
	assert.Equal(t, 0.4, *result.Table[1].TotalPrecipitationMM)
}

func TestMergeNullSatelliteKeepsSourceValue(t *testing.T) {
	history := WeatherTable{
		{Date: "2024-09-03", TotalPrecipitationMM: float(0.6)},
		{Date: "2024-09-02", TotalPrecipitationMM: float(2.0)},
	}
	series := api.PowerSeries{"20240903": nil, "20240902": float(0.4)}

	result := Merge(nil, history, nil, SamplesFromSeries(series))

	assert.True(t, result.Satellite)
	assert.Equal(t, 1, result.Overrides)
	assert.Equal(t, 0.6, *result.Table[0].TotalPrecipitationMM)
	assert.Equal(t, 0.4, *result.Table[1].TotalPrecipitationMM)
}

func TestMergeOverrideAppliesToRepeatedDates(t *testing.T) {
	current := WeatherTable{{Date: "2024-09-03", TotalPrecipitationMM: float(0)}}
	history := WeatherTable{{Date: "2024-09-03", TotalPrecipitationMM: float(1.2)}}
	forecast := WeatherTable{{Date: "2024-09-03", TotalPrecipitationMM: nil}}
	samples := []PrecipitationSample{
		{Date: "2024-09-03", PrecipitationMM: 0.25},
		{Date: "2024-09-03", PrecipitationMM: 0.8},
	}

	result := Merge(current, history, forecast, samples)

	require.Len(t, result.Table, 3, "repeated dates are kept")
	assert.Equal(t, 3, result.Overrides)
	for _, row := range result.Table {
		require.NotNil(t, row.TotalPrecipitationMM)
		assert.Equal(t, 0.25, *row.TotalPrecipitationMM)
	}
}

func TestMergeWithoutSatellite(t *testing.T) {
	history := WeatherTable{
		{Date: "2024-09-03", TotalPrecipitationMM: float(12)},
		{Date: "2024-09-02", TotalPrecipitationMM: nil},
	}

	result := Merge(nil, history, nil, nil)

	assert.False(t, result.Satellite)
	assert.Zero(t, result.Overrides)
	assert.Equal(t, 0.99, *result.Table[0].TotalPrecipitationMM)
	assert.Nil(t, result.Table[1].TotalPrecipitationMM)
}

func TestMergeClampsSatelliteValues(t *testing.T) {
	history := WeatherTable{
		{Date: "2024-09-03", TotalPrecipitationMM: float(0.5)},
		{Date: "2024-09-02", TotalPrecipitationMM: float(0.5)},
	}
	samples := []PrecipitationSample{
		{Date: "2024-09-03", PrecipitationMM: -999},
		{Date: "2024-09-02", PrecipitationMM: 14.2},
	}

	result := Merge(nil, history, nil, samples)

	assert.Equal(t, 0.01, *result.Table[0].TotalPrecipitationMM)
	assert.Equal(t, 0.99, *result.Table[1].TotalPrecipitationMM)
}

func TestConcatKeepsOrder(t *testing.T) {
	a := WeatherTable{{Date: "2024-09-03", Location: "current"}}
	b := WeatherTable{{Date: "2024-09-03", Location: "history"}, {Date: "2024-09-02", Location: "history"}}
	c := WeatherTable{{Date: "2024-09-04", Location: "forecast"}}

	got := Concat(a, b, c)

	require.Len(t, got, 4)
	assert.Equal(t, []string{"current", "history", "history", "forecast"},
		[]string{got[0].Location, got[1].Location, got[2].Location, got[3].Location})
	assert.Empty(t, Concat())
}

func TestSplit(t *testing.T) {
	table := WeatherTable{
		{Date: "2024-09-03"},
		{Date: "2024-09-01"},
		{Date: "2024-09-04"},
		{Date: "2024-09-03"},
	}

	history, forecast := table.Split("2024-09-03")

	assert.Len(t, history, 3)
	require.Len(t, forecast, 1)
	assert.Equal(t, "2024-09-04", forecast[0].Date)

	h, f := WeatherTable{}.Split("2024-09-03")
	assert.NotNil(t, h)
	assert.NotNil(t, f)
}

func TestValuesFollowColumnOrder(t *testing.T) {
	rec := WeatherRecord{
		Date:                 "2024-09-03",
		Location:             "Manama",
		Country:              "Bahrain",
		LocalTime:            "2024-09-03 14:05",
		AvgTemperatureC:      float(34.2),
		AvgHumidityPct:       nil,
		TotalPrecipitationMM: float(0.01),
		Condition:            "Sunny",
	}

	got := rec.Values("NaN")

	require.Len(t, got, len(WeatherColumns))
	assert.Equal(t, []string{"2024-09-03", "Manama", "Bahrain", "2024-09-03 14:05", "34.2", "NaN", "0.01", "Sunny"}, got)
}

func TestWeatherTableColumn(t *testing.T) {
	table := WeatherTable{
		{AvgTemperatureC: float(30)},
		{AvgTemperatureC: nil},
	}

	col := table.Column("Avg Temperature (°C)")
	require.Len(t, col, 2)
	assert.Equal(t, 30.0, *col[0])
	assert.Nil(t, col[1])
	assert.Nil(t, table.Column("Condition"))
}
