package pipeline

// Precipitation clamp bounds. The merged column is forced into this band
// regardless of its unit.
const (
	PrecipitationFloor   = 0.01
	PrecipitationCeiling = 0.99
)

// MergeResult is the reconciled weather table
type MergeResult struct {
	Table     WeatherTable `json:"rows"`
	Overrides int          `json:"satellite_overrides"` // rows whose precipitation came from the satellite
	Satellite bool         `json:"satellite"`           // false when the satellite join was skipped
}

// Concat joins tables in argument order without removing repeated dates
func Concat(parts ...WeatherTable) WeatherTable {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make(WeatherTable, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Merge concatenates current, history and forecast rows, overrides
// precipitation with satellite values by exact date, then clamps the column
// once. A nil samples slice skips the override.
func Merge(current, history, forecast WeatherTable, samples []PrecipitationSample) MergeResult {
	table := Concat(current, history, forecast)
	result := MergeResult{Table: table}

	if samples != nil {
		result.Satellite = true
		result.Overrides = overridePrecipitation(table, samples)
	}
	ClampPrecipitation(table)
	return result
}

// overridePrecipitation replaces precipitation on every row whose date has
// a satellite sample. The first sample for a date wins.
func overridePrecipitation(table WeatherTable, samples []PrecipitationSample) int {
	byDate := make(map[string]float64, len(samples))
	for _, s := range samples {
		if _, seen := byDate[s.Date]; !seen {
			byDate[s.Date] = s.PrecipitationMM
		}
	}

	n := 0
	for i := range table {
		if v, ok := byDate[table[i].Date]; ok {
			table[i].TotalPrecipitationMM = float(v)
			n++
		}
	}
	return n
}

// ClampPrecipitation forces every non-null precipitation value into
// [PrecipitationFloor, PrecipitationCeiling]. Nulls stay null.
func ClampPrecipitation(table WeatherTable) {
	for i := range table {
		if v := table[i].TotalPrecipitationMM; v != nil {
			table[i].TotalPrecipitationMM = float(clamp(*v))
		}
	}
}

func clamp(v float64) float64 {
	switch {
	case v < PrecipitationFloor:
		return PrecipitationFloor
	case v > PrecipitationCeiling:
		return PrecipitationCeiling
	default:
		return v
	}
}
