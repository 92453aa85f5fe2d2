package pipeline

import (
	"sort"
	"time"

	"farmersaid/api"
)

const dateLayout = "2006-01-02"

// FromCurrent projects a current-conditions response onto a row. The date is
// taken from now since the source reports an instantaneous reading.
func FromCurrent(resp *api.CurrentResponse, now time.Time) WeatherRecord {
	rec := WeatherRecord{Date: now.Format(dateLayout)}
	if resp == nil {
		return rec
	}

	applyLocation(&rec, resp.Location)
	if c := resp.Current; c != nil {
		rec.AvgTemperatureC = cloneFloat(c.TempC)
		rec.AvgHumidityPct = cloneFloat(c.Humidity)
		rec.TotalPrecipitationMM = cloneFloat(c.PrecipMM)
		rec.Condition = conditionText(c.Condition)
	}
	return rec
}

// FromHistory projects a single-day history response onto a row dated with
// the requested date.
func FromHistory(resp *api.ForecastResponse, date string) WeatherRecord {
	rec := WeatherRecord{Date: date}
	if resp == nil {
		return rec
	}

	applyLocation(&rec, resp.Location)
	if days := resp.Days(); len(days) > 0 {
		applyDay(&rec, days[0].Day)
	}
	return rec
}

// FromForecast projects every forecast day onto a row dated by the source
func FromForecast(resp *api.ForecastResponse) WeatherTable {
	days := resp.Days()
	table := make(WeatherTable, 0, len(days))
	for _, d := range days {
		rec := WeatherRecord{}
		if d.Date != nil {
			rec.Date = *d.Date
		}
		applyLocation(&rec, resp.Location)
		applyDay(&rec, d.Day)
		table = append(table, rec)
	}
	return table
}

// Marker returns the row that stands in for a history day with no data
func Marker(date, reason string) WeatherRecord {
	return WeatherRecord{Date: date, Error: reason}
}

// SamplesFromSeries converts the satellite series into samples ordered by
// the source's date key. Keys are normalized to YYYY-MM-DD; a key that does
// not parse is kept as is and will simply not match any row. Null values are
// skipped so those rows keep their source precipitation.
func SamplesFromSeries(series api.PowerSeries) []PrecipitationSample {
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	samples := make([]PrecipitationSample, 0, len(keys))
	for _, k := range keys {
		v := series[k]
		if v == nil {
			continue
		}
		samples = append(samples, PrecipitationSample{
			Date:            NormalizeDate(k),
			PrecipitationMM: *v,
		})
	}
	return samples
}

// NormalizeDate rewrites YYYYMMDD and RFC 3339 dates as YYYY-MM-DD
func NormalizeDate(raw string) string {
	for _, layout := range []string{"20060102", dateLayout, time.RFC3339, "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(dateLayout)
		}
	}
	return raw
}

func applyLocation(rec *WeatherRecord, loc *api.LocationInfo) {
	if loc == nil {
		return
	}
	rec.Location = deref(loc.Name)
	rec.Country = deref(loc.Country)
	rec.LocalTime = deref(loc.LocalTime)
}

func applyDay(rec *WeatherRecord, day *api.DayStats) {
	if day == nil {
		return
	}
	rec.AvgTemperatureC = cloneFloat(day.AvgTempC)
	rec.AvgHumidityPct = cloneFloat(day.AvgHumidity)
	rec.TotalPrecipitationMM = cloneFloat(day.TotalPrecipMM)
	rec.Condition = conditionText(day.Condition)
}

func conditionText(c *api.Condition) string {
	if c == nil {
		return ""
	}
	return deref(c.Text)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
