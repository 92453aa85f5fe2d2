package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"farmersaid/internal/errorutil"
	"farmersaid/internal/logger"
)

const (
	// fallbackReach is how far the re-stamped window extends on each side of now
	fallbackReach = 24 * time.Hour

	updatedAtLayout = "2006-01-02T15:04:05.000Z"
)

// FallbackProvider serves the backup pollen dataset when both live pollen
// endpoints fail, re-stamped so it appears current
type FallbackProvider struct {
	path  string
	clock clockwork.Clock
}

// NewFallbackProvider creates a provider reading the CSV at path
func NewFallbackProvider(path string, clock clockwork.Clock) *FallbackProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FallbackProvider{path: path, clock: clock}
}

// Path returns the backup file location
func (f *FallbackProvider) Path() string {
	return f.path
}

// Load reads the backup dataset and rewrites its time and updatedAt columns
func (f *FallbackProvider) Load() (PollenTable, error) {
	complete := logger.LogOperationStart("pollen_fallback_read", map[string]any{
		"file_path": f.path,
	})

	file, err := os.Open(f.path)
	if err != nil {
		fileErr := errorutil.LogFileError(logger.Get().Logger, errorutil.NewFileError("open", f.path, err))
		complete(fileErr)
		return PollenTable{}, fileErr
	}
	defer file.Close()

	table, err := ReadPollenCSV(file)
	if err != nil {
		err = errorutil.LogAndWrap(logger.Get().Logger, "parse backup pollen", err, errorutil.FileContext(f.Path())...)
		complete(err)
		return PollenTable{}, err
	}

	now := f.clock.Now()
	fields := map[string]any{
		"file_path": f.Path(),
		"rows":      table.Len(),
	}
	if meta, err := ReadBackupMeta(f.path); err == nil {
		fields["place"] = meta.Place
		fields["refreshed_on"] = meta.RefreshedOn
		fields["age"] = meta.Age(now).Round(time.Minute).String()
	} else {
		errorutil.LogWarning(logger.Get().Logger, "read backup metadata", err, errorutil.FileContext(BackupMetaPath(f.path))...)
	}
	logger.LogWithFields(logger.InfoLevel, "Serving backup pollen data", fields)

	complete(nil)
	return Retimestamp(table, now), nil
}

// FallbackWindow returns hourly timestamps from one day before now to one
// day after, with now floored to the hour: 49 stamps spanning 48 hours.
func FallbackWindow(now time.Time) []time.Time {
	start := now.UTC().Truncate(time.Hour).Add(-fallbackReach)
	n := int(2*fallbackReach/time.Hour) + 1

	window := make([]time.Time, n)
	for i := range window {
		window[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return window
}

// Retimestamp assigns the fallback window to the rows in order. A shorter
// table uses only the first stamps; a longer one continues hourly past the
// window's end.
func Retimestamp(table PollenTable, now time.Time) PollenTable {
	window := FallbackWindow(now)

	out := PollenTable{Columns: append([]string{}, table.Columns...), Rows: make([]PollenRow, len(table.Rows))}
	seen := make(map[string]bool, len(out.Columns))
	for _, c := range out.Columns {
		seen[c] = true
	}
	out.addColumn(PollenTimeColumn, seen)
	out.addColumn(PollenUpdatedAtColumn, seen)

	last := window[len(window)-1]
	for i, row := range table.Rows {
		ts := last.Add(time.Duration(i-len(window)+1) * time.Hour)
		if i < len(window) {
			ts = window[i]
		}

		copied := make(PollenRow, len(row)+2)
		for k, v := range row {
			copied[k] = v
		}
		copied[PollenTimeColumn] = float64(ts.Unix())
		copied[PollenUpdatedAtColumn] = ts.Format(updatedAtLayout)
		out.Rows[i] = copied
	}
	return out
}

// ReadPollenCSV parses a header row followed by data rows. Numeric cells
// become float64 and empty cells become nil.
func ReadPollenCSV(r io.Reader) (PollenTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return PollenTable{}, err
	}
	if len(records) == 0 {
		return PollenTable{}, fmt.Errorf("backup file has no header row")
	}

	table := PollenTable{Columns: records[0], Rows: make([]PollenRow, 0, len(records)-1)}
	for _, rec := range records[1:] {
		row := make(PollenRow, len(table.Columns))
		for i, col := range table.Columns {
			if i < len(rec) {
				row[col] = parseCell(rec[i])
			} else {
				row[col] = nil
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func parseCell(s string) any {
	if s == "" {
		return nil
	}
	// NaN and Inf stay text; JSON has no encoding for them
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return s
}

// WriteBackup stores table as the backup dataset and records where and when
// it was captured in a sidecar file
func WriteBackup(path string, table PollenTable, place string, now time.Time) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(table.Columns); err != nil {
		return err
	}
	for _, row := range table.Rows {
		cells := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			cells[i] = Cell(row[col])
		}
		if err := w.Write(cells); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}

	if err := errorutil.SafeFileWrite(logger.Get().Logger, path, buf.Bytes(), 0644); err != nil {
		return err
	}

	return WriteBackupMeta(path, BackupMeta{
		RefreshedOn:   now.Format(dateLayout),
		RefreshedAt:   now.Unix(),
		Place:         place,
		Rows:          table.Len(),
		Columns:       table.Columns,
		SchemaVersion: backupSchemaVersion,
	})
}
