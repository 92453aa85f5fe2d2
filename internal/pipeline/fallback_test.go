package pipeline

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmersaid/internal/logger"
)

const backupCSV = `time,lat,lng,Count.grass_pollen,Count.tree_pollen,Count.weed_pollen,Risk.weed_pollen,updatedAt
1693742400,26.2235,50.5876,10,3,25,Moderate,2023-09-03T12:00:00.000Z
1693746000,26.2235,50.5876,11,,27,Moderate,2023-09-03T13:00:00.000Z
1693749600,26.2235,50.5876,9,2,24,Low,2023-09-03T14:00:00.000Z
`

func TestFallbackWindow(t *testing.T) {
	now := time.Date(2024, 9, 3, 14, 35, 12, 0, time.UTC)

	window := FallbackWindow(now)

	require.Len(t, window, 49)
	assert.Equal(t, time.Date(2024, 9, 2, 14, 0, 0, 0, time.UTC), window[0])
	assert.Equal(t, time.Date(2024, 9, 4, 14, 0, 0, 0, time.UTC), window[48])
	assert.Equal(t, 48*time.Hour, window[48].Sub(window[0]))
	for i := 1; i < len(window); i++ {
		assert.Equal(t, time.Hour, window[i].Sub(window[i-1]))
	}
}

func TestFallbackWindowUsesUTC(t *testing.T) {
	bahrain := time.FixedZone("AST", 3*60*60)
	now := time.Date(2024, 9, 3, 17, 35, 0, 0, bahrain)

	window := FallbackWindow(now)

	assert.Equal(t, time.Date(2024, 9, 2, 14, 0, 0, 0, time.UTC), window[0])
	assert.Equal(t, time.UTC, window[0].Location())
}

func TestReadPollenCSV(t *testing.T) {
	table, err := ReadPollenCSV(strings.NewReader(backupCSV))
	require.NoError(t, err)

	require.Equal(t, 3, table.Len())
	assert.Equal(t, "time", table.Columns[0])
	assert.Equal(t, 25.0, table.Rows[0][WeedPollenColumn])
	assert.Equal(t, "Moderate", table.Rows[0]["Risk.weed_pollen"])
	assert.Nil(t, table.Rows[1]["Count.tree_pollen"])
}

func TestReadPollenCSVShortRow(t *testing.T) {
	table, err := ReadPollenCSV(strings.NewReader("a,b,c\n1\n"))
	require.NoError(t, err)

	require.Equal(t, 1, table.Len())
	assert.Equal(t, 1.0, table.Rows[0]["a"])
	assert.Nil(t, table.Rows[0]["c"])
}

func TestReadPollenCSVNonFiniteCellsStayText(t *testing.T) {
	table, err := ReadPollenCSV(strings.NewReader("Count.weed_pollen,Count.grass_pollen,Count.tree_pollen\nNaN,Inf,-Infinity\n12,,3\n"))
	require.NoError(t, err)

	assert.Equal(t, "NaN", table.Rows[0][WeedPollenColumn])
	assert.Equal(t, "Inf", table.Rows[0]["Count.grass_pollen"])
	assert.Equal(t, "-Infinity", table.Rows[0]["Count.tree_pollen"])
	assert.Equal(t, 12.0, table.Rows[1][WeedPollenColumn])
	assert.Nil(t, table.Column(WeedPollenColumn)[0], "non-finite text is not numeric")

	_, err = json.Marshal(table)
	assert.NoError(t, err, "the table must stay encodable for the HTTP API")
}

func TestReadPollenCSVEmpty(t *testing.T) {
	_, err := ReadPollenCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestRetimestamp(t *testing.T) {
	table, err := ReadPollenCSV(strings.NewReader(backupCSV))
	require.NoError(t, err)
	now := time.Date(2024, 9, 3, 14, 35, 0, 0, time.UTC)

	out := Retimestamp(table, now)

	require.Equal(t, 3, out.Len())
	start := time.Date(2024, 9, 2, 14, 0, 0, 0, time.UTC)
	for i, row := range out.Rows {
		ts := start.Add(time.Duration(i) * time.Hour)
		assert.Equal(t, float64(ts.Unix()), row[PollenTimeColumn])
		assert.Equal(t, ts.Format("2006-01-02T15:04:05.000Z"), row[PollenUpdatedAtColumn])
	}
	assert.Equal(t, "2024-09-02T14:00:00.000Z", out.Rows[0][PollenUpdatedAtColumn])
	assert.Equal(t, 25.0, out.Rows[0][WeedPollenColumn], "other cells are kept")

	assert.Equal(t, 1693742400.0, table.Rows[0][PollenTimeColumn], "input is not modified")
}

func TestRetimestampLongTableContinuesHourly(t *testing.T) {
	table := PollenTable{Columns: []string{WeedPollenColumn}}
	for i := 0; i < 60; i++ {
		table.Rows = append(table.Rows, PollenRow{WeedPollenColumn: float64(i)})
	}
	now := time.Date(2024, 9, 3, 14, 0, 0, 0, time.UTC)

	out := Retimestamp(table, now)

	require.Equal(t, 60, out.Len())
	assert.Equal(t, []string{WeedPollenColumn, PollenTimeColumn, PollenUpdatedAtColumn}, out.Columns)
	assert.Equal(t, float64(time.Date(2024, 9, 4, 14, 0, 0, 0, time.UTC).Unix()), out.Rows[48][PollenTimeColumn])
	assert.Equal(t, float64(time.Date(2024, 9, 4, 15, 0, 0, 0, time.UTC).Unix()), out.Rows[49][PollenTimeColumn])
	assert.Equal(t, float64(time.Date(2024, 9, 5, 1, 0, 0, 0, time.UTC).Unix()), out.Rows[59][PollenTimeColumn])
}

func TestFallbackProviderLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pollen_backup.csv")
	require.NoError(t, os.WriteFile(path, []byte(backupCSV), 0644))
	clock := clockwork.NewFakeClockAt(time.Date(2024, 9, 3, 14, 35, 0, 0, time.UTC))

	provider := NewFallbackProvider(path, clock)
	table, err := provider.Load()
	require.NoError(t, err)

	assert.Equal(t, path, provider.Path())
	require.Equal(t, 3, table.Len())
	assert.Equal(t, float64(time.Date(2024, 9, 2, 14, 0, 0, 0, time.UTC).Unix()), table.Rows[0][PollenTimeColumn])

	clock.Advance(2 * time.Hour)
	again, err := provider.Load()
	require.NoError(t, err)
	assert.Equal(t, float64(time.Date(2024, 9, 2, 16, 0, 0, 0, time.UTC).Unix()), again.Rows[0][PollenTimeColumn])
}

func TestFallbackProviderLogsBackupAge(t *testing.T) {
	var buf bytes.Buffer
	logger.SetGlobal(logger.NewWithWriter(&buf, "info"))
	path := filepath.Join(t.TempDir(), "pollen_backup.csv")
	refreshed := time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)
	table, err := ReadPollenCSV(strings.NewReader(backupCSV))
	require.NoError(t, err)
	require.NoError(t, WriteBackup(path, table, "Manama,Bahrain", refreshed))

	clock := clockwork.NewFakeClockAt(refreshed.Add(53 * time.Hour))
	_, err = NewFallbackProvider(path, clock).Load()
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Serving backup pollen data")
	assert.Contains(t, out, "age=53h0m0s")
	assert.Contains(t, out, "place=Manama,Bahrain")
	assert.Contains(t, out, "file_path="+path)
}

func TestFallbackProviderMalformedFile(t *testing.T) {
	logger.SetGlobal(logger.NewWithWriter(io.Discard, "error"))
	path := filepath.Join(t.TempDir(), "pollen_backup.csv")
	require.NoError(t, os.WriteFile(path, []byte("time,\"Count\n1,2\n"), 0644))

	_, err := NewFallbackProvider(path, nil).Load()

	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse backup pollen: "), err.Error())
}

func TestFallbackProviderMissingFile(t *testing.T) {
	provider := NewFallbackProvider(filepath.Join(t.TempDir(), "missing.csv"), nil)

	_, err := provider.Load()
	assert.Error(t, err)
}

func TestWriteBackupRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pollen_backup.csv")
	now := time.Date(2024, 9, 3, 14, 35, 0, 0, time.UTC)
	table := PollenTable{
		Columns: []string{PollenTimeColumn, WeedPollenColumn, "Risk.weed_pollen"},
		Rows: []PollenRow{
			{PollenTimeColumn: 1725372000.0, WeedPollenColumn: 31.0, "Risk.weed_pollen": "Moderate"},
			{PollenTimeColumn: 1725375600.0, WeedPollenColumn: nil, "Risk.weed_pollen": "Low"},
		},
	}

	require.NoError(t, WriteBackup(path, table, "Manama,Bahrain", now))

	read, err := os.ReadFile(path)
	require.NoError(t, err)
	back, err := ReadPollenCSV(strings.NewReader(string(read)))
	require.NoError(t, err)
	assert.Equal(t, table.Columns, back.Columns)
	assert.Equal(t, 31.0, back.Rows[0][WeedPollenColumn])
	assert.Nil(t, back.Rows[1][WeedPollenColumn])

	meta, err := ReadBackupMeta(path)
	require.NoError(t, err)
	assert.Equal(t, "2024-09-03", meta.RefreshedOn)
	assert.Equal(t, now.Unix(), meta.RefreshedAt)
	assert.Equal(t, "Manama,Bahrain", meta.Place)
	assert.Equal(t, 2, meta.Rows)
	assert.Equal(t, table.Columns, meta.Columns)
	assert.Equal(t, 3*time.Hour, meta.Age(now.Add(3*time.Hour)))
}

func TestBackupMetaPath(t *testing.T) {
	assert.Equal(t, "data/pollen_backup.meta.toml", BackupMetaPath("data/pollen_backup.csv"))
	assert.Equal(t, "backup.meta.toml", BackupMetaPath("backup"))
}

func TestReadBackupMetaRejectsUnknownSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pollen_backup.csv")
	require.NoError(t, os.WriteFile(BackupMetaPath(path), []byte("schema_version = 7\nplace = \"x\"\n"), 0644))

	_, err := ReadBackupMeta(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema version")
}

func TestReadBackupMetaMissing(t *testing.T) {
	_, err := ReadBackupMeta(filepath.Join(t.TempDir(), "pollen_backup.csv"))
	assert.Error(t, err)
}
