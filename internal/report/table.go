package report

import (
	"bytes"
	"strings"
	"text/tabwriter"

	"farmersaid/internal/pipeline"
)

// nullCell is how a missing numeric value appears in a rendered table
const nullCell = "NaN"

// RenderTable formats a weather table as aligned plain text with a header
// row. Marker rows render with empty text cells and NaN numerics.
func RenderTable(t pipeline.WeatherTable) string {
	if len(t) == 0 {
		return "Empty table\nColumns: " + strings.Join(pipeline.WeatherColumns, ", ")
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	writeRow(w, pipeline.WeatherColumns)
	for _, row := range t {
		writeRow(w, row.Values(nullCell))
	}
	w.Flush()

	return strings.TrimRight(buf.String(), "\n")
}

// RenderPollen formats a pollen table the same way. Missing cells are empty.
func RenderPollen(t pipeline.PollenTable) string {
	if t.Len() == 0 {
		return "Empty table\nColumns: " + strings.Join(t.Columns, ", ")
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	writeRow(w, t.Columns)
	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			cells[i] = pipeline.Cell(row[col])
		}
		writeRow(w, cells)
	}
	w.Flush()

	return strings.TrimRight(buf.String(), "\n")
}

func writeRow(w *tabwriter.Writer, cells []string) {
	w.Write([]byte(strings.Join(cells, "\t") + "\n"))
}
