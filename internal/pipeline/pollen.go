package pipeline

import (
	"math"
	"strconv"

	"github.com/tidwall/gjson"
)

// Pollen columns the rest of the system relies on
const (
	PollenTimeColumn      = "time"
	PollenUpdatedAtColumn = "updatedAt"
	WeedPollenColumn      = "Count.weed_pollen"
)

// PollenRow maps column names to cell values: float64, string, bool or nil
type PollenRow map[string]any

// PollenTable is a flattened set of pollen readings. Columns lists every key
// present in any row, in first-seen order.
type PollenTable struct {
	Columns []string    `json:"columns"`
	Rows    []PollenRow `json:"rows"`
}

// Len returns the number of rows
func (t PollenTable) Len() int {
	return len(t.Rows)
}

// addColumn appends name unless it is already present
func (t *PollenTable) addColumn(name string, seen map[string]bool) {
	if !seen[name] {
		seen[name] = true
		t.Columns = append(t.Columns, name)
	}
}

// FlattenPollen turns the pollen data field into a table. An array yields
// one row per object element and a single object yields one row. Nested
// objects become dotted column names; arrays inside a row are kept as their
// raw JSON text.
func FlattenPollen(data gjson.Result) PollenTable {
	table := PollenTable{Columns: []string{}, Rows: []PollenRow{}}
	seen := map[string]bool{}

	var elements []gjson.Result
	switch {
	case data.IsArray():
		elements = data.Array()
	case data.IsObject():
		elements = []gjson.Result{data}
	}

	for _, el := range elements {
		if !el.IsObject() {
			continue
		}
		row := PollenRow{}
		flattenObject("", el, row, &table, seen)
		table.Rows = append(table.Rows, row)
	}
	return table
}

func flattenObject(prefix string, obj gjson.Result, row PollenRow, table *PollenTable, seen map[string]bool) {
	obj.ForEach(func(key, value gjson.Result) bool {
		name := prefix + key.String()
		switch {
		case value.IsObject():
			flattenObject(name+".", value, row, table, seen)
		case value.IsArray():
			row[name] = value.Raw
			table.addColumn(name, seen)
		default:
			row[name] = value.Value()
			table.addColumn(name, seen)
		}
		return true
	})
}

// StackPollen appends tables one after another. No rows are joined.
func StackPollen(tables ...PollenTable) PollenTable {
	out := PollenTable{Columns: []string{}, Rows: []PollenRow{}}
	seen := map[string]bool{}
	for _, t := range tables {
		for _, c := range t.Columns {
			out.addColumn(c, seen)
		}
		out.Rows = append(out.Rows, t.Rows...)
	}
	return out
}

// Column returns a numeric view of a column. Cells that are missing or not
// numeric are nil.
func (t PollenTable) Column(name string) []*float64 {
	out := make([]*float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = numeric(row[name])
	}
	return out
}

func numeric(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return float(x)
	case int64:
		return float(float64(x))
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return float(f)
		}
	}
	return nil
}

// Cell renders a value for CSV output and text tables
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
