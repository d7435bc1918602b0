package table

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ValueColumn names the single column used when a result row is a bare
// scalar instead of an object.
const ValueColumn = "value"

// Record is one row of a tabular result. Columns keep the order in which
// they appeared in the JSON object.
type Record struct {
	keys   []string
	values map[string]gjson.Result
}

func NewRecord(keys []string, values map[string]gjson.Result) Record {
	return Record{keys: keys, values: values}
}

func (r Record) Columns() []string {
	return r.keys
}

// Get returns the cell for column. Missing columns read as JSON null.
func (r Record) Get(column string) gjson.Result {
	return r.values[column]
}

// Text renders a cell the way it is shown in a table: null and missing
// values are empty, strings are unquoted and everything else keeps its JSON
// text.
func (r Record) Text(column string) string {
	return CellText(r.Get(column))
}

func CellText(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return v.Str
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	default:
		return v.Raw
	}
}

// ParseRecords reads a JSON array of objects into records. A null or empty
// input yields no records.
func ParseRecords(raw []byte) ([]Record, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("results are not valid json")
	}

	parsed := gjson.ParseBytes(raw)
	if parsed.Type == gjson.Null {
		return nil, nil
	}
	if !parsed.IsArray() {
		return nil, fmt.Errorf("results must be a json array, got %s", parsed.Type)
	}

	var records []Record
	parsed.ForEach(func(_, row gjson.Result) bool {
		records = append(records, recordFromJSON(row))
		return true
	})
	return records, nil
}

func recordFromJSON(row gjson.Result) Record {
	if !row.IsObject() {
		return Record{
			keys:   []string{ValueColumn},
			values: map[string]gjson.Result{ValueColumn: row},
		}
	}

	rec := Record{values: make(map[string]gjson.Result)}
	row.ForEach(func(key, value gjson.Result) bool {
		if _, seen := rec.values[key.Str]; !seen {
			rec.keys = append(rec.keys, key.Str)
		}
		rec.values[key.Str] = value
		return true
	})
	return rec
}
