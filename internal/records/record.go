package records

import (
	"fmt"
	"strconv"
	"time"
)

// TimestampColumn is the column every measurement carries; its value derives
// the calendar-day partition a record belongs to.
const TimestampColumn = "timestamp"

// Record is one flat measurement result: an ordered mapping from column name
// to a scalar (int64, float64, bool, string or nil). There is no fixed
// schema; whatever the measurement returns becomes the record's columns.
// Insertion order is preserved so structurally identical records written by
// one deployment produce identically laid out files.
type Record struct {
	columns []string
	values  map[string]any
}

func New() *Record {
	return &Record{values: make(map[string]any)}
}

func (r *Record) Set(column string, v any) {
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = v
}

func (r *Record) Get(column string) (any, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Columns returns column names in insertion order.
func (r *Record) Columns() []string {
	return r.columns
}

func (r *Record) Len() int {
	return len(r.columns)
}

// Timestamp parses the record's timestamp column as ISO-8601.
func (r *Record) Timestamp() (time.Time, error) {
	v, ok := r.values[TimestampColumn]
	if !ok {
		return time.Time{}, fmt.Errorf("record has no %s column", TimestampColumn)
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("record %s column is %T, want string", TimestampColumn, v)
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing record timestamp %q: %w", s, err)
	}
	return ts.UTC(), nil
}

// Format renders a scalar as a CSV cell. Nil becomes the empty cell.
func Format(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	case bool:
		return strconv.FormatBool(e)
	case int64:
		return strconv.FormatInt(e, 10)
	case float64:
		return strconv.FormatFloat(e, 'f', -1, 64)
	default:
		return fmt.Sprint(e)
	}
}
