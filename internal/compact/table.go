package compact

import (
	"encoding/csv"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

var rawFile = regexp.MustCompile(`^speedtest_.+\.csv$`)

// table is the in-memory union of all raw records in one partition. Columns
// keep first-seen order across files; cells are the raw CSV strings, with a
// missing key standing for null.
type table struct {
	columns []string
	seen    map[string]bool
	rows    []map[string]string
}

func newTable() *table {
	return &table{seen: make(map[string]bool)}
}

func (t *table) addColumn(name string) {
	if !t.seen[name] {
		t.seen[name] = true
		t.columns = append(t.columns, name)
	}
}

// addConstant appends a column holding the same value on every row.
func (t *table) addConstant(name, value string) {
	t.addColumn(name)
	for _, row := range t.rows {
		row[name] = value
	}
}

// readPartition loads every raw record file in dir into one table and
// returns the source paths. A missing directory or one with no raw files
// yields an empty source list, not an error.
func readPartition(dir string) (*table, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newTable(), nil, nil
		}
		return nil, nil, err
	}
	tbl := newTable()
	var sources []string
	for _, e := range entries {
		if e.IsDir() || !rawFile.MatchString(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := tbl.readFile(path); err != nil {
			return nil, nil, err
		}
		sources = append(sources, path)
	}
	return tbl, sources, nil
}

// readFile folds one CSV file into the table. Files may carry a strict
// subset of the union columns, a different column order, or short rows;
// missing cells become null.
func (t *table) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		return nil
	}
	header := all[0]
	for _, name := range header {
		t.addColumn(name)
	}
	for _, cells := range all[1:] {
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(cells) && cells[i] != "" {
				row[name] = cells[i]
			}
		}
		t.rows = append(t.rows, row)
	}
	return nil
}

type kind int

const (
	kindString kind = iota
	kindBool
	kindInt
	kindFloat
)

// columnKind infers the narrowest scalar type that fits every non-null cell
// of one column. Columns with no values default to string.
func (t *table) columnKind(name string) kind {
	isBool, isInt, isFloat := true, true, true
	populated := false
	for _, row := range t.rows {
		cell, ok := row[name]
		if !ok {
			continue
		}
		populated = true
		if isBool && cell != "true" && cell != "false" {
			isBool = false
		}
		if isInt {
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat && !isInt {
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				isFloat = false
			}
		}
		if !isBool && !isInt && !isFloat {
			return kindString
		}
	}
	switch {
	case !populated:
		return kindString
	case isBool:
		return kindBool
	case isInt:
		return kindInt
	case isFloat:
		return kindFloat
	default:
		return kindString
	}
}

// typed converts the table's string cells into scalar rows keyed by column,
// omitting null cells, with the per-column kinds alongside.
func (t *table) typed() (map[string]kind, []map[string]any) {
	kinds := make(map[string]kind, len(t.columns))
	for _, name := range t.columns {
		kinds[name] = t.columnKind(name)
	}
	rows := make([]map[string]any, len(t.rows))
	for i, row := range t.rows {
		out := make(map[string]any, len(row))
		for name, cell := range row {
			switch kinds[name] {
			case kindBool:
				out[name] = cell == "true"
			case kindInt:
				n, _ := strconv.ParseInt(cell, 10, 64)
				out[name] = n
			case kindFloat:
				f, _ := strconv.ParseFloat(cell, 64)
				out[name] = f
			default:
				out[name] = cell
			}
		}
		rows[i] = out
	}
	return kinds, rows
}
