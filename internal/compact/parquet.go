package compact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

var archiveFile = regexp.MustCompile(`^speedtest_(\d+)\.parquet$`)

// nextSequence scans dir for speedtest_NNN.parquet files and returns one
// past the highest sequence found, starting at 1. Existing archives are
// never overwritten; every compaction run mints a fresh number.
func nextSequence(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 1, nil
		}
		return 0, err
	}
	max := 0
	for _, e := range entries {
		m := archiveFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// schemaOf builds a parquet schema from the table's union columns. Every
// field is optional so rows missing a column store null. parquet-go lays
// group fields out in name order; the union's first-seen order matters only
// for the in-memory merge, and verification checks membership, not order.
func schemaOf(tbl *table, kinds map[string]kind) *parquet.Schema {
	group := parquet.Group{}
	for _, name := range tbl.columns {
		var node parquet.Node
		switch kinds[name] {
		case kindBool:
			node = parquet.Leaf(parquet.BooleanType)
		case kindInt:
			node = parquet.Int(64)
		case kindFloat:
			node = parquet.Leaf(parquet.DoubleType)
		default:
			node = parquet.String()
		}
		group[name] = parquet.Optional(node)
	}
	return parquet.NewSchema("speedtest", group)
}

func writeArchive(path string, tbl *table) error {
	kinds, rows := tbl.typed()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := parquet.NewGenericWriter[map[string]any](f, schemaOf(tbl, kinds))
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// verifyArchive re-reads a written archive and checks the row count against
// the merged sources and the schema against the expected column union.
func verifyArchive(path string, rows int, columns []string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: opening archive %s: %v", ErrCompaction, path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: archive %s: %v", ErrCompaction, path, err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return fmt.Errorf("%w: reading archive %s: %v", ErrCompaction, path, err)
	}
	if pf.NumRows() != int64(rows) {
		return fmt.Errorf("%w: archive %s has %d rows, want %d", ErrVerification, path, pf.NumRows(), rows)
	}
	have := make(map[string]bool)
	for _, field := range pf.Schema().Fields() {
		have[field.Name()] = true
	}
	for _, name := range columns {
		if !have[name] {
			return fmt.Errorf("%w: archive %s is missing column %s", ErrVerification, path, name)
		}
	}
	return nil
}
