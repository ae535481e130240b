package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/thekhoo/speedsnake/internal/partition"
)

// ErrStorage wraps directory or file failures in the raw record store.
var ErrStorage = errors.New("raw record storage failed")

// Store appends raw records to a date-partitioned CSV tree. One file per
// measurement run, named by the capture time with second precision; a
// same-second collision overwrites, which matches one-file-per-run operation.
type Store struct {
	base string
	log  *slog.Logger
}

func NewStore(base string) *Store {
	return &Store{
		base: base,
		log: slog.Default().With(
			slog.String("component", "records"),
		),
	}
}

// Append writes rec as a single-row CSV file under
// base/year=YYYY/month=MM/day=DD/speedtest_HH-MM-SS.csv, creating the
// partition directory as needed, and returns the file path.
func (s *Store) Append(rec *Record, asOf time.Time) (string, error) {
	dir := partition.KeyOf(asOf).RawPath(s.base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating partition %s: %v", ErrStorage, dir, err)
	}
	path := filepath.Join(dir, Filename(asOf))
	if err := writeCSV(path, rec); err != nil {
		return "", fmt.Errorf("%w: writing %s: %v", ErrStorage, path, err)
	}
	s.log.Info("saved raw record", slog.String("path", path))
	return path, nil
}

// Filename derives the raw record file name from the capture time.
func Filename(asOf time.Time) string {
	return fmt.Sprintf("speedtest_%02d-%02d-%02d.csv", asOf.Hour(), asOf.Minute(), asOf.Second())
}

func writeCSV(path string, rec *Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	cols := rec.Columns()
	row := make([]string, len(cols))
	for i, c := range cols {
		v, _ := rec.Get(c)
		row[i] = Format(v)
	}
	if err := w.Write(cols); err != nil {
		f.Close()
		return err
	}
	if err := w.Write(row); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
