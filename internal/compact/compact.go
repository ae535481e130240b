// Package compact rolls completed raw partitions into numbered parquet
// archives. A partition is merged, written under a fresh sequence number,
// verified by re-reading the file, and only then are the raw sources
// deleted. Nothing here is transactional: a crash between write and delete
// leaves both trees populated, and the next run simply mints another
// sequence number for the same rows. That duplicate-content case is accepted
// behavior, not a bug; archives are never overwritten or deleted.
//
// Sequence assignment is a scan-then-write inside one process. Concurrent
// deployment instances sharing an archive partition would race on it; the
// design assumes a single writer per archive partition.
package compact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/thekhoo/speedsnake/internal/core"
	"github.com/thekhoo/speedsnake/internal/partition"
)

// AddressColumn is the constant column stamped on every archived row to
// record which deployment location produced it.
const AddressColumn = "speedtest_address"

var (
	// ErrCompaction wraps any failure merging, writing or verifying one
	// partition. It never crosses a partition boundary.
	ErrCompaction = errors.New("compaction failed")
	// ErrVerification is the CompactionError subtype for a row-count or
	// column-set mismatch between sources and the written archive. Raw
	// sources are always preserved when it is returned.
	ErrVerification = fmt.Errorf("%w: verification mismatch", ErrCompaction)
)

// Result reports the outcome of compacting one partition. A zero Archive
// with a nil Err means the partition had nothing to do.
type Result struct {
	Partition partition.Key
	Archive   string
	Rows      int
	Err       error
}

// Compacted reports whether a new, verified archive file was produced.
func (r Result) Compacted() bool {
	return r.Err == nil && r.Archive != ""
}

type Compactor struct {
	raw      string
	archive  string
	location string
	verify   func(path string, rows int, columns []string) error
	log      *slog.Logger
}

func New(raw, archive, location string) *Compactor {
	return &Compactor{
		raw:      raw,
		archive:  archive,
		location: location,
		verify:   verifyArchive,
		log: slog.Default().With(
			slog.String("component", "compact"),
		),
	}
}

// CompactAll scans the raw tree for partitions dated strictly before today
// (per core.Now) and compacts each independently. A failure in one partition
// is recorded in its Result and never aborts the rest.
func (c *Compactor) CompactAll(ctx context.Context) []Result {
	keys := partition.Complete(c.raw, core.Now(ctx))
	if len(keys) == 0 {
		c.log.Debug("no complete partitions")
		return nil
	}
	results := make([]Result, 0, len(keys))
	for _, key := range keys {
		res := c.Compact(key)
		switch {
		case res.Err != nil:
			c.log.Error("partition compaction failed",
				slog.String("partition", key.String()),
				slog.String("err", res.Err.Error()),
			)
		case res.Archive != "":
			c.log.Info("compacted partition",
				slog.String("partition", key.String()),
				slog.Int("rows", res.Rows),
				slog.String("archive", res.Archive),
			)
		default:
			c.log.Debug("partition already drained", slog.String("partition", key.String()))
		}
		results = append(results, res)
	}
	return results
}

// Compact merges all raw records of one partition into a new archive file.
// The raw sources are deleted only after the written file verifies.
func (c *Compactor) Compact(key partition.Key) Result {
	res := Result{Partition: key}
	rawDir := key.RawPath(c.raw)

	tbl, sources, err := readPartition(rawDir)
	if err != nil {
		res.Err = fmt.Errorf("%w: reading %s: %v", ErrCompaction, rawDir, err)
		return res
	}
	if len(sources) == 0 {
		// a prior run already drained this partition
		return res
	}
	tbl.addConstant(AddressColumn, c.location)

	dir := key.ArchivePath(c.archive, c.location)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		res.Err = fmt.Errorf("%w: creating %s: %v", ErrCompaction, dir, err)
		return res
	}
	seq, err := nextSequence(dir)
	if err != nil {
		res.Err = fmt.Errorf("%w: scanning %s: %v", ErrCompaction, dir, err)
		return res
	}
	path := filepath.Join(dir, fmt.Sprintf("speedtest_%03d.parquet", seq))

	if err := writeArchive(path, tbl); err != nil {
		// remove the partial file so a retry starts clean
		os.Remove(path)
		res.Err = fmt.Errorf("%w: writing %s: %v", ErrCompaction, path, err)
		return res
	}
	res.Archive = path
	res.Rows = len(tbl.rows)

	if err := c.verify(path, len(tbl.rows), tbl.columns); err != nil {
		res.Err = err
		return res
	}
	if err := removeSources(sources); err != nil {
		res.Err = fmt.Errorf("%w: removing sources for %s: %v", ErrCompaction, key.String(), err)
		return res
	}
	return res
}

func removeSources(sources []string) error {
	for _, src := range sources {
		if err := os.Remove(src); err != nil {
			return err
		}
	}
	return nil
}
