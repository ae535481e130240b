package compact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"

	"github.com/thekhoo/speedsnake/internal/core"
	"github.com/thekhoo/speedsnake/internal/partition"
)

var (
	jan20 = partition.Key{Year: 2025, Month: 1, Day: 20}
	jan23 = time.Date(2025, 1, 23, 8, 0, 0, 0, time.UTC)
)

func testCtx(now time.Time) context.Context {
	return core.SetNow(context.Background(), func() time.Time { return now })
}

func writeRaw(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// seedPartition writes three homogeneous raw records for jan20.
func seedPartition(t *testing.T, raw string) string {
	t.Helper()
	dir := jan20.RawPath(raw)
	writeRaw(t, dir, "speedtest_09-00-00.csv",
		"download,upload,ping,timestamp\n93386708,22345678,21,2025-01-20T09:00:00Z\n")
	writeRaw(t, dir, "speedtest_12-00-00.csv",
		"download,upload,ping,timestamp\n91000000,21000000,24,2025-01-20T12:00:00Z\n")
	writeRaw(t, dir, "speedtest_18-30-00.csv",
		"download,upload,ping,timestamp\n89500000,20500000,19,2025-01-20T18:30:00Z\n")
	return dir
}

func readArchive(t *testing.T, path string) (*parquet.File, []map[string]any) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	st, err := f.Stat()
	require.NoError(t, err)
	pf, err := parquet.OpenFile(f, st.Size())
	require.NoError(t, err)

	// map rows carry no schema of their own; read with the file's
	r := parquet.NewGenericReader[map[string]any](f, pf.Schema())
	defer r.Close()
	rows := make([]map[string]any, pf.NumRows())
	for i := range rows {
		rows[i] = map[string]any{}
	}
	n, _ := r.Read(rows)
	require.Equal(t, int(pf.NumRows()), n)
	return pf, rows
}

func columnNames(pf *parquet.File) []string {
	var names []string
	for _, f := range pf.Schema().Fields() {
		names = append(names, f.Name())
	}
	return names
}

func TestCompactEndToEnd(t *testing.T) {
	raw, archive := t.TempDir(), t.TempDir()
	rawDir := seedPartition(t, raw)
	c := New(raw, archive, "loc1")

	results := c.CompactAll(testCtx(jan23))
	require.Len(t, results, 1)
	res := results[0]
	require.NoError(t, res.Err)
	require.True(t, res.Compacted())
	require.Equal(t, jan20, res.Partition)
	require.Equal(t, 3, res.Rows)

	want := filepath.Join(archive, "location=loc1", "year=2025", "month=01", "day=20", "speedtest_001.parquet")
	require.Equal(t, want, res.Archive)

	t.Run("archive holds every source row plus the address column", func(t *testing.T) {
		pf, rows := readArchive(t, res.Archive)
		require.Equal(t, int64(3), pf.NumRows())
		require.ElementsMatch(t,
			[]string{"download", "upload", "ping", "timestamp", AddressColumn},
			columnNames(pf),
		)
		for _, row := range rows {
			require.Equal(t, "loc1", row[AddressColumn])
		}
	})

	t.Run("raw sources are removed", func(t *testing.T) {
		entries, err := os.ReadDir(rawDir)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("recompacting the drained partition is a no-op", func(t *testing.T) {
		results := c.CompactAll(testCtx(jan23))
		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
		require.False(t, results[0].Compacted())

		entries, err := os.ReadDir(filepath.Dir(want))
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})
}

func TestCompactSequenceMonotonicity(t *testing.T) {
	raw, archive := t.TempDir(), t.TempDir()
	c := New(raw, archive, "loc1")
	ctx := testCtx(jan23)

	seedPartition(t, raw)
	first := c.CompactAll(ctx)
	require.Len(t, first, 1)
	require.NoError(t, first[0].Err)

	// a late write lands in the already compacted partition
	writeRaw(t, jan20.RawPath(raw), "speedtest_23-59-59.csv",
		"download,upload,ping,timestamp\n90000000,20000000,30,2025-01-20T23:59:59Z\n")
	second := c.CompactAll(ctx)
	require.Len(t, second, 1)
	require.NoError(t, second[0].Err)

	require.Equal(t, "speedtest_001.parquet", filepath.Base(first[0].Archive))
	require.Equal(t, "speedtest_002.parquet", filepath.Base(second[0].Archive))

	// the first archive is untouched
	pf, _ := readArchive(t, first[0].Archive)
	require.Equal(t, int64(3), pf.NumRows())
	pf, _ = readArchive(t, second[0].Archive)
	require.Equal(t, int64(1), pf.NumRows())
}

func TestCompactColumnUnion(t *testing.T) {
	raw, archive := t.TempDir(), t.TempDir()
	dir := jan20.RawPath(raw)
	writeRaw(t, dir, "speedtest_09-00-00.csv",
		"download,upload,ping,timestamp\n93386708,22345678,21,2025-01-20T09:00:00Z\n")
	// one record lacks the ping column entirely
	writeRaw(t, dir, "speedtest_12-00-00.csv",
		"download,upload,timestamp\n91000000,21000000,2025-01-20T12:00:00Z\n")

	c := New(raw, archive, "loc1")
	res := c.Compact(jan20)
	require.NoError(t, res.Err)
	require.Equal(t, 2, res.Rows)

	pf, rows := readArchive(t, res.Archive)
	require.Equal(t, int64(2), pf.NumRows())
	require.Contains(t, columnNames(pf), "ping")

	var withPing int
	for _, row := range rows {
		if v, ok := row["ping"]; ok && v != nil {
			withPing++
		}
	}
	require.Equal(t, 1, withPing, "missing ping must merge as null, not drop the row")
}

func TestCompactVerifyBeforeDelete(t *testing.T) {
	raw, archive := t.TempDir(), t.TempDir()
	rawDir := seedPartition(t, raw)
	c := New(raw, archive, "loc1")
	c.verify = func(path string, rows int, columns []string) error {
		return fmt.Errorf("%w: archive %s has 2 rows, want %d", ErrVerification, path, rows)
	}

	res := c.Compact(jan20)
	require.ErrorIs(t, res.Err, ErrVerification)
	require.ErrorIs(t, res.Err, ErrCompaction)
	require.False(t, res.Compacted())

	t.Run("raw sources survive", func(t *testing.T) {
		entries, err := os.ReadDir(rawDir)
		require.NoError(t, err)
		require.Len(t, entries, 3)
	})

	t.Run("archive is left in place", func(t *testing.T) {
		require.FileExists(t, res.Archive)
	})

	t.Run("retry mints a fresh sequence number", func(t *testing.T) {
		c.verify = verifyArchive
		res := c.Compact(jan20)
		require.NoError(t, res.Err)
		require.Equal(t, "speedtest_002.parquet", filepath.Base(res.Archive))

		entries, err := os.ReadDir(rawDir)
		require.NoError(t, err)
		require.Empty(t, entries)
	})
}

func TestCompactIsolation(t *testing.T) {
	raw, archive := t.TempDir(), t.TempDir()
	bad := partition.Key{Year: 2025, Month: 1, Day: 19}
	// an unterminated quote makes this file unreadable as CSV
	writeRaw(t, bad.RawPath(raw), "speedtest_08-00-00.csv", "download,\"upload\n1,2\n")
	seedPartition(t, raw)

	c := New(raw, archive, "loc1")
	results := c.CompactAll(testCtx(jan23))
	require.Len(t, results, 2)

	byKey := map[partition.Key]Result{}
	for _, r := range results {
		byKey[r.Partition] = r
	}
	require.ErrorIs(t, byKey[bad].Err, ErrCompaction)
	require.NoError(t, byKey[jan20].Err)
	require.True(t, byKey[jan20].Compacted())

	// the failed partition keeps its source for the next attempt
	require.FileExists(t, filepath.Join(bad.RawPath(raw), "speedtest_08-00-00.csv"))
}

func TestCompactSkipsInProgressPartitions(t *testing.T) {
	raw, archive := t.TempDir(), t.TempDir()
	today := partition.Key{Year: 2025, Month: 1, Day: 23}
	writeRaw(t, today.RawPath(raw), "speedtest_07-00-00.csv",
		"download,timestamp\n1,2025-01-23T07:00:00Z\n")

	c := New(raw, archive, "loc1")
	require.Empty(t, c.CompactAll(testCtx(jan23)))
	require.FileExists(t, filepath.Join(today.RawPath(raw), "speedtest_07-00-00.csv"))
}

func TestCompactEmptyPartitionDir(t *testing.T) {
	raw, archive := t.TempDir(), t.TempDir()
	require.NoError(t, os.MkdirAll(jan20.RawPath(raw), 0o755))

	c := New(raw, archive, "loc1")
	res := c.Compact(jan20)
	require.NoError(t, res.Err)
	require.False(t, res.Compacted())
	require.NoDirExists(t, jan20.ArchivePath(archive, "loc1"))
}

func TestCompactTypedColumns(t *testing.T) {
	raw, archive := t.TempDir(), t.TempDir()
	writeRaw(t, jan20.RawPath(raw), "speedtest_09-00-00.csv",
		"download,server_lat,client_loggedin,client_isp,timestamp\n"+
			"93386708,51.5074,false,Example ISP,2025-01-20T09:00:00Z\n")

	c := New(raw, archive, "loc1")
	res := c.Compact(jan20)
	require.NoError(t, res.Err)

	_, rows := readArchive(t, res.Archive)
	require.Len(t, rows, 1)
	require.Equal(t, int64(93386708), rows[0]["download"])
	require.Equal(t, 51.5074, rows[0]["server_lat"])
	require.Equal(t, false, rows[0]["client_loggedin"])
	require.Equal(t, "Example ISP", rows[0]["client_isp"])
}

func TestNextSequence(t *testing.T) {
	t.Run("missing dir starts at one", func(t *testing.T) {
		n, err := nextSequence(filepath.Join(t.TempDir(), "nope"))
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("ignores foreign files", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"speedtest_001.parquet", "speedtest_007.parquet", "speedtest_02-10-00.csv", "notes.txt"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
		}
		n, err := nextSequence(dir)
		require.NoError(t, err)
		require.Equal(t, 8, n)
	})
}
