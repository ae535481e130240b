package partition

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Key identifies one calendar-day partition. The raw tree stores a partition
// under year=YYYY/month=MM/day=DD; the archive tree prefixes the same chain
// with a location=<id> segment.
type Key struct {
	Year  int
	Month int
	Day   int
}

func KeyOf(ts time.Time) Key {
	yy, mm, dd := ts.Date()
	return Key{Year: yy, Month: int(mm), Day: dd}
}

// Date returns the partition's day at UTC midnight.
func (k Key) Date() time.Time {
	return time.Date(k.Year, time.Month(k.Month), k.Day, 0, 0, 0, 0, time.UTC)
}

func (k Key) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, k.Month, k.Day)
}

// RawPath returns the partition directory in the raw record tree.
func (k Key) RawPath(base string) string {
	return filepath.Join(base,
		fmt.Sprintf("year=%04d", k.Year),
		fmt.Sprintf("month=%02d", k.Month),
		fmt.Sprintf("day=%02d", k.Day),
	)
}

// ArchivePath returns the partition directory in the archive tree, which
// carries the owning location as its leading segment.
func (k Key) ArchivePath(base, location string) string {
	return filepath.Join(base, "location="+location,
		fmt.Sprintf("year=%04d", k.Year),
		fmt.Sprintf("month=%02d", k.Month),
		fmt.Sprintf("day=%02d", k.Day),
	)
}

// valid reports whether the key names a real calendar day. time.Date
// normalizes out-of-range components, so a round trip detects them.
func (k Key) valid() bool {
	d := k.Date()
	return d.Year() == k.Year && int(d.Month()) == k.Month && d.Day() == k.Day
}

func segment(name, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"=")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
