package partition

import (
	"os"
	"path/filepath"
	"time"

	"github.com/thekhoo/speedsnake/internal/timeutil"
)

// Complete enumerates the year=*/month=*/day=* tree under base and returns
// every partition whose date is strictly before today. Partitions dated today
// or later are never returned, so a day still receiving writes (or one minted
// by a skewed clock) cannot be compacted. Directory names that do not decode
// as a calendar day are skipped. A missing base directory yields no
// partitions. Order is unspecified.
func Complete(base string, today time.Time) []Key {
	cutoff := timeutil.BeginDay(today.UTC())
	var keys []Key
	years, err := os.ReadDir(base)
	if err != nil {
		return nil
	}
	for _, yd := range years {
		year, ok := segment(yd.Name(), "year")
		if !ok || !yd.IsDir() {
			continue
		}
		months, err := os.ReadDir(filepath.Join(base, yd.Name()))
		if err != nil {
			continue
		}
		for _, md := range months {
			month, ok := segment(md.Name(), "month")
			if !ok || !md.IsDir() {
				continue
			}
			days, err := os.ReadDir(filepath.Join(base, yd.Name(), md.Name()))
			if err != nil {
				continue
			}
			for _, dd := range days {
				day, ok := segment(dd.Name(), "day")
				if !ok || !dd.IsDir() {
					continue
				}
				k := Key{Year: year, Month: month, Day: day}
				if !k.valid() {
					continue
				}
				if k.Date().Before(cutoff) {
					keys = append(keys, k)
				}
			}
		}
	}
	return keys
}
