package pathsync

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hydroworks/gridsync/pkg/glog"
	"github.com/hydroworks/gridsync/pkg/timestamp"
)

// NewestTimestamp scans the given day partitions of a destination tree,
// newest day first, and returns the greatest timestamp extractable from the
// files found there. It is used to cap forecast windows at the latest
// available observation.
//
// The boolean result is false when no parseable file exists in any of the
// partitions.
func NewestTimestamp(absRoot string, pattern *timestamp.Pattern, loc *time.Location, days []time.Time) (time.Time, bool) {
	var newest time.Time
	found := false

	for i := len(days) - 1; i >= 0; i-- {
		dayDir := filepath.Join(absRoot, days[i].Format(dayPartitionLayout))
		entries, err := os.ReadDir(dayDir)
		if err != nil {
			if !os.IsNotExist(err) {
				glog.Warn("Failed to read observation partition", "path", dayDir, "error", err)
			}
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ts, ok := pattern.Extract(entry.Name(), loc)
			if !ok {
				continue
			}
			if !found || ts.After(newest) {
				newest = ts
				found = true
			}
		}

		// Days are scanned newest first, so the first day with any
		// parseable file already holds the global maximum.
		if found {
			return newest, true
		}
	}
	return newest, found
}
