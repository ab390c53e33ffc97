package pathorganize

import (
	"time"

	"github.com/hydroworks/gridsync/pkg/latest"
	"github.com/hydroworks/gridsync/pkg/timestamp"
	"github.com/hydroworks/gridsync/pkg/timewindow"
)

// Plan describes one organize pass: files arriving flat in a drop directory
// are placed into the destination's YYYY/MM/DD partitions according to their
// embedded timestamps.
type Plan struct {
	Target string
	Domain string

	// AbsSourceDir is the flat drop directory.
	AbsSourceDir string
	// AbsDestRoot is the date-partitioned destination tree.
	AbsDestRoot string

	Pattern  *timestamp.Pattern
	Window   timewindow.Window
	Location *time.Location

	// SelectLatest limits each day to its single newest arrival.
	SelectLatest bool
	SelectMode   latest.Mode

	// Global Flags
	DryRun  bool
	Metrics bool
}

// Key returns the lock key identifying this organize unit.
func (p Plan) Key() string {
	if p.Domain == "" {
		return p.Target + "-organize"
	}
	return p.Target + "-" + p.Domain + "-organize"
}
