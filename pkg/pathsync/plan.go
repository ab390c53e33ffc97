package pathsync

import (
	"time"

	"github.com/hydroworks/gridsync/pkg/timestamp"
	"github.com/hydroworks/gridsync/pkg/timewindow"
)

// Plan describes one fully resolved synchronization unit: a single target,
// expanded for a single domain, with its window already computed. Plans are
// built by the planner and are immutable during execution.
type Plan struct {
	Target string
	Domain string

	AbsSourceRoot string
	AbsDestRoot   string

	Pattern  *timestamp.Pattern
	Window   timewindow.Window
	Location *time.Location

	DecimationMinutes int

	// Global Flags
	DryRun  bool
	Metrics bool
}

// Key returns the lock key identifying this synchronization unit.
func (p Plan) Key() string {
	if p.Domain == "" {
		return p.Target
	}
	return p.Target + "-" + p.Domain
}
