// Package pathsync implements the synchronization engine: it scans the date
// partitions of a source tree that intersect the run window, gates every
// candidate file into a copy/skip decision, and materializes the copies into
// the destination tree.
//
// The engine never mutates the source and never overwrites or deletes in the
// destination. Repeated runs over an unchanged source tree are no-ops.
package pathsync

import (
	"context"
	"errors"

	"github.com/hydroworks/gridsync/pkg/glog"
	"github.com/hydroworks/gridsync/pkg/hints"
	"github.com/hydroworks/gridsync/pkg/preflight"
)

// ErrPartialFailure indicates that one or more candidates failed to copy
// while the rest of the batch completed.
var ErrPartialFailure = errors.New("some candidates failed to copy")

// PathSyncer executes sync plans. The syncer itself is stateless and safe
// for concurrent use; all per-run state lives in the task.
type PathSyncer struct {
	numWorkers int
}

// NewPathSyncer creates a new PathSyncer.
func NewPathSyncer(numWorkers int) *PathSyncer {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &PathSyncer{numWorkers: numWorkers}
}

// Execute runs one sync plan. A missing source root is reported as a hint so
// the caller can skip this target and continue with the others.
func (s *PathSyncer) Execute(ctx context.Context, plan Plan) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := preflight.CheckSourceAccessible(plan.AbsSourceRoot); err != nil {
		return hints.Wrap(err)
	}

	var m Metrics
	if plan.Metrics {
		m = &SyncMetrics{}
	} else {
		m = &NoopMetrics{}
	}

	t := &task{
		PathSyncer: s,
		ctx:        ctx,
		plan:       plan,
		metrics:    m,
		copyChan:   make(chan Candidate, s.numWorkers*2),
	}

	glog.Info("Syncing target", "target", plan.Target, "domain", plan.Domain,
		"window", plan.Window.String(), "source", plan.AbsSourceRoot, "dest", plan.AbsDestRoot,
		"dryRun", plan.DryRun)
	return t.execute()
}
