// Package pathretention reclaims space in the destination tree.
//
// Two independent policies exist. AGE deletes files older than a maximum age
// by modification time and then prunes directories that became empty,
// children before parents. IDENTITY deletes files stored under a YYYY/MM/DD
// partition whose own embedded timestamp names a different day; files without
// a parseable timestamp are kept. Neither policy ever removes a non-empty
// directory, and the configured root itself is never removed.
package pathretention

import (
	"context"

	"github.com/hydroworks/gridsync/pkg/glog"
	"github.com/hydroworks/gridsync/pkg/hints"
	"github.com/hydroworks/gridsync/pkg/preflight"
)

// PathRetainer executes retention plans. The retainer itself is stateless
// and safe for concurrent use; all per-run state lives in the task.
type PathRetainer struct {
	numWorkers int
}

// NewPathRetainer creates a new PathRetainer.
func NewPathRetainer(numWorkers int) *PathRetainer {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &PathRetainer{numWorkers: numWorkers}
}

// Execute runs one retention plan. A missing root is reported as a hint so
// the caller can skip this rule and continue with the others.
func (r *PathRetainer) Execute(ctx context.Context, plan Plan) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := preflight.CheckSourceAccessible(plan.AbsRoot); err != nil {
		return hints.Wrap(err)
	}

	var m Metrics
	if plan.Metrics {
		m = &RetentionMetrics{}
	} else {
		m = &NoopMetrics{}
	}

	t := &task{
		PathRetainer: r,
		ctx:          ctx,
		plan:         plan,
		metrics:      m,
		deleteChan:   make(chan string, r.numWorkers*2),
	}

	glog.Info("Applying retention rule", "rule", plan.Rule, "kind", plan.Kind.String(),
		"root", plan.AbsRoot, "dryRun", plan.DryRun)
	return t.execute()
}
