// Package engine orchestrates full runs: preflight checks, per-unit run
// locks, observation capping and the execution of the generated plans.
//
// Failures inside a single unit never abort the batch. The engine finishes
// every plan it can and reports the collected errors afterwards, so one
// unreachable source or one locked unit does not starve the remaining
// targets. Lock contention is the exception: it is returned immediately so
// the caller can exit with its dedicated status.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hydroworks/gridsync/pkg/buildinfo"
	"github.com/hydroworks/gridsync/pkg/config"
	"github.com/hydroworks/gridsync/pkg/glog"
	"github.com/hydroworks/gridsync/pkg/hints"
	"github.com/hydroworks/gridsync/pkg/lockfile"
	"github.com/hydroworks/gridsync/pkg/pathbundle"
	"github.com/hydroworks/gridsync/pkg/pathorganize"
	"github.com/hydroworks/gridsync/pkg/pathretention"
	"github.com/hydroworks/gridsync/pkg/pathsync"
	"github.com/hydroworks/gridsync/pkg/planner"
	"github.com/hydroworks/gridsync/pkg/preflight"
	"github.com/hydroworks/gridsync/pkg/timewindow"
)

// Runner executes plans produced by the planner.
type Runner struct {
	syncer    *pathsync.PathSyncer
	retainer  *pathretention.PathRetainer
	organizer *pathorganize.Organizer
	bundler   *pathbundle.Bundler

	lockDir      string
	minFreeBytes uint64
	dryRun       bool
}

// NewRunner creates a Runner from the effective configuration.
func NewRunner(cfg config.Config) *Runner {
	lockDir := cfg.LockDir
	if lockDir == "" {
		lockDir = os.TempDir()
	}
	return &Runner{
		syncer:       pathsync.NewPathSyncer(cfg.Workers),
		retainer:     pathretention.NewPathRetainer(cfg.Workers),
		organizer:    pathorganize.NewOrganizer(),
		bundler:      pathbundle.NewBundler(),
		lockDir:      lockDir,
		minFreeBytes: uint64(cfg.MinFreeSpaceMB) * 1024 * 1024,
		dryRun:       cfg.Runtime.DryRun,
	}
}

// ExecuteSync runs all sync plans in order. Unbounded targets come first in
// the slice, so observation-bounded targets always cap against a workspace
// that this run already refreshed.
func (r *Runner) ExecuteSync(ctx context.Context, plans []planner.SyncPlan) error {
	var errs []error

	for _, plan := range plans {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.runPreflight(plan.AbsDestRoot); err != nil {
			errs = append(errs, fmt.Errorf("target %s: %w", plan.Key(), err))
			continue
		}

		release, err := r.acquireLock(plan.Key())
		if err != nil {
			return err
		}

		if plan.BoundedByObservation {
			capped, ok := r.capAtObservation(&plan)
			if !ok {
				release()
				continue
			}
			plan.Window = capped
		}

		err = r.syncer.Execute(ctx, plan.Plan)
		release()

		switch {
		case err == nil:
		case hints.IsHint(err):
			glog.Notice("Nothing to synchronize", "target", plan.Key(), "reason", err)
		default:
			errs = append(errs, fmt.Errorf("target %s: %w", plan.Key(), err))
		}
	}

	return errors.Join(errs...)
}

// capAtObservation lowers the plan's window end to the newest timestamp found
// in the observation workspaces. Returns false when no observation data
// exists or the capped window is empty, meaning the unit has nothing to do.
func (r *Runner) capAtObservation(plan *planner.SyncPlan) (timewindow.Window, bool) {
	var newest time.Time
	var found bool
	for _, root := range plan.ObservationRoots {
		ts, ok := pathsync.NewestTimestamp(root, plan.ObservationPattern, plan.Location, plan.Window.Days())
		if ok && ts.After(newest) {
			newest = ts
			found = true
		}
	}

	if !found {
		glog.Notice("No observation data inside the window, skipping target", "target", plan.Key())
		return timewindow.Window{}, false
	}

	capped := plan.Window.CapEnd(newest)
	if capped.Start.After(capped.End) {
		glog.Notice("Observation cap leaves an empty window, skipping target",
			"target", plan.Key(), "newestObservation", newest.Format("2006-01-02 15:04"))
		return timewindow.Window{}, false
	}

	if capped.End.Before(plan.Window.End) {
		glog.Notice("Window end capped at newest observation",
			"target", plan.Key(), "window", capped.String())
	}
	return capped, true
}

// ExecutePrune runs all retention plans.
func (r *Runner) ExecutePrune(ctx context.Context, plans []pathretention.Plan) error {
	var errs []error

	for _, plan := range plans {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		release, err := r.acquireLock("prune-" + plan.Rule)
		if err != nil {
			return err
		}

		err = r.retainer.Execute(ctx, plan)
		release()

		switch {
		case err == nil:
		case hints.IsHint(err):
			glog.Notice("Nothing to prune", "rule", plan.Rule, "reason", err)
		default:
			errs = append(errs, fmt.Errorf("rule %s: %w", plan.Rule, err))
		}
	}

	return errors.Join(errs...)
}

// ExecuteOrganize runs all organize plans.
func (r *Runner) ExecuteOrganize(ctx context.Context, plans []pathorganize.Plan) error {
	var errs []error

	for _, plan := range plans {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.runPreflight(plan.AbsDestRoot); err != nil {
			errs = append(errs, fmt.Errorf("target %s: %w", plan.Key(), err))
			continue
		}

		release, err := r.acquireLock(plan.Key())
		if err != nil {
			return err
		}

		err = r.organizer.Execute(ctx, plan)
		release()

		switch {
		case err == nil:
		case hints.IsHint(err):
			glog.Notice("Nothing to organize", "target", plan.Key(), "reason", err)
		default:
			errs = append(errs, fmt.Errorf("target %s: %w", plan.Key(), err))
		}
	}

	return errors.Join(errs...)
}

// ExecuteExport runs all bundle plans.
func (r *Runner) ExecuteExport(ctx context.Context, plans []pathbundle.Plan) error {
	var errs []error

	for _, plan := range plans {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.runPreflight(plan.AbsDestDir); err != nil {
			errs = append(errs, fmt.Errorf("bundle %s: %w", plan.BundleName(), err))
			continue
		}

		release, err := r.acquireLock(plan.Target + "-export")
		if err != nil {
			return err
		}

		err = r.bundler.Execute(ctx, plan)
		release()

		switch {
		case err == nil:
		case hints.IsHint(err):
			glog.Notice("Nothing to export", "bundle", plan.BundleName(), "reason", err)
		default:
			errs = append(errs, fmt.Errorf("bundle %s: %w", plan.BundleName(), err))
		}
	}

	return errors.Join(errs...)
}

// runPreflight validates the destination before a unit touches it. Dry runs
// skip it entirely, the write test would already modify the filesystem.
func (r *Runner) runPreflight(destPath string) error {
	if r.dryRun {
		return nil
	}
	if err := preflight.CheckDestWritable(destPath); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}
	if err := preflight.CheckFreeSpace(destPath, r.minFreeBytes); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}
	return nil
}

// acquireLock takes the advisory run lock for one unit. Lock contention is
// passed through untouched so callers can map it to their exit status.
func (r *Runner) acquireLock(key string) (func(), error) {
	glog.Debug("Attempting to acquire lock", "key", key)
	lock, err := lockfile.Acquire(r.lockDir, key, buildinfo.Name)
	if err != nil {
		var lockErr *lockfile.ErrLockActive
		if errors.As(err, &lockErr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", key, err)
	}
	glog.Debug("Lock acquired", "key", key)

	// Release logs its own failure modes and never blocks.
	return lock.Release, nil
}
