package pathretention

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hydroworks/gridsync/pkg/glog"
)

// task holds the mutable state for a single retention execution.
// This makes the PathRetainer itself stateless and safe for concurrent use if needed.
type task struct {
	*PathRetainer

	ctx  context.Context
	plan Plan

	metrics Metrics

	deleteChan chan string
	deleteWg   sync.WaitGroup

	failedMu sync.Mutex
	failed   int64
}

func (t *task) execute() error {
	t.metrics.StartProgress("Retention progress", 10*time.Second)
	defer func() {
		t.metrics.StopProgress()
		t.metrics.LogSummary("Retention finished")
	}()

	var toDelete []string
	var err error
	switch t.plan.Kind {
	case Age:
		toDelete, err = t.collectAged()
	case Identity:
		toDelete, err = t.collectMisfiled()
	default:
		return fmt.Errorf("unknown retention kind: %v", t.plan.Kind)
	}
	if err != nil {
		return err
	}

	if len(toDelete) == 0 {
		glog.Debug("No files need deletion", "rule", t.plan.Rule)
	} else {
		glog.Info("Deleting files outside retention", "rule", t.plan.Rule, "count", len(toDelete))

		for i := 0; i < t.numWorkers; i++ {
			t.deleteWg.Add(1)
			go t.deleteWorker()
		}
		go t.deleteTaskProducer(toDelete)
		t.deleteWg.Wait()
	}

	if t.plan.Kind == Age {
		if t.plan.DryRun {
			glog.Debug("[DRY RUN] Skipping empty-directory pruning", "rule", t.plan.Rule)
		} else {
			t.pruneEmptyDirs()
		}
	}

	if t.failed > 0 {
		return fmt.Errorf("retention rule %s: %d deletions failed", t.plan.Rule, t.failed)
	}
	return nil
}

// deleteTaskProducer feeds the eligible files into the channel for workers.
func (t *task) deleteTaskProducer(toDelete []string) {
	defer close(t.deleteChan)
	for _, path := range toDelete {
		select {
		case <-t.ctx.Done():
			glog.Debug("Cancellation received, stopping retention job feeding.")
			return // Stop feeding on cancel.
		case t.deleteChan <- path:
		}
	}
}

// deleteWorker consumes tasks from the channel and deletes the files.
func (t *task) deleteWorker() {
	defer t.deleteWg.Done()
	for path := range t.deleteChan {
		// Check for cancellation before each deletion.
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		if t.plan.DryRun {
			glog.Notice("[DRY RUN] DELETE", "rule", t.plan.Rule, "path", path)
			t.metrics.AddFilesDeleted(1)
			continue
		}
		glog.Notice("DELETE", "rule", t.plan.Rule, "path", path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			t.recordFailure()
			glog.Warn("Failed to delete file", "rule", t.plan.Rule, "path", path, "error", err)
		} else {
			t.metrics.AddFilesDeleted(1)
		}
	}
}

// collectAged walks the whole tree and lists files whose modification time
// is older than the rule's cutoff.
func (t *task) collectAged() ([]string, error) {
	cutoff := t.plan.Reference.AddDate(0, 0, -t.plan.MaxAgeDays)

	var toDelete []string
	err := filepath.WalkDir(t.plan.AbsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A single unreadable entry does not abort the rule.
			glog.Warn("Failed to inspect entry", "rule", t.plan.Rule, "path", path, "error", err)
			t.recordFailure()
			return nil
		}
		if t.ctx.Err() != nil {
			return t.ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		t.metrics.AddEntriesProcessed(1)
		info, err := d.Info()
		if err != nil {
			glog.Warn("Failed to stat entry", "rule", t.plan.Rule, "path", path, "error", err)
			t.recordFailure()
			return nil
		}
		if info.ModTime().Before(cutoff) {
			toDelete = append(toDelete, path)
		} else {
			t.metrics.AddFilesKept(1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toDelete, nil
}

// pruneEmptyDirs removes directories that became empty after the deletion
// pass, children before parents. os.Remove refuses to delete a non-empty
// directory, so a directory is only ever removed when provably empty at
// deletion time. The root itself is never a candidate.
func (t *task) pruneEmptyDirs() {
	var dirs []string
	err := filepath.WalkDir(t.plan.AbsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != t.plan.AbsRoot {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		glog.Warn("Failed to scan for empty directories", "rule", t.plan.Rule, "error", err)
		return
	}

	// Reverse lexicographic order puts every child before its parent.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	for _, dir := range dirs {
		if t.ctx.Err() != nil {
			return
		}
		if err := os.Remove(dir); err == nil {
			glog.Notice("PRUNE", "rule", t.plan.Rule, "path", dir)
			t.metrics.AddDirsPruned(1)
		}
	}
}

// collectMisfiled lists files under YYYY/MM/DD partitions whose embedded
// timestamp names a different day than the partition they sit in. Files
// without a parseable timestamp are kept.
func (t *task) collectMisfiled() ([]string, error) {
	var toDelete []string

	partitions, err := t.listDayPartitions()
	if err != nil {
		return nil, err
	}

	for _, p := range partitions {
		if t.ctx.Err() != nil {
			return nil, t.ctx.Err()
		}

		entries, err := os.ReadDir(p.dir)
		if err != nil {
			glog.Warn("Failed to read day partition", "rule", t.plan.Rule, "path", p.dir, "error", err)
			t.recordFailure()
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			t.metrics.AddEntriesProcessed(1)

			ts, ok := t.plan.Pattern.Extract(entry.Name(), t.plan.Location)
			if !ok {
				t.metrics.AddFilesKept(1)
				continue
			}

			y, m, d := ts.Date()
			if y == p.year && int(m) == p.month && d == p.day {
				t.metrics.AddFilesKept(1)
				continue
			}
			toDelete = append(toDelete, filepath.Join(p.dir, entry.Name()))
		}
	}
	return toDelete, nil
}

// dayPartition is one YYYY/MM/DD directory with its decoded date label.
type dayPartition struct {
	dir   string
	year  int
	month int
	day   int
}

// listDayPartitions enumerates the date partitions under the root in
// lexicographic order. Directories that do not look like date segments are
// ignored.
func (t *task) listDayPartitions() ([]dayPartition, error) {
	var partitions []dayPartition

	years, err := os.ReadDir(t.plan.AbsRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read retention root %s: %w", t.plan.AbsRoot, err)
	}
	for _, yearEntry := range years {
		year, ok := datePart(yearEntry, 4)
		if !ok {
			continue
		}
		yearDir := filepath.Join(t.plan.AbsRoot, yearEntry.Name())

		months, err := os.ReadDir(yearDir)
		if err != nil {
			continue
		}
		for _, monthEntry := range months {
			month, ok := datePart(monthEntry, 2)
			if !ok || month < 1 || month > 12 {
				continue
			}
			monthDir := filepath.Join(yearDir, monthEntry.Name())

			days, err := os.ReadDir(monthDir)
			if err != nil {
				continue
			}
			for _, dayEntry := range days {
				day, ok := datePart(dayEntry, 2)
				if !ok || day < 1 || day > 31 {
					continue
				}
				partitions = append(partitions, dayPartition{
					dir:   filepath.Join(monthDir, dayEntry.Name()),
					year:  year,
					month: month,
					day:   day,
				})
			}
		}
	}
	return partitions, nil
}

// datePart decodes a fixed-width numeric directory name.
func datePart(entry fs.DirEntry, width int) (int, bool) {
	if !entry.IsDir() || len(entry.Name()) != width {
		return 0, false
	}
	n, err := strconv.Atoi(entry.Name())
	if err != nil {
		return 0, false
	}
	return n, true
}

func (t *task) recordFailure() {
	t.failedMu.Lock()
	t.failed++
	t.failedMu.Unlock()
	t.metrics.AddFilesFailed(1)
}
