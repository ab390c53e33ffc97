// Package pathorganize places flat-arriving dataset files into the
// destination's YYYY/MM/DD day partitions.
//
// Upstream producers often deliver into a single drop directory; the
// organizer reads each file's embedded timestamp and copies it into the
// partition for that day. Like the sync engine it never overwrites and never
// mutates the source. With latest-selection enabled, only the single newest
// arrival per day is placed.
package pathorganize

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hydroworks/gridsync/pkg/glog"
	"github.com/hydroworks/gridsync/pkg/hints"
	"github.com/hydroworks/gridsync/pkg/latest"
	"github.com/hydroworks/gridsync/pkg/preflight"
	"github.com/hydroworks/gridsync/pkg/util"
)

// Organizer executes organize plans. It is stateless; per-run state lives in
// the task.
type Organizer struct{}

// NewOrganizer creates a new Organizer.
func NewOrganizer() *Organizer {
	return &Organizer{}
}

// candidate is one drop-directory file with its extracted timestamp.
type candidate struct {
	name    string
	absPath string
	modTime time.Time
	ts      time.Time
}

// Execute runs one organize plan. A missing drop directory is reported as a
// hint so the caller can skip this target and continue.
func (o *Organizer) Execute(ctx context.Context, plan Plan) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := preflight.CheckSourceAccessible(plan.AbsSourceDir); err != nil {
		return hints.Wrap(err)
	}

	glog.Info("Organizing target", "target", plan.Target, "domain", plan.Domain,
		"source", plan.AbsSourceDir, "dest", plan.AbsDestRoot,
		"selectLatest", plan.SelectLatest, "dryRun", plan.DryRun)

	byDay, err := collectByDay(plan)
	if err != nil {
		return err
	}

	// Process days in calendar order for reproducible logs.
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	var failed int
	for _, day := range days {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		chosen := byDay[day]
		if plan.SelectLatest {
			winner, err := selectLatest(chosen, plan.SelectMode)
			if err != nil {
				continue
			}
			chosen = []candidate{winner}
		}

		for _, c := range chosen {
			if err := placeOne(plan, day, c); err != nil {
				glog.Warn("Failed to place file", "target", plan.Target, "file", c.name, "error", err)
				failed++
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("organize %s: %d files failed to place", plan.Target, failed)
	}
	return nil
}

// collectByDay scans the drop directory and groups parseable, in-window
// files by their YYYY/MM/DD partition label.
func collectByDay(plan Plan) (map[string][]candidate, error) {
	entries, err := os.ReadDir(plan.AbsSourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read drop directory %s: %w", plan.AbsSourceDir, err)
	}

	byDay := make(map[string][]candidate)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		ts, ok := plan.Pattern.Extract(name, plan.Location)
		if !ok {
			glog.Debug("Skipping unparsed file", "target", plan.Target, "file", name)
			continue
		}
		if !plan.Window.Contains(ts) {
			glog.Notice("SKIP_WINDOW", "target", plan.Target, "file", name)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			glog.Warn("Failed to stat drop file", "file", name, "error", err)
			continue
		}

		day := ts.Format("2006/01/02")
		byDay[day] = append(byDay[day], candidate{
			name:    name,
			absPath: filepath.Join(plan.AbsSourceDir, name),
			modTime: info.ModTime(),
			ts:      ts,
		})
	}
	return byDay, nil
}

// selectLatest maps the day's candidates through the latest selector.
func selectLatest(candidates []candidate, mode latest.Mode) (candidate, error) {
	entries := make([]latest.Entry, len(candidates))
	for i, c := range candidates {
		entries[i] = latest.Entry{Name: c.name, ModTime: c.modTime}
	}
	winner, err := latest.Select(entries, mode)
	if err != nil {
		return candidate{}, err
	}
	for _, c := range candidates {
		if c.name == winner.Name {
			return c, nil
		}
	}
	return candidate{}, fmt.Errorf("selected entry %q not among candidates", winner.Name)
}

// placeOne copies one file into its day partition, additively.
func placeOne(plan Plan, day string, c candidate) error {
	destDir := filepath.Join(plan.AbsDestRoot, day)
	destPath := filepath.Join(destDir, c.name)

	if _, err := os.Stat(destPath); err == nil {
		glog.Notice("SKIP_EXISTS", "target", plan.Target, "day", day, "file", c.name)
		return nil
	}

	if plan.DryRun {
		glog.Notice("[DRY RUN] PLACE", "target", plan.Target, "day", day, "file", c.name)
		return nil
	}
	glog.Notice("PLACE", "target", plan.Target, "day", day, "file", c.name)

	if err := os.MkdirAll(destDir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", destDir, err)
	}

	src, err := os.Open(c.absPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(destDir, ".~"+c.name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			glog.Warn("Failed to remove temporary file", "path", tmpName, "error", err)
		}
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy bytes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chtimes(tmpName, time.Now(), c.modTime); err != nil {
		return fmt.Errorf("failed to preserve modification time: %w", err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		return fmt.Errorf("failed to move temp file into place: %w", err)
	}
	return nil
}
