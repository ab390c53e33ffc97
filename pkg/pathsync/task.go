package pathsync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hydroworks/gridsync/pkg/glog"
	"github.com/hydroworks/gridsync/pkg/util"
)

// dayPartitionLayout renders a day as its YYYY/MM/DD partition path.
const dayPartitionLayout = "2006/01/02"

// task holds the mutable state for a single sync execution.
// This makes the PathSyncer itself stateless and safe for concurrent use if needed.
type task struct {
	*PathSyncer

	ctx  context.Context
	plan Plan

	metrics Metrics

	copyChan chan Candidate
	copyWg   sync.WaitGroup

	// mkdirGroup deduplicates concurrent destination-directory creation
	// across copy workers.
	mkdirGroup singleflight.Group

	failedMu sync.Mutex
	failed   int64
}

func (t *task) execute() error {
	t.metrics.StartProgress("Sync progress", 10*time.Second)
	defer func() {
		t.metrics.StopProgress()
		t.metrics.LogSummary("Sync finished")
	}()

	if !t.plan.DryRun {
		for i := 0; i < t.numWorkers; i++ {
			t.copyWg.Add(1)
			go t.copyWorker()
		}
	}

	scanErr := t.scan()

	if !t.plan.DryRun {
		close(t.copyChan)
		t.copyWg.Wait()
	}

	if scanErr != nil {
		return scanErr
	}
	if t.failed > 0 {
		return fmt.Errorf("%w: %d failed", ErrPartialFailure, t.failed)
	}
	return nil
}

// scan walks the date partitions intersecting the window in calendar order
// and gates every file. Directory entries arrive in lexicographic order, so
// decision logs are reproducible across runs over an unchanged source tree.
func (t *task) scan() error {
	for _, day := range t.plan.Window.Days() {
		if t.ctx.Err() != nil {
			return t.ctx.Err()
		}

		dayRel := day.Format(dayPartitionLayout)
		srcDayDir := filepath.Join(t.plan.AbsSourceRoot, dayRel)

		entries, err := os.ReadDir(srcDayDir)
		if err != nil {
			if os.IsNotExist(err) {
				glog.Debug("Source day partition missing", "path", srcDayDir)
				continue
			}
			// A single unreadable partition does not abort the batch.
			glog.Warn("Failed to read source day partition", "path", srcDayDir, "error", err)
			t.recordFailure()
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			t.metrics.AddEntriesProcessed(1)
			t.gateOne(dayRel, entry.Name())
		}
	}
	return nil
}

// gateOne classifies one file and hands COPY decisions to the workers.
func (t *task) gateOne(dayRel, name string) {
	c := Candidate{
		SourcePath: filepath.Join(t.plan.AbsSourceRoot, dayRel, name),
		Name:       name,
		DestPath:   filepath.Join(t.plan.AbsDestRoot, dayRel, name),
	}
	c.Timestamp, c.Parsed = t.plan.Pattern.Extract(name, t.plan.Location)

	decision := evaluate(c, t.plan.Window, t.plan.DecimationMinutes)
	t.logDecision(decision, c, dayRel)

	switch decision {
	case Copy:
		if t.plan.DryRun {
			t.metrics.AddFilesCopied(1)
			return
		}
		select {
		case <-t.ctx.Done():
		case t.copyChan <- c:
		}
	case SkipWindow:
		t.metrics.AddFilesSkippedWindow(1)
	case SkipDecimated:
		t.metrics.AddFilesSkippedDecimated(1)
	case SkipExists:
		t.metrics.AddFilesSkippedExists(1)
	case SkipUnparsed:
		t.metrics.AddFilesSkippedUnparsed(1)
	}
}

// logDecision emits one NOTICE record per candidate so operators can audit
// why a given day is incomplete.
func (t *task) logDecision(d Decision, c Candidate, dayRel string) {
	prefix := ""
	if t.plan.DryRun {
		prefix = "[DRY RUN] "
	}
	args := []any{"target", t.plan.Target, "day", dayRel, "file", c.Name}
	if t.plan.Domain != "" {
		args = append(args, "domain", t.plan.Domain)
	}
	glog.Notice(prefix+d.String(), args...)
}

// copyWorker consumes COPY decisions and materializes them.
func (t *task) copyWorker() {
	defer t.copyWg.Done()
	for c := range t.copyChan {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		if err := t.copyOne(c); err != nil {
			glog.Warn("Failed to copy candidate", "source", c.SourcePath, "error", err)
			t.recordFailure()
			continue
		}
		t.metrics.AddFilesCopied(1)
	}
}

// copyOne performs a byte-preserving copy via a temp file and rename, so a
// partially written file never appears under its final name.
func (t *task) copyOne(c Candidate) error {
	destDir := filepath.Dir(c.DestPath)
	if err := t.ensureDir(destDir); err != nil {
		return err
	}

	src, err := os.Open(c.SourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	srcInfo, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	tmp, err := os.CreateTemp(destDir, ".~"+c.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// On the success path the temp file has been renamed away already.
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			glog.Warn("Failed to remove temporary copy file", "path", tmpName, "error", err)
		}
	}()

	written, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy bytes: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Carry the source modification time over so age-based retention sees
	// the dataset's own age, not the copy instant.
	if err := os.Chtimes(tmpName, time.Now(), srcInfo.ModTime()); err != nil {
		return fmt.Errorf("failed to preserve modification time: %w", err)
	}

	if err := os.Rename(tmpName, c.DestPath); err != nil {
		return fmt.Errorf("failed to move temp file into place: %w", err)
	}

	t.metrics.AddBytesWritten(written)
	return nil
}

// ensureDir creates a destination directory once even when many workers race
// for the same day partition.
func (t *task) ensureDir(dir string) error {
	_, err, _ := t.mkdirGroup.Do(dir, func() (any, error) {
		if _, statErr := os.Stat(dir); statErr == nil {
			return nil, nil
		}
		if mkErr := os.MkdirAll(dir, util.UserWritableDirPerms); mkErr != nil {
			return nil, fmt.Errorf("failed to create destination directory %s: %w", dir, mkErr)
		}
		t.metrics.AddDirsCreated(1)
		return nil, nil
	})
	return err
}

func (t *task) recordFailure() {
	t.failedMu.Lock()
	t.failed++
	t.failedMu.Unlock()
	t.metrics.AddFilesFailed(1)
}
