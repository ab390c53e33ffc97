// Package pathbundle exports one day partition of a destination tree as a
// compressed tarball for offsite transfer. Bundles are written through a
// temp file and an atomic rename, so a partially written archive never
// appears under its final name.
package pathbundle

import (
	"archive/tar"
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/hydroworks/gridsync/pkg/glog"
	"github.com/hydroworks/gridsync/pkg/hints"
	"github.com/hydroworks/gridsync/pkg/util"
)

// ioBufferSize is the buffer used between the tar stream and the compressor.
const ioBufferSize = 1 << 20

// Bundler executes export plans.
type Bundler struct{}

// NewBundler creates a new Bundler.
func NewBundler() *Bundler {
	return &Bundler{}
}

// Execute bundles the plan's day partition. An absent or empty partition is
// reported as a hint so the caller can skip it without failing the run.
func (b *Bundler) Execute(ctx context.Context, plan Plan) (retErr error) {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	entries, err := os.ReadDir(plan.AbsSourceDir)
	if err != nil {
		if os.IsNotExist(err) {
			return hints.Wrap(fmt.Errorf("day partition %s does not exist", plan.AbsSourceDir))
		}
		return fmt.Errorf("failed to read day partition %s: %w", plan.AbsSourceDir, err)
	}
	if len(entries) == 0 {
		return hints.Wrap(fmt.Errorf("day partition %s is empty", plan.AbsSourceDir))
	}

	bundlePath := filepath.Join(plan.AbsDestDir, plan.BundleName())
	glog.Info("Exporting day partition", "target", plan.Target,
		"day", plan.Day.Format("2006-01-02"), "bundle", bundlePath, "dryRun", plan.DryRun)

	if plan.DryRun {
		glog.Notice("[DRY RUN] BUNDLE", "source", plan.AbsSourceDir, "bundle", bundlePath)
		return nil
	}

	if err := os.MkdirAll(plan.AbsDestDir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(plan.AbsDestDir, ".~"+plan.BundleName()+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp bundle: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := writeBundle(ctx, tmp, plan); err != nil {
		return err
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp bundle: %w", err)
	}
	if err := os.Rename(tmpPath, bundlePath); err != nil {
		return fmt.Errorf("failed to rename temp bundle into place: %w", err)
	}

	glog.Notice("BUNDLED", "bundle", bundlePath)
	return nil
}

// writeBundle streams the partition's files into the compressed tar.
func writeBundle(ctx context.Context, out io.Writer, plan Plan) (retErr error) {
	bufWriter := bufio.NewWriterSize(out, ioBufferSize)

	var compressedWriter io.WriteCloser
	switch plan.Format {
	case TarZst:
		var encoderLevel zstd.EncoderLevel
		switch plan.Level {
		case Fastest:
			encoderLevel = zstd.SpeedFastest
		case Best:
			encoderLevel = zstd.SpeedBestCompression
		default:
			encoderLevel = zstd.SpeedDefault
		}
		zstdWriter, err := zstd.NewWriter(bufWriter, zstd.WithEncoderLevel(encoderLevel))
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		compressedWriter = zstdWriter
	default:
		var lvl int
		switch plan.Level {
		case Fastest:
			lvl = pgzip.BestSpeed
		case Best:
			lvl = pgzip.BestCompression
		default:
			lvl = pgzip.DefaultCompression
		}
		pgzipWriter, err := pgzip.NewWriterLevel(bufWriter, lvl)
		if err != nil {
			return fmt.Errorf("failed to create gzip writer: %w", err)
		}
		compressedWriter = pgzipWriter
	}

	tarWriter := tar.NewWriter(compressedWriter)
	defer func() {
		if err := tarWriter.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("tar writer close failed: %w", err)
		}
		if err := compressedWriter.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("compressed writer close failed: %w", err)
		}
		if err := bufWriter.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
	}()

	return filepath.WalkDir(plan.AbsSourceDir, func(absPath string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info for %s: %w", absPath, err)
		}
		relPath, err := filepath.Rel(plan.AbsSourceDir, absPath)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", absPath, err)
		}
		relPath = filepath.ToSlash(relPath)

		glog.Notice("ADD", "bundle", plan.BundleName(), "file", relPath)

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("failed to create tar header for %s: %w", relPath, err)
		}
		header.Name = relPath
		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header for %s: %w", relPath, err)
		}

		f, err := os.Open(absPath)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", absPath, err)
		}
		_, err = io.Copy(tarWriter, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to add %s to bundle: %w", relPath, err)
		}
		return nil
	})
}
