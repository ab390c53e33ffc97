package pathbundle

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/hydroworks/gridsync/pkg/hints"
)

func writePartitionFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// readTar collects name -> content from a tar stream.
func readTar(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	got := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar read failed: %v", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("tar entry read failed: %v", err)
		}
		got[hdr.Name] = string(data)
	}
	return got
}

func TestExecuteTarGz(t *testing.T) {
	srcDir, destDir := t.TempDir(), t.TempDir()
	writePartitionFile(t, srcDir, "Rain_202506180600.tif", "raster-a")
	writePartitionFile(t, srcDir, "Rain_202506181200.tif", "raster-b")

	plan := Plan{
		Target:       "rainfall",
		Day:          time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC),
		AbsSourceDir: srcDir,
		AbsDestDir:   destDir,
		Format:       TarGz,
		Level:        Default,
	}

	if err := NewBundler().Execute(context.Background(), plan); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	bundlePath := filepath.Join(destDir, "rainfall-20250618.tar.gz")
	f, err := os.Open(bundlePath)
	if err != nil {
		t.Fatalf("bundle missing: %v", err)
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip open failed: %v", err)
	}
	defer gz.Close()

	got := readTar(t, gz)
	if got["Rain_202506180600.tif"] != "raster-a" || got["Rain_202506181200.tif"] != "raster-b" {
		t.Errorf("unexpected bundle contents: %v", got)
	}
}

func TestExecuteTarZst(t *testing.T) {
	srcDir, destDir := t.TempDir(), t.TempDir()
	writePartitionFile(t, srcDir, "Rain_202506180600.tif", "raster-a")

	plan := Plan{
		Target:       "rainfall",
		Day:          time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC),
		AbsSourceDir: srcDir,
		AbsDestDir:   destDir,
		Format:       TarZst,
		Level:        Fastest,
	}

	if err := NewBundler().Execute(context.Background(), plan); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	f, err := os.Open(filepath.Join(destDir, "rainfall-20250618.tar.zst"))
	if err != nil {
		t.Fatalf("bundle missing: %v", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd open failed: %v", err)
	}
	defer zr.Close()

	got := readTar(t, zr)
	if got["Rain_202506180600.tif"] != "raster-a" {
		t.Errorf("unexpected bundle contents: %v", got)
	}
}

func TestExecuteEmptyPartitionIsHint(t *testing.T) {
	plan := Plan{
		Target:       "rainfall",
		Day:          time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC),
		AbsSourceDir: t.TempDir(),
		AbsDestDir:   t.TempDir(),
		Format:       TarGz,
	}
	err := NewBundler().Execute(context.Background(), plan)
	if err == nil {
		t.Fatal("expected an error for an empty partition")
	}
	if !hints.IsHint(err) {
		t.Errorf("expected a hint, got %v", err)
	}
}

func TestExecuteMissingPartitionIsHint(t *testing.T) {
	plan := Plan{
		Target:       "rainfall",
		Day:          time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC),
		AbsSourceDir: filepath.Join(t.TempDir(), "absent"),
		AbsDestDir:   t.TempDir(),
		Format:       TarGz,
	}
	err := NewBundler().Execute(context.Background(), plan)
	if !hints.IsHint(err) {
		t.Errorf("expected a hint, got %v", err)
	}
}

func TestExecuteDryRunWritesNothing(t *testing.T) {
	srcDir, destDir := t.TempDir(), t.TempDir()
	writePartitionFile(t, srcDir, "Rain_202506180600.tif", "raster-a")

	plan := Plan{
		Target:       "rainfall",
		Day:          time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC),
		AbsSourceDir: srcDir,
		AbsDestDir:   destDir,
		Format:       TarGz,
		DryRun:       true,
	}
	if err := NewBundler().Execute(context.Background(), plan); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		t.Fatalf("read destDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("dry run created files: %v", entries)
	}
}

func TestParseFormatAndLevel(t *testing.T) {
	if f, err := ParseFormat("tar.zst"); err != nil || f != TarZst {
		t.Errorf("ParseFormat(tar.zst) = %v, %v", f, err)
	}
	if _, err := ParseFormat("zip"); err == nil {
		t.Error("expected an error for unsupported format")
	}
	if l, err := ParseLevel("best"); err != nil || l != Best {
		t.Errorf("ParseLevel(best) = %v, %v", l, err)
	}
	if _, err := ParseLevel("turbo"); err == nil {
		t.Error("expected an error for unknown level")
	}
}
