package pathretention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hydroworks/gridsync/pkg/hints"
	"github.com/hydroworks/gridsync/pkg/timestamp"
)

func mustPattern(t *testing.T, expr string) *timestamp.Pattern {
	t.Helper()
	p, err := timestamp.Compile(expr)
	if err != nil {
		t.Fatalf("Compile(%q) failed: %v", expr, err)
	}
	return p
}

func writeFileWithModTime(t *testing.T, path string, mod time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}
}

func TestAgeRetention(t *testing.T) {
	root := t.TempDir()
	ref := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)

	oldFile := filepath.Join(root, "2025/05/01", "Rain_202505010000.tif")
	freshFile := filepath.Join(root, "2025/06/19", "Rain_202506190000.tif")
	writeFileWithModTime(t, oldFile, ref.AddDate(0, 0, -50))
	writeFileWithModTime(t, freshFile, ref.AddDate(0, 0, -1))

	plan := Plan{
		Rule:       "rainfall-age",
		Kind:       Age,
		AbsRoot:    root,
		MaxAgeDays: 30,
		Reference:  ref,
	}

	r := NewPathRetainer(2)
	if err := r.Execute(context.Background(), plan); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Errorf("expected old file to be deleted, stat err = %v", err)
	}
	if _, err := os.Stat(freshFile); err != nil {
		t.Errorf("expected fresh file to survive: %v", err)
	}

	t.Run("Emptied partitions are pruned bottom-up", func(t *testing.T) {
		if _, err := os.Stat(filepath.Join(root, "2025/05")); !os.IsNotExist(err) {
			t.Errorf("expected 2025/05 to be pruned, stat err = %v", err)
		}
		// 2025 still holds 06/19 and must survive.
		if _, err := os.Stat(filepath.Join(root, "2025/06/19")); err != nil {
			t.Errorf("expected occupied partition to survive: %v", err)
		}
	})

	t.Run("Root is never removed", func(t *testing.T) {
		if _, err := os.Stat(root); err != nil {
			t.Errorf("retention root must survive even when emptied: %v", err)
		}
	})
}

func TestAgeRetentionPrunesRootChildrenWhenEmptied(t *testing.T) {
	root := t.TempDir()
	ref := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	only := filepath.Join(root, "2024/01/01", "Rain_202401010000.tif")
	writeFileWithModTime(t, only, ref.AddDate(0, 0, -400))

	r := NewPathRetainer(1)
	err := r.Execute(context.Background(), Plan{
		Rule: "age", Kind: Age, AbsRoot: root, MaxAgeDays: 30, Reference: ref,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read root failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected fully pruned tree under the root, got %v", entries)
	}
}

func TestAgeRetentionDryRun(t *testing.T) {
	root := t.TempDir()
	ref := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	oldFile := filepath.Join(root, "2025/05/01", "Rain_202505010000.tif")
	writeFileWithModTime(t, oldFile, ref.AddDate(0, 0, -50))

	r := NewPathRetainer(2)
	err := r.Execute(context.Background(), Plan{
		Rule: "age", Kind: Age, AbsRoot: root, MaxAgeDays: 30, Reference: ref, DryRun: true,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if _, err := os.Stat(oldFile); err != nil {
		t.Errorf("dry run must not delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "2025/05/01")); err != nil {
		t.Errorf("dry run must not prune directories: %v", err)
	}
}

func TestIdentityRetention(t *testing.T) {
	root := t.TempDir()
	ref := time.Now()

	misfiled := filepath.Join(root, "2025/01/15", "Rain_202501140000.tif")
	correct := filepath.Join(root, "2025/01/15", "Rain_202501150000.tif")
	unparsed := filepath.Join(root, "2025/01/15", "checksums.txt")
	writeFileWithModTime(t, misfiled, ref)
	writeFileWithModTime(t, correct, ref)
	writeFileWithModTime(t, unparsed, ref)

	plan := Plan{
		Rule:      "rainfall-identity",
		Kind:      Identity,
		AbsRoot:   root,
		Pattern:   mustPattern(t, `Rain_(?P<ts>\d{12})\.tif`),
		Location:  time.UTC,
		Reference: ref,
	}

	r := NewPathRetainer(2)
	if err := r.Execute(context.Background(), plan); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if _, err := os.Stat(misfiled); !os.IsNotExist(err) {
		t.Errorf("expected misfiled file to be deleted, stat err = %v", err)
	}
	if _, err := os.Stat(correct); err != nil {
		t.Errorf("expected correctly filed file to survive: %v", err)
	}
	if _, err := os.Stat(unparsed); err != nil {
		t.Errorf("expected unparsed file to be kept: %v", err)
	}
}

func TestIdentityRetentionIgnoresNonDateDirs(t *testing.T) {
	root := t.TempDir()
	ref := time.Now()

	stray := filepath.Join(root, "scratch/tmp", "Rain_202501140000.tif")
	writeFileWithModTime(t, stray, ref)

	r := NewPathRetainer(1)
	err := r.Execute(context.Background(), Plan{
		Rule: "identity", Kind: Identity, AbsRoot: root,
		Pattern: mustPattern(t, `Rain_(?P<ts>\d{12})\.tif`), Location: time.UTC, Reference: ref,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if _, err := os.Stat(stray); err != nil {
		t.Errorf("files outside date partitions must be untouched: %v", err)
	}
}

func TestIdentityRetentionDryRun(t *testing.T) {
	root := t.TempDir()
	ref := time.Now()
	misfiled := filepath.Join(root, "2025/01/15", "Rain_202501140000.tif")
	writeFileWithModTime(t, misfiled, ref)

	r := NewPathRetainer(1)
	err := r.Execute(context.Background(), Plan{
		Rule: "identity", Kind: Identity, AbsRoot: root,
		Pattern: mustPattern(t, `Rain_(?P<ts>\d{12})\.tif`), Location: time.UTC,
		Reference: ref, DryRun: true,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if _, err := os.Stat(misfiled); err != nil {
		t.Errorf("dry run must not delete: %v", err)
	}
}

func TestMissingRootIsHint(t *testing.T) {
	r := NewPathRetainer(1)
	err := r.Execute(context.Background(), Plan{
		Rule: "age", Kind: Age, AbsRoot: filepath.Join(t.TempDir(), "absent"),
		MaxAgeDays: 30, Reference: time.Now(),
	})
	if err == nil {
		t.Fatal("expected an error for a missing root")
	}
	if !hints.IsHint(err) {
		t.Errorf("expected a hint error, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("age"); err != nil || k != Age {
		t.Errorf("ParseKind(age) = %v, %v", k, err)
	}
	if k, err := ParseKind("IDENTITY"); err != nil || k != Identity {
		t.Errorf("ParseKind(IDENTITY) = %v, %v", k, err)
	}
	if _, err := ParseKind("ttl"); err == nil {
		t.Error("expected an error for an unknown kind")
	}
}
