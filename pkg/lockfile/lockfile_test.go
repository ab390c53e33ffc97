package lockfile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, "rainfall", "gridsync-test")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	t.Run("Lock file carries diagnostic JSON", func(t *testing.T) {
		data, err := os.ReadFile(l.Path())
		if err != nil {
			t.Fatalf("failed to read lock file: %v", err)
		}
		var content LockContent
		if err := json.Unmarshal(data, &content); err != nil {
			t.Fatalf("lock file body is not valid JSON: %v", err)
		}
		if content.PID != int64(os.Getpid()) {
			t.Errorf("expected PID %d, got %d", os.Getpid(), content.PID)
		}
		if content.Key != "rainfall" {
			t.Errorf("expected key rainfall, got %q", content.Key)
		}
		if content.AppID != "gridsync-test" {
			t.Errorf("expected appID gridsync-test, got %q", content.AppID)
		}
	})

	t.Run("Release removes the lock file", func(t *testing.T) {
		l.Release()
		if _, err := os.Stat(l.Path()); !os.IsNotExist(err) {
			t.Errorf("expected lock file to be gone after release, stat err = %v", err)
		}
	})

	t.Run("Double release is harmless", func(t *testing.T) {
		l.Release()
	})
}

func TestAcquireContention(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir, "rainfall", "holder")
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer first.Release()

	_, err = Acquire(dir, "rainfall", "challenger")
	if err == nil {
		t.Fatal("expected second Acquire to fail while the lock is held")
	}
	var active *ErrLockActive
	if !errors.As(err, &active) {
		t.Fatalf("expected *ErrLockActive, got %T: %v", err, err)
	}
	if active.Key != "rainfall" {
		t.Errorf("expected contention key rainfall, got %q", active.Key)
	}
	if active.PID != int64(os.Getpid()) {
		t.Errorf("expected holder diagnostics with PID %d, got %d", os.Getpid(), active.PID)
	}
}

func TestIndependentKeysDoNotContend(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(dir, "rainfall", "gridsync-test")
	if err != nil {
		t.Fatalf("Acquire rainfall failed: %v", err)
	}
	defer l1.Release()

	l2, err := Acquire(dir, "soil-moisture", "gridsync-test")
	if err != nil {
		t.Fatalf("Acquire soil-moisture failed: %v", err)
	}
	defer l2.Release()
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, "rainfall", "gridsync-test")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	l.Release()

	l2, err := Acquire(dir, "rainfall", "gridsync-test")
	if err != nil {
		t.Fatalf("re-Acquire after release failed: %v", err)
	}
	l2.Release()
}

func TestStaleFileDoesNotBlock(t *testing.T) {
	// A leftover lock file from a crashed process must not block acquisition:
	// exclusivity lives in the handle lock, not in file existence.
	dir := t.TempDir()
	stale := filepath.Join(dir, fileNameForKey("rainfall"))
	if err := os.WriteFile(stale, []byte(`{"pid": 999999}`), 0644); err != nil {
		t.Fatalf("failed to plant stale lock file: %v", err)
	}

	l, err := Acquire(dir, "rainfall", "gridsync-test")
	if err != nil {
		t.Fatalf("Acquire over a stale file failed: %v", err)
	}
	l.Release()
}

func TestFileNameForKey(t *testing.T) {
	got := fileNameForKey("rain/alps:now")
	if got != "gridsync-rain_alps_now.lock" {
		t.Errorf("got %q", got)
	}
}
