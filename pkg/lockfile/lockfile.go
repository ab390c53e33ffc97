// Package lockfile provides non-blocking advisory locks keyed by sync-target
// identity.
//
// Exclusivity rests on an OS-level lock held on an open file handle, so a
// crashed holder releases its lock through ordinary handle cleanup. The JSON
// body of the lock file is diagnostic only and never consulted to decide
// whether a lock is held.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hydroworks/gridsync/pkg/glog"
	"github.com/hydroworks/gridsync/pkg/util"
)

// LockContent defines the diagnostic data written into the lock file.
type LockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquiredAt"`
	AppID      string    `json:"appID"`
	Key        string    `json:"key"`
}

// ErrLockActive is a structured error returned when a lock is already held by another process.
type ErrLockActive struct {
	Key      string
	PID      int64
	Hostname string
	AppID    string
}

// Error implements the error interface for ErrLockActive.
func (e *ErrLockActive) Error() string {
	if e.PID == 0 {
		return fmt.Sprintf("lock %q is active, held by another process", e.Key)
	}
	return fmt.Sprintf("lock %q is active, held by PID %d on host '%s' (App: %s)", e.Key, e.PID, e.Hostname, e.AppID)
}

// errLockHeld is the internal signal from the platform lock call that another
// process holds the lock right now.
var errLockHeld = errors.New("lock held by another process")

// Lock manages the state of an acquired lock file.
type Lock struct {
	key  string
	path string
	file *os.File
	mu   sync.Mutex
	// We keep track if we actually hold the lock to prevent double release
	held bool
}

// Acquire attempts to acquire the lock for key, creating the lock file under
// dirPath. Acquisition never blocks or queues.
// It returns a non-nil Lock on success.
// It returns (nil, *ErrLockActive) if the lock is already held.
// It returns (nil, error) for any other failure.
func Acquire(dirPath, key, appID string) (*Lock, error) {
	if err := os.MkdirAll(dirPath, util.UserWritableDirPerms); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	absLockFilePath := filepath.Join(dirPath, fileNameForKey(key))

	// A releasing holder unlinks its lock file, so an open handle can point
	// at an unlinked inode. Re-stat after locking and retry when that happens.
	maxAttempts := 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		f, err := os.OpenFile(absLockFilePath, os.O_CREATE|os.O_RDWR, util.UserWritableFilePerms)
		if err != nil {
			return nil, fmt.Errorf("failed to open lock file: %w", err)
		}

		if err := tryLockHandle(f); err != nil {
			f.Close()
			if errors.Is(err, errLockHeld) {
				return nil, lockActiveError(absLockFilePath, key)
			}
			return nil, fmt.Errorf("failed to lock %s: %w", absLockFilePath, err)
		}

		stillCurrent, err := handleMatchesPath(f, absLockFilePath)
		if err != nil {
			f.Close()
			return nil, err
		}
		if !stillCurrent {
			// We locked an inode that was unlinked between open and lock.
			f.Close()
			continue
		}

		l := &Lock{key: key, path: absLockFilePath, file: f, held: true}
		if err := l.writeContent(appID); err != nil {
			// Diagnostics are best effort; the handle lock already guarantees
			// exclusivity.
			glog.Warn("Failed to write lock diagnostics", "path", absLockFilePath, "error", err)
		}
		glog.Debug("Lock acquired", "key", key, "path", absLockFilePath)
		return l, nil
	}

	return nil, fmt.Errorf("failed to acquire lock %q after %d attempts (contention)", key, maxAttempts)
}

// Release unlocks and removes the lock file. Safe to call more than once.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	l.held = false

	// Unlink first so a waiter that opens the path afterwards gets a fresh
	// inode instead of the one we are about to unlock.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		glog.Warn("Failed to remove lock file", "path", l.path, "error", err)
	}
	if err := unlockHandle(l.file); err != nil {
		glog.Warn("Failed to unlock lock file handle", "path", l.path, "error", err)
	}
	if err := l.file.Close(); err != nil {
		glog.Warn("Failed to close lock file handle", "path", l.path, "error", err)
	}
	glog.Debug("Lock released", "key", l.key, "path", l.path)
}

// Path returns the lock file location, for log output.
func (l *Lock) Path() string {
	return l.path
}

// writeContent replaces the file body with fresh diagnostic JSON.
func (l *Lock) writeContent(appID string) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	content := LockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		AcquiredAt: time.Now().UTC(),
		AppID:      appID,
		Key:        l.key,
	}

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock content: %w", err)
	}
	if err := l.file.Truncate(0); err != nil {
		return err
	}
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("failed to write lock content: %w", err)
	}
	return l.file.Sync()
}

// lockActiveError builds the contention error, enriching it with the holder's
// diagnostics when the lock file body is readable.
func lockActiveError(absLockFilePath, key string) *ErrLockActive {
	e := &ErrLockActive{Key: key}

	data, err := os.ReadFile(absLockFilePath)
	if err != nil || len(data) == 0 {
		return e
	}
	var content LockContent
	if err := json.Unmarshal(data, &content); err != nil {
		// A partially written body is expected while the holder updates it.
		return e
	}
	e.PID = content.PID
	e.Hostname = content.Hostname
	e.AppID = content.AppID
	return e
}

// handleMatchesPath reports whether the open handle still refers to the file
// currently present at path.
func handleMatchesPath(f *os.File, path string) (bool, error) {
	handleInfo, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat lock handle: %w", err)
	}
	pathInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat lock path: %w", err)
	}
	return os.SameFile(handleInfo, pathInfo), nil
}

// fileNameForKey maps a lock key to a stable file name. Path separators and
// other awkward characters in target names are flattened.
func fileNameForKey(key string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, key)
	return "gridsync-" + sanitized + ".lock"
}
