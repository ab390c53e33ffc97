//go:build windows

package lockfile

import (
	"errors"

	"golang.org/x/sys/windows"
)

// tryLockHandle takes an exclusive, non-blocking byte-range lock covering the
// first byte of the file, which is the conventional whole-file lock on Windows.
func tryLockHandle(f interface{ Fd() uintptr }) error {
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, ol)
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return errLockHeld
	}
	return err
}

// unlockHandle drops the byte-range lock.
func unlockHandle(f interface{ Fd() uintptr }) error {
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, new(windows.Overlapped))
}
