//go:build !windows

package lockfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// tryLockHandle takes an exclusive, non-blocking flock on the open handle.
func tryLockHandle(f interface{ Fd() uintptr }) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
		return errLockHeld
	}
	return err
}

// unlockHandle drops the flock. Closing the handle would release it as well;
// the explicit unlock keeps the release path symmetric.
func unlockHandle(f interface{ Fd() uintptr }) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
