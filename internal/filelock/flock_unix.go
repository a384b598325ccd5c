//go:build unix

package filelock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

const flockSupported = true

// flockFile takes a non-blocking flock on f. Read locks map to LOCK_SH,
// write locks to LOCK_EX.
func flockFile(f *os.File, lockType LockType) error {
	op := unix.LOCK_SH
	if lockType == LockWrite {
		op = unix.LOCK_EX
	}
	err := unix.Flock(int(f.Fd()), op|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrLocked
	}
	return err
}

func funlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
