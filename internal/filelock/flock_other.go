//go:build !unix

package filelock

import "os"

// No flock support here. The service still tracks open handles and content
// hashes, so integrity verification keeps working without mutual exclusion.
const flockSupported = false

func flockFile(f *os.File, lockType LockType) error { return nil }

func funlockFile(f *os.File) error { return nil }
