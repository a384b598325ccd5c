// Package filelock provides advisory file locking for rule list sources,
// with optional content hashing so lock holders can detect concurrent
// modification.
//
// Locks are advisory: they coordinate cooperating compiler processes and do
// not stop unrelated writers. On platforms without flock support the service
// degrades to tracking open files and logs a warning.
package filelock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaypatrick/ad-blocking/internal/integrity"
)

// ErrLocked is returned when a lock is already held by another holder.
var ErrLocked = errors.New("file is locked by another process")

// LockType distinguishes shared read locks from exclusive write locks.
type LockType int

const (
	// LockRead is a shared lock. Any number of readers may hold it at once.
	LockRead LockType = iota

	// LockWrite is an exclusive lock.
	LockWrite
)

// String returns the lowercase name of the lock type.
func (t LockType) String() string {
	if t == LockWrite {
		return "write"
	}
	return "read"
}

// Handle represents one held lock. Handles must be released via Release;
// releasing twice is a no-op.
type Handle struct {
	id          string
	path        string
	lockType    LockType
	acquiredAt  time.Time
	contentHash string

	svc  *Service
	file *os.File

	mu       sync.Mutex
	released bool
}

// ID returns the unique identifier assigned at acquisition.
func (h *Handle) ID() string { return h.id }

// Path returns the locked file's path.
func (h *Handle) Path() string { return h.path }

// LockType returns the kind of lock held.
func (h *Handle) LockType() LockType { return h.lockType }

// AcquiredAt returns the acquisition timestamp.
func (h *Handle) AcquiredAt() time.Time { return h.acquiredAt }

// ContentHash returns the SHA-384 hash captured at acquisition, or empty if
// hashing was not requested.
func (h *Handle) ContentHash() string { return h.contentHash }

// Release drops the lock and closes the underlying file.
// Safe to call multiple times; only the first call has any effect.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true

	var unlockErr error
	if flockSupported {
		unlockErr = funlockFile(h.file)
	}
	closeErr := h.file.Close()
	h.svc.untrack(h.id)

	slog.Debug("released file lock", "path", h.path, "type", h.lockType.String(), "lock_id", h.id)

	if unlockErr != nil {
		return fmt.Errorf("unlocking %s: %w", h.path, unlockErr)
	}
	return closeErr
}

// Service acquires and tracks advisory locks.
// Safe for concurrent use.
type Service struct {
	mu     sync.Mutex
	active map[string]*Handle

	warnOnce sync.Once
}

// NewService creates an empty lock service.
func NewService() *Service {
	return &Service{active: make(map[string]*Handle)}
}

// AcquireRead takes a shared lock on path and records the file's content
// hash so later VerifyIntegrity calls can detect modification.
func (s *Service) AcquireRead(path string) (*Handle, error) {
	return s.Acquire(path, LockRead, true)
}

// AcquireWrite takes an exclusive lock on path, creating the file if needed.
func (s *Service) AcquireWrite(path string) (*Handle, error) {
	return s.Acquire(path, LockWrite, false)
}

// Acquire takes a non-blocking advisory lock on path.
// Returns ErrLocked (wrapped) when another holder has a conflicting lock.
func (s *Service) Acquire(path string, lockType LockType, computeHash bool) (*Handle, error) {
	if !flockSupported {
		s.warnOnce.Do(func() {
			slog.Warn("advisory file locking unavailable on this platform, integrity tracking only")
		})
	}

	var f *os.File
	var err error
	if lockType == LockWrite {
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	} else {
		f, err = os.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s for %s lock: %w", path, lockType, err)
	}

	if flockSupported {
		if err := flockFile(f, lockType); err != nil {
			f.Close()
			if errors.Is(err, ErrLocked) {
				return nil, fmt.Errorf("%s: %w", path, ErrLocked)
			}
			return nil, fmt.Errorf("locking %s: %w", path, err)
		}
	}

	h := &Handle{
		id:         uuid.NewString(),
		path:       path,
		lockType:   lockType,
		acquiredAt: time.Now(),
		svc:        s,
		file:       f,
	}

	if computeHash {
		hash, err := integrity.HashReader(f)
		if err != nil {
			if flockSupported {
				_ = funlockFile(f)
			}
			f.Close()
			return nil, fmt.Errorf("hashing %s: %w", path, err)
		}
		// Rewind so the holder can still read through the descriptor.
		if _, err := f.Seek(0, 0); err != nil {
			if flockSupported {
				_ = funlockFile(f)
			}
			f.Close()
			return nil, fmt.Errorf("rewinding %s: %w", path, err)
		}
		h.contentHash = hash
	}

	s.mu.Lock()
	s.active[h.id] = h
	s.mu.Unlock()

	slog.Debug("acquired file lock",
		"path", path,
		"type", lockType.String(),
		"lock_id", h.id,
		"hashed", computeHash)

	return h, nil
}

// VerifyIntegrity recomputes the hash of path and compares it against
// expected. Returns true when the content is unchanged.
func (s *Service) VerifyIntegrity(path, expected string) (bool, error) {
	return integrity.VerifyFile(path, expected)
}

// ActiveCount reports the number of currently held locks.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// ReleaseAll releases every lock the service still tracks.
// Returns the first release error encountered, after attempting all.
func (s *Service) ReleaseAll() error {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := h.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Service) untrack(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}
