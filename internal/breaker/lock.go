package breaker

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// ErrLockTimeout is returned when the breaker's mutual-exclusion lock
// cannot be acquired within the bounded wait. Callers abandon the
// operation for this cycle and retry on the next pulse; they never block
// indefinitely.
var ErrLockTimeout = errors.New("breaker lock acquisition timed out")

// acquirePoll is how often a blocked acquirer retries the flock.
const acquirePoll = 50 * time.Millisecond

// FileLock serializes read-modify-write access to the breaker state
// record across overlapping pulse invocations via an exclusive flock.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a lock handle for the given path. The lock is not
// held until Acquire succeeds.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Acquire takes the exclusive lock, polling until the deadline. On
// timeout it returns ErrLockTimeout with nothing held.
func (fl *FileLock) Acquire(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := fl.tryLock()
		if err == nil {
			return nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s: %w", fl.path, ErrLockTimeout)
		}
		time.Sleep(acquirePoll)
	}
}

func (fl *FileLock) tryLock() error {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return syscall.EWOULDBLOCK
		}
		return fmt.Errorf("acquire lock: %w", err)
	}

	// Record the holder for post-mortem inspection.
	f.Truncate(0)
	f.Seek(0, 0)
	fmt.Fprintf(f, "%d\n", os.Getpid())

	fl.file = f
	return nil
}

// Release drops the lock. Safe to call when nothing is held.
func (fl *FileLock) Release() error {
	if fl.file == nil {
		return nil
	}
	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		fl.file.Close()
		fl.file = nil
		return fmt.Errorf("release lock: %w", err)
	}
	err := fl.file.Close()
	fl.file = nil
	return err
}
