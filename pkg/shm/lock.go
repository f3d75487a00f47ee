package shm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/shmstate-org/shmstate/pkg/metrics"
	"github.com/shmstate-org/shmstate/util"
)

// ErrLockTimeout means a region lock was not acquired within its budget. It
// is retryable; best-effort paths such as logging swallow it instead of
// propagating.
var ErrLockTimeout = errors.New("timeout acquiring shared memory lock")

const lockPollInterval = 25 * time.Millisecond

// DefaultLockTimeout is the data-lock budget for store operations.
const DefaultLockTimeout = 2 * time.Second

// FileLock is the advisory cross-process mutex for one named region. The
// lock file lives in the shared temp directory, distinct from the region's
// memory object. flock also serializes goroutines within one process.
type FileLock struct {
	fl      *flock.Flock
	timeout time.Duration
}

// LockPath returns the deterministic lock file path for a resource name.
func LockPath(name string) string {
	return filepath.Join(os.TempDir(), segmentPrefix+name+".lock")
}

func NewFileLock(name string, timeout time.Duration) *FileLock {
	return &FileLock{fl: flock.New(LockPath(name)), timeout: timeout}
}

// Acquire takes the exclusive lock, polling until the configured timeout.
func (l *FileLock) Acquire() error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	locked, err := l.fl.TryLockContext(ctx, lockPollInterval)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if !locked {
		metrics.LockTimeouts.WithLabelValues(filepath.Base(l.fl.Path())).Inc()
		return ErrLockTimeout
	}
	return nil
}

func (l *FileLock) Release() {
	if err := l.fl.Unlock(); err != nil {
		util.Error("releasing lock %s: %v", l.fl.Path(), err)
	}
}
