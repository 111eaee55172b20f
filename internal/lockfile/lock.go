package lockfile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"github.com/giantswarm/enginectl/internal/fileutil"
)

// retryInterval is the interval between attempts to take a held lock.
const retryInterval = 50 * time.Millisecond

// Lock is a held exclusive file lock.
type Lock struct {
	fl  *flock.Flock
	log *slog.Logger
}

// Acquire takes an exclusive lock on path, creating the file and its parent
// directory if needed. It retries until the lock is taken or ctx is done.
func Acquire(ctx context.Context, path string, logger *slog.Logger) (*Lock, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fileutil.EnsureDirForFile(path); err != nil {
		return nil, fmt.Errorf("prepare lock file: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, retryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !locked {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", path, ctx.Err())
		}
		return nil, fmt.Errorf("acquire lock %s: lock not acquired", path)
	}

	logger.Debug("acquired lifecycle lock", "path", path)
	return &Lock{fl: fl, log: logger}, nil
}

// Release unlocks and closes the lock file. The file stays on disk; removing
// it could race with another process that has just opened it.
// Safe to call on a nil Lock.
func (l *Lock) Release() {
	if l == nil || l.fl == nil {
		return
	}
	if err := l.fl.Close(); err != nil {
		l.log.Debug("failed to release lifecycle lock", "path", l.fl.Path(), "error", err)
	}
	l.fl = nil
}
