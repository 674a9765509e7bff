package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultLockTimeout bounds how long a writer waits for the lock file.
const DefaultLockTimeout = 10 * time.Second

const (
	lockInitialBackoff = 10 * time.Millisecond
	lockMaxBackoff     = 500 * time.Millisecond
)

// lock takes the exclusive lock on the lock file, polling with exponential
// backoff until it is free or the timeout expires. The returned func
// releases it.
func (f *FileBackend) lock(ctx context.Context) (func(), error) {
	path := filepath.Join(f.dir, LockFile)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.lockTimeout)
	defer cancel()

	backoff := lockInitialBackoff
	for {
		acquired, err := tryLock(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			file.Close()
			return nil, fmt.Errorf("timed out waiting for lock %s: %w", path, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, lockMaxBackoff)
	}

	return func() {
		if err := releaseLock(file); err != nil {
			f.logger.Warn("failed to release lock file", "path", path, "error", err)
		}
		file.Close()
	}, nil
}
