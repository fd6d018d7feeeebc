package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/hpungsan/wpswap/internal/errors"
)

// LockFileName is the lock held while a run mutates a site.
const LockFileName = "wpswap.lock"

// Lock takes the exclusive run lock in baseDir without waiting.
// The returned function releases it.
func Lock(baseDir string) (func() error, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("create state directory: %w", err))
	}
	path := filepath.Join(baseDir, LockFileName)
	lock := flock.New(path)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("acquire lock: %w", err))
	}
	if !ok {
		return nil, errors.NewRunLocked(path)
	}
	return lock.Unlock, nil
}
