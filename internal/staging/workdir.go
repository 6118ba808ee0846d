package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"sieve/internal/services"
)

const lockSuffix = ".lock"

// WorkDir is a per-run staging directory held exclusively through a lock file
// beside it. Only the holder may write into Path.
type WorkDir struct {
	Path     string
	lockPath string
	lock     *flock.Flock
}

// Acquire creates <stagingDir>/<runID> and takes its lock. A directory held by
// another process or worker fails with a transient error.
func Acquire(stagingDir, runID string) (*WorkDir, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}
	dir := filepath.Join(stagingDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "staging", "create work dir", "Unable to create staging directory", err)
	}

	lockPath := dir + lockSuffix
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "staging", "lock work dir", "Unable to lock staging directory", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrTransient, "staging", "lock work dir",
			fmt.Sprintf("Staging directory %s is in use", dir), nil)
	}
	return &WorkDir{Path: dir, lockPath: lockPath, lock: lock}, nil
}

// Release drops the lock and leaves the directory in place for resume.
func (w *WorkDir) Release() error {
	if w == nil || w.lock == nil {
		return nil
	}
	return w.lock.Unlock()
}

// Remove deletes the directory and its lock file, then releases the lock.
func (w *WorkDir) Remove() error {
	if w == nil {
		return nil
	}
	err := os.RemoveAll(w.Path)
	if rmErr := os.Remove(w.lockPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	if unlockErr := w.Release(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

// Locked reports whether the work dir for runID is currently held.
func Locked(stagingDir, runID string) bool {
	lockPath := filepath.Join(stagingDir, runID) + lockSuffix
	if _, err := os.Stat(lockPath); err != nil {
		return false
	}
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
		return false
	}
	return true
}
