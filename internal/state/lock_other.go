//go:build !unix

package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrLocked = errors.New("state file is locked by another marksync process")

// Lock falls back to an exclusively created marker file where flock is unavailable.
type Lock struct {
	path string
}

func AcquireLock(statePath string) (*Lock, error) {
	lockPath := statePath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	_ = f.Close()
	return &Lock{path: lockPath}, nil
}

func (l *Lock) Path() string { return l.path }

func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	return err
}
