package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TempPattern is the CreateTemp pattern used for path's in-flight writes.
// Files matching it are never read back as committed data.
func TempPattern(path string) string {
	return "." + filepath.Base(path) + ".tmp-*"
}

// IsTempFile reports whether name was produced by TempPattern.
func IsTempFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") && strings.Contains(base, ".tmp-")
}

// AtomicWriter writes files with the temp-file + rename discipline:
// an observer sees either the old content or the new one, never a mix.
type AtomicWriter struct {
	// BeforeRename runs after the temp file is durable and before it replaces
	// the target. Returning an error aborts the write and leaves the target
	// untouched.
	BeforeRename func(tmpPath string) error
}

// WriteFile atomically replaces path with data.
func (w AtomicWriter) WriteFile(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, TempPattern(path))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		Close(tmpFile)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Chmod(mode); err != nil {
		Close(tmpFile)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		Close(tmpFile)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if w.BeforeRename != nil {
		if err := w.BeforeRename(tmpName); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	committed = true

	// The rename itself is only durable once the directory entry is flushed.
	if err := SyncDir(dir); err != nil {
		return fmt.Errorf("failed to sync directory: %w", err)
	}
	return nil
}

// WriteFileAtomic is AtomicWriter{}.WriteFile.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	return AtomicWriter{}.WriteFile(path, data, mode)
}

// SyncDir fsyncs a directory so that renames inside it survive a crash.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer Close(d)
	if err := d.Sync(); err != nil && !isUnsupportedSync(err) {
		return err
	}
	return nil
}
