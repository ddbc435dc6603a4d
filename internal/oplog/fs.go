// Package oplog executes file mutations behind the append-only operation
// log and provides the rollback engine over it.
package oplog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/filewarden/filewarden/internal/common"
)

// FileSystem abstracts the mutations the rollback engine performs, so the
// engine can be tested against a fake.
type FileSystem interface {
	// Rename moves a file, failing if the target already exists.
	Rename(ctx context.Context, oldPath, newPath string) error
	// Exists reports whether a path exists.
	Exists(path string) bool
}

// OSFileSystem performs real filesystem mutations with a bounded timeout.
// A timed-out mutation is treated as failed, not ambiguous.
type OSFileSystem struct {
	Timeout time.Duration
}

// DefaultMutateTimeout bounds a single rename.
const DefaultMutateTimeout = 10 * time.Second

// NewOSFileSystem creates a real filesystem with the given mutation timeout.
func NewOSFileSystem(timeout time.Duration) *OSFileSystem {
	if timeout <= 0 {
		timeout = DefaultMutateTimeout
	}
	return &OSFileSystem{Timeout: timeout}
}

// Rename moves oldPath to newPath without clobbering an existing target,
// creating the destination directory if needed.
func (fs *OSFileSystem) Rename(ctx context.Context, oldPath, newPath string) error {
	ctx, cancel := context.WithTimeout(ctx, fs.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		if _, err := os.Lstat(newPath); err == nil {
			done <- fmt.Errorf("target %s already exists", newPath)
			return
		}
		if err := os.MkdirAll(filepath.Dir(newPath), 0750); err != nil {
			done <- fmt.Errorf("failed to create directory for %s: %w", newPath, err)
			return
		}
		done <- os.Rename(oldPath, newPath)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to rename %s to %s: %w", oldPath, newPath, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: rename %s to %s", common.ErrMutationTimeout, oldPath, newPath)
	}
}

// Exists reports whether a path exists.
func (fs *OSFileSystem) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
