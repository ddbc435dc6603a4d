// Package staging holds newly observed files in a pending state for a
// configurable grace window before any automated action is considered.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/filewarden/filewarden/internal/model"
	"github.com/filewarden/filewarden/internal/service"
	"github.com/filewarden/filewarden/internal/storage"
)

// DefaultGracePeriod is how long a file stays pending before release.
const DefaultGracePeriod = 7 * 24 * time.Hour

// Scheduler tracks pending files and releases them once their grace
// window elapses. It only handles timing: features are attached by the
// external classifier before a released file reaches the confidence
// engine.
type Scheduler struct {
	storage service.Storage
	grace   time.Duration
}

// NewScheduler creates a scheduler with the given grace period.
func NewScheduler(store service.Storage, grace time.Duration) *Scheduler {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Scheduler{
		storage: store,
		grace:   grace,
	}
}

// Observe enqueues a file into the pending set. Re-observing a path
// restarts its grace window.
func (s *Scheduler) Observe(ctx context.Context, path string, discoveredAt time.Time) error {
	file := &model.StagedFile{
		Path:         path,
		DiscoveredAt: discoveredAt,
		State:        model.StagingPending,
	}
	if err := s.storage.UpsertStagedFile(ctx, file); err != nil {
		return fmt.Errorf("failed to stage file: %w", err)
	}

	slog.Debug("Staged file", "path", path, "discovered_at", discoveredAt)
	return nil
}

// Withdraw marks a pending file as withdrawn: the user deleted or moved
// it before the grace period elapsed. A withdrawal is logged but is not
// a correction signal; the learning updater is never invoked for it.
func (s *Scheduler) Withdraw(ctx context.Context, path string) error {
	applied, err := s.storage.MarkStagedState(ctx, path, model.StagingPending, model.StagingWithdrawn)
	if err != nil {
		return fmt.Errorf("failed to withdraw staged file: %w", err)
	}
	if !applied {
		// Already released or withdrawn; nothing to do.
		return nil
	}

	slog.Info("Staged file withdrawn", "path", path)
	return nil
}

// Tick releases every pending entry whose grace window has elapsed as of
// now. Entries whose file vanished while pending are withdrawn instead
// of released.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]model.StagedFile, error) {
	cutoff := now.Add(-s.grace)
	due, err := s.storage.ListDueStagedFiles(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list due staged files: %w", err)
	}

	var released []model.StagedFile
	for _, file := range due {
		select {
		case <-ctx.Done():
			return released, ctx.Err()
		default:
		}

		if _, statErr := os.Lstat(file.Path); statErr != nil {
			if errors.Is(statErr, os.ErrNotExist) {
				if withdrawErr := s.Withdraw(ctx, file.Path); withdrawErr != nil {
					slog.Error("Failed to withdraw vanished file",
						"path", file.Path,
						"error", withdrawErr)
				}
				continue
			}
			slog.Warn("Failed to stat staged file, leaving pending",
				"path", file.Path,
				"error", statErr)
			continue
		}

		applied, markErr := s.storage.MarkStagedState(ctx, file.Path, model.StagingPending, model.StagingReleased)
		if markErr != nil {
			slog.Error("Failed to release staged file",
				"path", file.Path,
				"error", markErr)
			continue
		}
		if !applied {
			// Withdrawn between listing and release.
			continue
		}

		file.State = model.StagingReleased
		released = append(released, file)
	}

	if len(released) > 0 {
		slog.Info("Released staged files", "count", len(released))
	}

	return released, nil
}

// Run ticks on the given interval until the context is canceled, passing
// each released file to emit.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, emit func(model.StagedFile)) error {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			released, err := s.Tick(ctx, now)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				slog.Error("Staging tick failed", "error", err)
				continue
			}
			for _, file := range released {
				emit(file)
			}
		}
	}
}

// Pending returns the staged entry for a path, if any.
func (s *Scheduler) Pending(ctx context.Context, path string) (*model.StagedFile, error) {
	file, err := s.storage.GetStagedFile(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrStagedFileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get staged file: %w", err)
	}
	return file, nil
}
