package oplog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/filewarden/filewarden/internal/common"
	"github.com/filewarden/filewarden/internal/model"
	"github.com/filewarden/filewarden/internal/service"
)

// Engine executes file mutations through the write-ahead operation log
// and undoes them. The log is the authoritative history of moves; the
// filesystem is not.
type Engine struct {
	storage service.Storage
	fs      FileSystem
	locks   map[int64]*recordLock
	locksMu sync.Mutex
	retry   service.RetryOptions
}

// NewEngine creates a rollback engine over the given storage and filesystem.
func NewEngine(store service.Storage, fs FileSystem) *Engine {
	return &Engine{
		storage: store,
		fs:      fs,
		locks:   make(map[int64]*recordLock),
		retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Execute performs a mutation under the intent protocol: the INTENT row
// is written before the rename and committed to ACTIVE only after the
// rename physically succeeded. A failed rename leaves a FAILED row; no
// retry ever happens after the commit.
func (e *Engine) Execute(ctx context.Context, candidate model.CandidateAction, confidence float64) (*model.OperationRecord, error) {
	record := &model.OperationRecord{
		OriginalPath: candidate.SourcePath,
		OriginalName: filepath.Base(candidate.SourcePath),
		NewPath:      candidate.ProposedPath,
		NewName:      filepath.Base(candidate.ProposedPath),
		Confidence:   confidence,
		SourceSystem: candidate.SourceSystem,
	}

	if err := e.storage.BeginIntent(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to write intent: %w", err)
	}

	// Transient I/O failures are retried at the mutation step only.
	renameErr := common.WithRetry(ctx, func() error {
		if err := e.fs.Rename(ctx, record.OriginalPath, record.NewPath); err != nil {
			return &common.RetryableError{Err: err, Retryable: isTransient(err)}
		}
		return nil
	}, e.retry)

	if renameErr != nil {
		if markErr := e.storage.MarkIntentFailed(ctx, record.ID); markErr != nil {
			slog.Error("Failed to mark intent failed",
				"operation_id", record.ID,
				"error", markErr)
		}
		record.Status = model.StatusFailed
		return record, fmt.Errorf("mutation failed: %w", renameErr)
	}

	executedAt := time.Now().UTC()
	if err := e.storage.CommitIntent(ctx, record.ID, executedAt); err != nil {
		// The mutation happened but the commit did not: the stale INTENT
		// row keeps it discoverable by the reconciliation scan.
		return record, fmt.Errorf("mutation succeeded but commit failed: %w", err)
	}

	record.Status = model.StatusActive
	record.ExecutedAt = executedAt

	slog.Info("Executed file action",
		"operation_id", record.ID,
		"from", record.OriginalPath,
		"to", record.NewPath,
		"confidence", record.Confidence)

	return record, nil
}

// Undo reverses one operation. It verifies the file still sits where the
// record says before touching anything, and is idempotent: undoing an
// already rolled-back record is a no-op success.
func (e *Engine) Undo(ctx context.Context, id int64) (*model.OperationRecord, error) {
	lock := e.lockRecord(id)
	defer e.unlockRecord(id, lock)

	return e.undoLocked(ctx, id)
}

func (e *Engine) undoLocked(ctx context.Context, id int64) (*model.OperationRecord, error) {
	record, err := e.storage.GetOperation(ctx, id)
	if err != nil {
		return nil, err
	}

	switch record.Status {
	case model.StatusRolledBack:
		// Idempotent: the second undo observes ROLLED_BACK and no-ops.
		return record, nil
	case model.StatusActive:
	default:
		return record, fmt.Errorf("operation %d has status %s and cannot be undone", id, record.Status)
	}

	// An ACTIVE record's new_path must reflect the on-disk location; if
	// the file moved again since, surface it instead of guessing.
	if !e.fs.Exists(record.NewPath) {
		return record, fmt.Errorf("%w: %s is gone (operation %d)", common.ErrStaleState, record.NewPath, id)
	}

	if err := e.restore(ctx, record); err != nil {
		if ok, casErr := e.storage.UpdateOperationStatus(ctx, id, model.StatusActive, model.StatusRollbackFailed); casErr != nil {
			slog.Error("Failed to mark rollback failure", "operation_id", id, "error", casErr)
		} else if ok {
			record.Status = model.StatusRollbackFailed
		}
		return record, err
	}

	ok, err := e.storage.UpdateOperationStatus(ctx, id, model.StatusActive, model.StatusRolledBack)
	if err != nil {
		return record, fmt.Errorf("failed to mark rollback: %w", err)
	}
	if ok {
		record.Status = model.StatusRolledBack
	} else {
		// Another process finished the transition first.
		refreshed, getErr := e.storage.GetOperation(ctx, id)
		if getErr == nil {
			record = refreshed
		}
	}

	slog.Info("Rolled back file action",
		"operation_id", id,
		"restored", record.OriginalPath)

	return record, nil
}

// restore moves the file back, staging through a unique temp name so a
// collision on the original path fails the final rename cleanly instead
// of clobbering anything.
func (e *Engine) restore(ctx context.Context, record *model.OperationRecord) error {
	if e.fs.Exists(record.OriginalPath) {
		return fmt.Errorf("cannot restore %s: original path %s is occupied", record.NewPath, record.OriginalPath)
	}

	temp := fmt.Sprintf("%s.restore-%d", record.OriginalPath, record.ID)
	if err := e.fs.Rename(ctx, record.NewPath, temp); err != nil {
		return fmt.Errorf("failed to stage restore: %w", err)
	}

	if err := e.fs.Rename(ctx, temp, record.OriginalPath); err != nil {
		// Put the staged copy back so the record stays accurate.
		if backErr := e.fs.Rename(ctx, temp, record.NewPath); backErr != nil {
			slog.Error("Failed to unstage restore; file left at temp path",
				"operation_id", record.ID,
				"temp_path", temp,
				"error", backErr)
		}
		return fmt.Errorf("failed to complete restore: %w", err)
	}

	return nil
}

// UndoRange undoes all ACTIVE records executed at or after since, newest
// first. Later operations may depend on earlier ones, so reverse
// chronological order minimizes target-path collisions. Individual
// failures do not abort the batch; cancellation is honored only at
// record boundaries, never mid-mutation.
func (e *Engine) UndoRange(ctx context.Context, since time.Time) (*model.BatchUndoResult, error) {
	records, err := e.storage.ListActiveOperationsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}

	result := &model.BatchUndoResult{}
	for _, record := range records {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		undone, undoErr := e.Undo(ctx, record.ID)
		outcome := model.UndoOutcome{RecordID: record.ID}
		switch {
		case undoErr != nil:
			outcome.Status = model.StatusActive
			if undone != nil {
				outcome.Status = undone.Status
			}
			outcome.Error = undoErr.Error()
			result.Failed++
		case undone.Status == model.StatusRolledBack:
			outcome.Status = undone.Status
			outcome.Undone = true
			result.Undone++
		default:
			outcome.Status = undone.Status
			result.Skipped++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	slog.Info("Batch undo complete",
		"since", since,
		"undone", result.Undone,
		"failed", result.Failed,
		"skipped", result.Skipped)

	return result, nil
}

// Reconcile lists INTENT rows older than the cutoff: possible unlogged
// mutations from a crash between the rename and the commit. They are
// reported, never auto-resolved.
func (e *Engine) Reconcile(ctx context.Context, cutoff time.Time) ([]model.OperationRecord, error) {
	return e.storage.ListStaleIntents(ctx, cutoff)
}

// Search filters the operation log for targeted recovery.
func (e *Engine) Search(ctx context.Context, query service.OperationQuery) ([]model.OperationRecord, error) {
	return e.storage.SearchOperations(ctx, query)
}

// recordLock serializes same-id undos while unrelated undos proceed
// concurrently. Entries are reference counted so the map never outlives
// the undos holding them.
type recordLock struct {
	mu   sync.Mutex
	refs int
}

func (e *Engine) lockRecord(id int64) *recordLock {
	e.locksMu.Lock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &recordLock{}
		e.locks[id] = lock
	}
	lock.refs++
	e.locksMu.Unlock()

	lock.mu.Lock()
	return lock
}

func (e *Engine) unlockRecord(id int64, lock *recordLock) {
	lock.mu.Unlock()

	e.locksMu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(e.locks, id)
	}
	e.locksMu.Unlock()
}

// isTransient reports whether a rename failure is worth retrying.
// Timeouts, missing sources and occupied targets are permanent; locked or
// momentarily unavailable files get the bounded backoff.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, common.ErrMutationTimeout) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrExist) {
		return false
	}
	msg := err.Error()
	return !strings.Contains(msg, "already exists") &&
		!strings.Contains(msg, "no such file")
}
