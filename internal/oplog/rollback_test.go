package oplog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filewarden/filewarden/internal/common"
	"github.com/filewarden/filewarden/internal/model"
	"github.com/filewarden/filewarden/internal/storage"
	"github.com/filewarden/filewarden/internal/testutil"
)

func setupEngine(t *testing.T) (*Engine, *storage.SQLiteStorage, string) {
	t.Helper()
	store := testutil.SetupTestDB(t)
	return NewEngine(store, NewOSFileSystem(0)), store, t.TempDir()
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func makeCandidate(source, proposed string) model.CandidateAction {
	return model.NewCandidateAction(source, proposed, "reports", "classifier", nil)
}

func TestEngine_Execute(t *testing.T) {
	engine, store, tmpDir := setupEngine(t)
	ctx := context.Background()

	t.Run("successful move commits to active", func(t *testing.T) {
		source := filepath.Join(tmpDir, "inbox", "a.pdf")
		target := filepath.Join(tmpDir, "sorted", "a.pdf")
		writeFile(t, source, "content a")

		record, err := engine.Execute(ctx, makeCandidate(source, target), 0.9)
		require.NoError(t, err)

		assert.Equal(t, model.StatusActive, record.Status)
		assert.FileExists(t, target)
		assert.NoFileExists(t, source)

		stored, err := store.GetOperation(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusActive, stored.Status)
		assert.Equal(t, 0.9, stored.Confidence)
	})

	t.Run("missing source leaves a failed record", func(t *testing.T) {
		source := filepath.Join(tmpDir, "inbox", "missing.pdf")
		target := filepath.Join(tmpDir, "sorted", "missing.pdf")

		record, err := engine.Execute(ctx, makeCandidate(source, target), 0.9)
		require.Error(t, err)
		require.NotNil(t, record)

		stored, storeErr := store.GetOperation(ctx, record.ID)
		require.NoError(t, storeErr)
		assert.Equal(t, model.StatusFailed, stored.Status)
	})

	t.Run("occupied target never clobbers", func(t *testing.T) {
		source := filepath.Join(tmpDir, "inbox", "b.pdf")
		target := filepath.Join(tmpDir, "sorted", "b.pdf")
		writeFile(t, source, "new content")
		writeFile(t, target, "existing content")

		_, err := engine.Execute(ctx, makeCandidate(source, target), 0.9)
		require.Error(t, err)

		data, readErr := os.ReadFile(target)
		require.NoError(t, readErr)
		assert.Equal(t, "existing content", string(data))
		assert.FileExists(t, source)
	})
}

func TestEngine_Undo(t *testing.T) {
	engine, store, tmpDir := setupEngine(t)
	ctx := context.Background()

	t.Run("restores the file and marks rolled back", func(t *testing.T) {
		source := filepath.Join(tmpDir, "inbox", "u1.pdf")
		target := filepath.Join(tmpDir, "sorted", "u1.pdf")
		writeFile(t, source, "undo me")

		record, err := engine.Execute(ctx, makeCandidate(source, target), 0.9)
		require.NoError(t, err)

		undone, err := engine.Undo(ctx, record.ID)
		require.NoError(t, err)

		assert.Equal(t, model.StatusRolledBack, undone.Status)
		assert.FileExists(t, source)
		assert.NoFileExists(t, target)
	})

	t.Run("second undo is a no-op", func(t *testing.T) {
		source := filepath.Join(tmpDir, "inbox", "u2.pdf")
		target := filepath.Join(tmpDir, "sorted", "u2.pdf")
		writeFile(t, source, "undo twice")

		record, err := engine.Execute(ctx, makeCandidate(source, target), 0.9)
		require.NoError(t, err)

		_, err = engine.Undo(ctx, record.ID)
		require.NoError(t, err)

		again, err := engine.Undo(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusRolledBack, again.Status)
		assert.FileExists(t, source)
	})

	t.Run("moved-away file surfaces stale state", func(t *testing.T) {
		source := filepath.Join(tmpDir, "inbox", "u3.pdf")
		target := filepath.Join(tmpDir, "sorted", "u3.pdf")
		writeFile(t, source, "will vanish")

		record, err := engine.Execute(ctx, makeCandidate(source, target), 0.9)
		require.NoError(t, err)

		// Someone moved the file outside the system.
		require.NoError(t, os.Rename(target, filepath.Join(tmpDir, "elsewhere.pdf")))

		_, err = engine.Undo(ctx, record.ID)
		require.ErrorIs(t, err, common.ErrStaleState)

		stored, getErr := store.GetOperation(ctx, record.ID)
		require.NoError(t, getErr)
		assert.Equal(t, model.StatusActive, stored.Status, "stale state must not change the record")
	})

	t.Run("occupied original path fails the rollback", func(t *testing.T) {
		source := filepath.Join(tmpDir, "inbox", "u4.pdf")
		target := filepath.Join(tmpDir, "sorted", "u4.pdf")
		writeFile(t, source, "original")

		record, err := engine.Execute(ctx, makeCandidate(source, target), 0.9)
		require.NoError(t, err)

		// A new file took the original spot.
		writeFile(t, source, "squatter")

		_, err = engine.Undo(ctx, record.ID)
		require.Error(t, err)

		stored, getErr := store.GetOperation(ctx, record.ID)
		require.NoError(t, getErr)
		assert.Equal(t, model.StatusRollbackFailed, stored.Status)

		data, readErr := os.ReadFile(source)
		require.NoError(t, readErr)
		assert.Equal(t, "squatter", string(data), "occupant must never be clobbered")
		assert.FileExists(t, target, "moved file must stay where the record says")
	})

	t.Run("failed operations cannot be undone", func(t *testing.T) {
		source := filepath.Join(tmpDir, "inbox", "u5.pdf")
		target := filepath.Join(tmpDir, "sorted", "u5.pdf")

		record, err := engine.Execute(ctx, makeCandidate(source, target), 0.9)
		require.Error(t, err)

		_, err = engine.Undo(ctx, record.ID)
		assert.Error(t, err)
	})
}

func TestEngine_UndoRange(t *testing.T) {
	engine, _, tmpDir := setupEngine(t)
	ctx := context.Background()
	since := time.Now().UTC().Add(-time.Hour)

	t.Run("chained moves reverse in order", func(t *testing.T) {
		first := filepath.Join(tmpDir, "chain", "start.pdf")
		second := filepath.Join(tmpDir, "chain", "middle.pdf")
		third := filepath.Join(tmpDir, "chain", "end.pdf")
		writeFile(t, first, "chained")

		_, err := engine.Execute(ctx, makeCandidate(first, second), 0.9)
		require.NoError(t, err)
		_, err = engine.Execute(ctx, makeCandidate(second, third), 0.9)
		require.NoError(t, err)

		result, err := engine.UndoRange(ctx, since)
		require.NoError(t, err)

		assert.Equal(t, 2, result.Undone)
		assert.Equal(t, 0, result.Failed)
		assert.FileExists(t, first, "reverse order must walk the chain back to the start")
		assert.NoFileExists(t, second)
		assert.NoFileExists(t, third)
	})

	t.Run("individual failure does not abort the batch", func(t *testing.T) {
		okSource := filepath.Join(tmpDir, "batch", "ok.pdf")
		okTarget := filepath.Join(tmpDir, "batch", "sorted", "ok.pdf")
		badSource := filepath.Join(tmpDir, "batch", "bad.pdf")
		badTarget := filepath.Join(tmpDir, "batch", "sorted", "bad.pdf")
		writeFile(t, okSource, "fine")
		writeFile(t, badSource, "doomed")

		_, err := engine.Execute(ctx, makeCandidate(okSource, okTarget), 0.9)
		require.NoError(t, err)
		bad, err := engine.Execute(ctx, makeCandidate(badSource, badTarget), 0.9)
		require.NoError(t, err)

		// Sabotage one target.
		require.NoError(t, os.Remove(badTarget))

		result, err := engine.UndoRange(ctx, time.Now().UTC().Add(-time.Minute))
		require.NoError(t, err)

		assert.GreaterOrEqual(t, result.Undone, 1)
		assert.Equal(t, 1, result.Failed)
		assert.FileExists(t, okSource)

		var badOutcome *model.UndoOutcome
		for i := range result.Outcomes {
			if result.Outcomes[i].RecordID == bad.ID {
				badOutcome = &result.Outcomes[i]
			}
		}
		require.NotNil(t, badOutcome)
		assert.False(t, badOutcome.Undone)
		assert.NotEmpty(t, badOutcome.Error)
	})
}

func TestEngine_RecordLocks(t *testing.T) {
	engine, _, tmpDir := setupEngine(t)
	ctx := context.Background()

	t.Run("lock entries are released after undo", func(t *testing.T) {
		source := filepath.Join(tmpDir, "inbox", "l1.pdf")
		target := filepath.Join(tmpDir, "sorted", "l1.pdf")
		writeFile(t, source, "locked")

		record, err := engine.Execute(ctx, makeCandidate(source, target), 0.9)
		require.NoError(t, err)

		_, err = engine.Undo(ctx, record.ID)
		require.NoError(t, err)

		engine.locksMu.Lock()
		remaining := len(engine.locks)
		engine.locksMu.Unlock()
		assert.Zero(t, remaining, "a long-lived process must not accumulate per-record locks")
	})

	t.Run("concurrent same-id undos serialize and clean up", func(t *testing.T) {
		source := filepath.Join(tmpDir, "inbox", "l2.pdf")
		target := filepath.Join(tmpDir, "sorted", "l2.pdf")
		writeFile(t, source, "contended")

		record, err := engine.Execute(ctx, makeCandidate(source, target), 0.9)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = engine.Undo(ctx, record.ID)
			}(i)
		}
		wg.Wait()

		for i, undoErr := range errs {
			assert.NoError(t, undoErr, "undo %d", i)
		}
		assert.FileExists(t, source)

		engine.locksMu.Lock()
		remaining := len(engine.locks)
		engine.locksMu.Unlock()
		assert.Zero(t, remaining)
	})
}

func TestEngine_Reconcile(t *testing.T) {
	engine, store, _ := setupEngine(t)
	ctx := context.Background()

	// A crash between rename and commit leaves a bare INTENT row.
	stale := &model.OperationRecord{
		OriginalPath: "/inbox/crashed.pdf",
		OriginalName: "crashed.pdf",
		NewPath:      "/sorted/crashed.pdf",
		NewName:      "crashed.pdf",
		ExecutedAt:   time.Now().UTC().Add(-2 * time.Hour),
		Confidence:   0.9,
		SourceSystem: "classifier",
	}
	require.NoError(t, store.BeginIntent(ctx, stale))

	records, err := engine.Reconcile(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, stale.ID, records[0].ID)
	assert.Equal(t, model.StatusIntent, records[0].Status)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(nil))
	assert.False(t, isTransient(os.ErrNotExist))
	assert.False(t, isTransient(os.ErrExist))
	assert.False(t, isTransient(common.ErrMutationTimeout))
	assert.True(t, isTransient(assert.AnError))
}
