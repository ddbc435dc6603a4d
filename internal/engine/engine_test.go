package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filewarden/filewarden/internal/confidence"
	"github.com/filewarden/filewarden/internal/identity"
	"github.com/filewarden/filewarden/internal/learning"
	"github.com/filewarden/filewarden/internal/model"
	"github.com/filewarden/filewarden/internal/oplog"
	"github.com/filewarden/filewarden/internal/service"
	"github.com/filewarden/filewarden/internal/storage"
	"github.com/filewarden/filewarden/internal/testutil"
)

type testEnv struct {
	engine  *Engine
	storage *storage.SQLiteStorage
	updater *learning.Updater
	inbox   string
	managed string
	trash   string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	tmpDir := t.TempDir()
	inbox := filepath.Join(tmpDir, "inbox")
	managed := filepath.Join(tmpDir, "managed")
	trash := filepath.Join(tmpDir, "trash")
	require.NoError(t, os.MkdirAll(inbox, 0o750))
	require.NoError(t, os.MkdirAll(managed, 0o750))

	ctx := context.Background()

	store := testutil.SetupTestDB(t)

	updater, err := learning.NewUpdater(ctx, store, learning.DefaultConfig())
	require.NoError(t, err)

	executor := oplog.NewEngine(store, oplog.NewOSFileSystem(0))
	identitySvc := identity.NewService(identity.Config{
		PartialBytes:  4,
		MonitoredDirs: []string{managed},
		ScratchDirs:   []string{inbox},
	})

	scoring := confidence.Config{
		Weights: map[string]float64{
			"keyword_match":                 0.5,
			confidence.SignalHistoricalFreq: 0.5,
		},
		AutoThreshold:   0.85,
		ReviewThreshold: 0.40,
		TieMargin:       0.02,
	}

	eng := New(store, identitySvc, executor, updater, updater, Config{
		Scoring:  scoring,
		TrashDir: trash,
	})

	return &testEnv{
		engine:  eng,
		storage: store,
		updater: updater,
		inbox:   inbox,
		managed: managed,
		trash:   trash,
	}
}

func (env *testEnv) newCandidate(t *testing.T, name, content string, features model.FeatureVector) model.CandidateAction {
	t.Helper()
	source := filepath.Join(env.inbox, name)
	require.NoError(t, os.WriteFile(source, []byte(content), 0o600))
	return model.NewCandidateAction(
		source,
		filepath.Join(env.managed, "reports", name),
		"reports",
		"classifier",
		features,
	)
}

type failingLearner struct {
	calls int
}

func (f *failingLearner) ApplyCorrection(_ context.Context, _ model.CandidateAction, _ string) error {
	f.calls++
	return errors.New("pattern store unavailable")
}

func TestEngine_ProposeAndMaybeExecute(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	t.Run("high confidence auto-executes", func(t *testing.T) {
		candidate := env.newCandidate(t, "auto.pdf", "auto content", model.FeatureVector{
			"keyword_match":                 0.9,
			confidence.SignalHistoricalFreq: 0.8,
		})

		result, err := env.engine.ProposeAndMaybeExecute(ctx, candidate)
		require.NoError(t, err)

		assert.Equal(t, service.OutcomeExecuted, result.Outcome)
		require.NotNil(t, result.Decision)
		assert.InDelta(t, 0.85, result.Decision.Confidence, 1e-9)
		require.NotNil(t, result.Record)
		assert.Equal(t, model.StatusActive, result.Record.Status)
		assert.FileExists(t, candidate.ProposedPath)
		assert.NoFileExists(t, candidate.SourcePath)
	})

	t.Run("mid confidence queues for review", func(t *testing.T) {
		candidate := env.newCandidate(t, "review.pdf", "review content", model.FeatureVector{
			"keyword_match": 0.9,
		})

		result, err := env.engine.ProposeAndMaybeExecute(ctx, candidate)
		require.NoError(t, err)

		assert.Equal(t, service.OutcomeQueued, result.Outcome)
		assert.NotZero(t, result.ReviewID)
		assert.FileExists(t, candidate.SourcePath, "queued candidates leave the file untouched")

		items, err := env.engine.GetPendingReview(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, candidate.SourcePath, items[0].Candidate.SourcePath)
		assert.NotEmpty(t, items[0].Explanations)
	})

	t.Run("low confidence is rejected without a log entry", func(t *testing.T) {
		candidate := env.newCandidate(t, "reject.pdf", "reject content", model.FeatureVector{
			"keyword_match": 0.5,
		})

		result, err := env.engine.ProposeAndMaybeExecute(ctx, candidate)
		require.NoError(t, err)

		assert.Equal(t, service.OutcomeRejected, result.Outcome)
		assert.FileExists(t, candidate.SourcePath)

		records, err := env.engine.Search(ctx, service.OperationQuery{PathContains: "reject.pdf"})
		require.NoError(t, err)
		assert.Empty(t, records, "rejection must not touch the operation log")
	})
}

func TestEngine_DuplicateGate(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	t.Run("identical copy in scratch is discarded to trash", func(t *testing.T) {
		// The organized copy already sits at the proposed path.
		existing := filepath.Join(env.managed, "reports", "dup.pdf")
		require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o750))
		require.NoError(t, os.WriteFile(existing, []byte("duplicate body"), 0o600))

		candidate := env.newCandidate(t, "dup.pdf", "duplicate body", model.FeatureVector{
			"keyword_match": 1.0,
		})

		result, err := env.engine.ProposeAndMaybeExecute(ctx, candidate)
		require.NoError(t, err)

		assert.Equal(t, service.OutcomeDuplicate, result.Outcome)
		require.NotNil(t, result.Duplicate)
		assert.True(t, result.Duplicate.Discarded)
		assert.Equal(t, existing, result.Duplicate.ExistingPath)

		assert.NoFileExists(t, candidate.SourcePath)
		assert.FileExists(t, existing, "organized copy stays put")

		// Discard went through the operation log and is undoable.
		require.NotNil(t, result.Record)
		assert.True(t, strings.HasPrefix(result.Record.NewPath, env.trash))

		undone, err := env.engine.Undo(ctx, result.Record.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusRolledBack, undone.Status)
		assert.FileExists(t, candidate.SourcePath, "discard must be reversible")
	})

	t.Run("same size different content is not a duplicate", func(t *testing.T) {
		existing := filepath.Join(env.managed, "reports", "near.pdf")
		require.NoError(t, os.WriteFile(existing, []byte("headAAAAAAAAtail"), 0o600))

		candidate := env.newCandidate(t, "near.pdf", "headBBBBBBBBtail", model.FeatureVector{
			"keyword_match": 0.5,
		})

		result, err := env.engine.ProposeAndMaybeExecute(ctx, candidate)
		require.NoError(t, err)

		// Falls through to scoring; this one rejects.
		assert.Equal(t, service.OutcomeRejected, result.Outcome)
		assert.FileExists(t, candidate.SourcePath)
		assert.FileExists(t, existing)
	})

	t.Run("uninspectable proposed path surfaces the failure", func(t *testing.T) {
		// A directory squatting on the proposed path cannot be
		// fingerprinted; the gate must refuse rather than fall through to
		// execution against an occupied target.
		occupied := filepath.Join(env.managed, "reports", "occupied.pdf")
		require.NoError(t, os.MkdirAll(occupied, 0o750))

		candidate := env.newCandidate(t, "occupied.pdf", "occupied body", model.FeatureVector{
			"keyword_match":                 0.9,
			confidence.SignalHistoricalFreq: 0.8,
		})

		_, err := env.engine.ProposeAndMaybeExecute(ctx, candidate)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to fingerprint")

		assert.FileExists(t, candidate.SourcePath, "source stays put when the target cannot be inspected")
		assert.DirExists(t, occupied, "occupant stays put")

		records, searchErr := env.engine.Search(ctx, service.OperationQuery{PathContains: "occupied.pdf"})
		require.NoError(t, searchErr)
		assert.Empty(t, records, "no mutation may start against an uninspectable target")
	})

	t.Run("empty proposed path is still not a duplicate", func(t *testing.T) {
		candidate := env.newCandidate(t, "fresh.pdf", "fresh body", model.FeatureVector{
			"keyword_match":                 0.9,
			confidence.SignalHistoricalFreq: 0.8,
		})

		result, err := env.engine.ProposeAndMaybeExecute(ctx, candidate)
		require.NoError(t, err)
		assert.Equal(t, service.OutcomeExecuted, result.Outcome)
	})

	t.Run("unsafe duplicate is flagged but kept", func(t *testing.T) {
		// Both copies in unclassified space: safety too low to discard.
		outside := filepath.Join(filepath.Dir(env.inbox), "loose")
		require.NoError(t, os.MkdirAll(outside, 0o750))

		existing := filepath.Join(env.managed, "reports", "flagged.pdf")
		source := filepath.Join(outside, "flagged.pdf")
		require.NoError(t, os.WriteFile(existing, []byte("flagged body"), 0o600))
		require.NoError(t, os.WriteFile(source, []byte("flagged body"), 0o600))

		candidate := model.NewCandidateAction(source, existing, "reports", "classifier",
			model.FeatureVector{"keyword_match": 1.0})

		result, err := env.engine.ProposeAndMaybeExecute(ctx, candidate)
		require.NoError(t, err)

		assert.Equal(t, service.OutcomeDuplicate, result.Outcome)
		require.NotNil(t, result.Duplicate)
		assert.False(t, result.Duplicate.Discarded)
		assert.FileExists(t, source, "unsafe copies are only flagged")
		assert.FileExists(t, existing)
	})
}

func TestEngine_ConfirmReview(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	queueCandidate := func(t *testing.T, name string) (model.CandidateAction, int64) {
		t.Helper()
		candidate := env.newCandidate(t, name, "body of "+name, model.FeatureVector{
			"keyword_match": 0.9,
		})
		result, err := env.engine.ProposeAndMaybeExecute(ctx, candidate)
		require.NoError(t, err)
		require.Equal(t, service.OutcomeQueued, result.Outcome)
		return candidate, result.ReviewID
	}

	t.Run("confirming the proposed category executes the move", func(t *testing.T) {
		candidate, reviewID := queueCandidate(t, "confirm.pdf")

		result, err := env.engine.ConfirmReview(ctx, reviewID, "reports")
		require.NoError(t, err)

		assert.Equal(t, service.OutcomeExecuted, result.Outcome)
		require.NotNil(t, result.Record)
		assert.FileExists(t, candidate.ProposedPath)
		assert.NoFileExists(t, candidate.SourcePath)

		// The confirmation fed the pattern store.
		entry, err := env.storage.GetPatternEntry(ctx, "keyword_match", "reports")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, entry.ConfirmationCount, 1)
	})

	t.Run("choosing another category learns without moving", func(t *testing.T) {
		candidate, reviewID := queueCandidate(t, "relabel.pdf")

		result, err := env.engine.ConfirmReview(ctx, reviewID, "legal")
		require.NoError(t, err)

		assert.Equal(t, service.OutcomeRejected, result.Outcome)
		assert.Nil(t, result.Record)
		assert.FileExists(t, candidate.SourcePath, "a relabeled candidate is not moved")

		entry, err := env.storage.GetPatternEntry(ctx, "keyword_match", "legal")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, entry.ConfirmationCount, 1)
	})

	t.Run("failed correction is never counted twice", func(t *testing.T) {
		_, reviewID := queueCandidate(t, "unlucky.pdf")

		learner := &failingLearner{}
		executor := oplog.NewEngine(env.storage, oplog.NewOSFileSystem(0))
		identitySvc := identity.NewService(identity.Config{PartialBytes: 4})
		broken := New(env.storage, identitySvc, executor, env.updater, learner, Config{})

		_, err := broken.ConfirmReview(ctx, reviewID, "reports")
		require.Error(t, err)
		assert.Equal(t, 1, learner.calls)

		item, err := env.storage.GetReviewItem(ctx, reviewID)
		require.NoError(t, err)
		assert.True(t, item.Resolved, "item resolves before the correction is counted")

		_, err = broken.ConfirmReview(ctx, reviewID, "reports")
		require.Error(t, err)
		assert.Equal(t, 1, learner.calls, "a retry must not re-apply the correction")
	})

	t.Run("double confirmation fails", func(t *testing.T) {
		_, reviewID := queueCandidate(t, "double.pdf")

		_, err := env.engine.ConfirmReview(ctx, reviewID, "reports")
		require.NoError(t, err)

		_, err = env.engine.ConfirmReview(ctx, reviewID, "reports")
		assert.Error(t, err)
	})

	t.Run("missing review item fails", func(t *testing.T) {
		_, err := env.engine.ConfirmReview(ctx, 99999, "reports")
		assert.Error(t, err)
	})
}

func TestEngine_UndoSurface(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Minute)

	auto := model.FeatureVector{
		"keyword_match":                 0.9,
		confidence.SignalHistoricalFreq: 0.8,
	}

	first := env.newCandidate(t, "one.pdf", "first body", auto)
	second := env.newCandidate(t, "two.pdf", "second body", auto)

	for _, candidate := range []model.CandidateAction{first, second} {
		result, err := env.engine.ProposeAndMaybeExecute(ctx, candidate)
		require.NoError(t, err)
		require.Equal(t, service.OutcomeExecuted, result.Outcome)
	}

	t.Run("list recent operations", func(t *testing.T) {
		records, err := env.engine.ListRecentOperations(ctx, start)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("undo since restores everything", func(t *testing.T) {
		result, err := env.engine.UndoSince(ctx, start)
		require.NoError(t, err)

		assert.Equal(t, 2, result.Undone)
		assert.Zero(t, result.Failed)
		assert.FileExists(t, first.SourcePath)
		assert.FileExists(t, second.SourcePath)
	})

	t.Run("reconcile is empty after clean runs", func(t *testing.T) {
		records, err := env.engine.Reconcile(ctx, time.Now().UTC())
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestEngine_LearningShiftsDecisions(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	features := model.FeatureVector{"keyword:quarterly": 1.0}

	// Before any history, the snapshot contributes nothing.
	baseline := confidence.Score(
		model.NewCandidateAction("/x", "/y", "reports", "classifier", features),
		env.updater.Snapshot(),
		confidence.Config{
			Weights:         map[string]float64{confidence.SignalHistoricalFreq: 1.0},
			AutoThreshold:   0.85,
			ReviewThreshold: 0.40,
		},
	)
	assert.Zero(t, baseline.Confidence)

	// Repeated confirmed corrections build history for the feature.
	for i := 0; i < 5; i++ {
		require.NoError(t, env.updater.ApplyCorrection(ctx,
			model.NewCandidateAction("/x", "/y", "reports", "classifier", features),
			"reports"))
	}

	trained := confidence.Score(
		model.NewCandidateAction("/x", "/y", "reports", "classifier", features),
		env.updater.Snapshot(),
		confidence.Config{
			Weights:         map[string]float64{confidence.SignalHistoricalFreq: 1.0},
			AutoThreshold:   0.85,
			ReviewThreshold: 0.40,
		},
	)

	assert.Greater(t, trained.Confidence, baseline.Confidence,
		"confirmed history must raise snapshot-derived confidence")
}
