// Package engine orchestrates the confidence-gated organization flow:
// dedup gate, scoring, execution or review queueing, and the undo surface
// exposed to the API layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/filewarden/filewarden/internal/confidence"
	"github.com/filewarden/filewarden/internal/model"
	"github.com/filewarden/filewarden/internal/service"
)

// Engine is the top-level orchestrator. All of its methods return
// JSON-serializable results for the external API layer.
type Engine struct {
	storage  service.Storage
	identity Identifier
	executor Executor
	patterns SnapshotSource
	learner  Learner
	scoring  confidence.Config
	trashDir string
}

// Config holds orchestrator options.
type Config struct {
	// Scoring is the confidence engine configuration.
	Scoring confidence.Config
	// TrashDir is where discarded duplicate copies are moved. Discarding
	// is a logged, undoable rename, never an unlink.
	TrashDir string
}

// New creates an engine with the given collaborators.
func New(store service.Storage, identity Identifier, executor Executor, patterns SnapshotSource, learner Learner, cfg Config) *Engine {
	if cfg.Scoring.Weights == nil {
		cfg.Scoring = confidence.DefaultConfig()
	}
	return &Engine{
		storage:  store,
		identity: identity,
		executor: executor,
		patterns: patterns,
		learner:  learner,
		scoring:  cfg.Scoring,
		trashDir: cfg.TrashDir,
	}
}

// ProposeAndMaybeExecute runs one candidate through the full gate:
// duplicate check first (short-circuits to the dedup path), then scoring,
// then execution, review queueing, or rejection.
func (e *Engine) ProposeAndMaybeExecute(ctx context.Context, candidate model.CandidateAction) (*service.ProposeResult, error) {
	if unknown := confidence.UnknownSignals(candidate.Features, e.scoring); len(unknown) > 0 {
		slog.Warn("Ignoring unknown feature signals",
			"candidate_id", candidate.ID,
			"signals", unknown)
	}

	if dup, err := e.checkDuplicate(ctx, candidate); err != nil {
		return nil, err
	} else if dup != nil {
		return dup, nil
	}

	decision := confidence.Score(candidate, e.patterns.Snapshot(), e.scoring)

	switch decision.Tier {
	case model.TierAuto:
		record, err := e.executor.Execute(ctx, candidate, decision.Confidence)
		if err != nil {
			return nil, fmt.Errorf("auto-execution failed: %w", err)
		}
		return &service.ProposeResult{
			Outcome:  service.OutcomeExecuted,
			Decision: &decision,
			Record:   record,
		}, nil

	case model.TierReview:
		item := &model.ReviewItem{
			Candidate:    candidate,
			Confidence:   decision.Confidence,
			Explanations: decision.Explanations,
		}
		if err := e.storage.EnqueueReview(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to queue for review: %w", err)
		}
		slog.Info("Queued candidate for review",
			"candidate_id", candidate.ID,
			"review_id", item.ID,
			"confidence", decision.Confidence)
		return &service.ProposeResult{
			Outcome:  service.OutcomeQueued,
			Decision: &decision,
			ReviewID: item.ID,
		}, nil

	default:
		// Rejected candidates leave the file untouched and write no log
		// entry.
		slog.Debug("Rejected candidate",
			"candidate_id", candidate.ID,
			"confidence", decision.Confidence)
		return &service.ProposeResult{
			Outcome:  service.OutcomeRejected,
			Decision: &decision,
		}, nil
	}
}

// checkDuplicate compares the candidate's content with whatever already
// occupies the proposed path. An identical pair short-circuits scoring:
// the discardable copy is moved to the trash directory through the
// operation log when safe, or merely flagged when not.
func (e *Engine) checkDuplicate(ctx context.Context, candidate model.CandidateAction) (*service.ProposeResult, error) {
	source, err := e.identity.Identify(ctx, candidate.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint %s: %w", candidate.SourcePath, err)
	}

	existing, err := e.identity.Identify(ctx, candidate.ProposedPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Nothing at the proposed path: not a duplicate.
			return nil, nil
		}
		// Anything else is a real failure on an occupied path; proceeding
		// to execution here could clobber-race whatever lives there.
		return nil, fmt.Errorf("failed to fingerprint %s: %w", candidate.ProposedPath, err)
	}

	result, err := e.identity.Compare(ctx, existing, source)
	if err != nil {
		return nil, fmt.Errorf("failed to compare fingerprints: %w", err)
	}
	if !result.Identical {
		return nil, nil
	}

	dup := &service.DuplicateResult{
		ExistingPath:  candidate.ProposedPath,
		SafeToDiscard: result.SafeToDiscard,
	}
	out := &service.ProposeResult{
		Outcome:   service.OutcomeDuplicate,
		Duplicate: dup,
	}

	// Only the candidate's copy (B in the comparison) is ever discarded
	// automatically; the organized copy stays put regardless.
	if result.SafeToDiscard != model.DiscardB || e.trashDir == "" {
		slog.Info("Duplicate flagged, keeping both copies",
			"source", candidate.SourcePath,
			"existing", candidate.ProposedPath,
			"safe_to_discard", result.SafeToDiscard)
		return out, nil
	}

	discard := candidate
	discard.ProposedPath = filepath.Join(e.trashDir,
		fmt.Sprintf("%s.%s", filepath.Base(candidate.SourcePath), uuid.NewString()))
	record, err := e.executor.Execute(ctx, discard, 1.0)
	if err != nil {
		return nil, fmt.Errorf("failed to discard duplicate: %w", err)
	}

	dup.Discarded = true
	out.Record = record

	slog.Info("Discarded duplicate copy",
		"source", candidate.SourcePath,
		"existing", candidate.ProposedPath,
		"trash", discard.ProposedPath)

	return out, nil
}

// GetPendingReview returns the unresolved review queue, oldest first.
func (e *Engine) GetPendingReview(ctx context.Context) ([]model.ReviewItem, error) {
	return e.storage.ListPendingReview(ctx)
}

// ConfirmReview resolves a queued item with the user's chosen category.
// The correction always feeds the learning updater; the move executes
// only when the user confirmed the proposed category, since a different
// choice invalidates the proposed path.
func (e *Engine) ConfirmReview(ctx context.Context, id int64, category string) (*service.ProposeResult, error) {
	item, err := e.storage.GetReviewItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Resolved {
		return nil, fmt.Errorf("review item %d is already resolved", id)
	}

	// Resolve before learning: a correction that fails after the item is
	// resolved is lost, but a retry can never count the same correction
	// twice.
	if err := e.storage.ResolveReview(ctx, id); err != nil {
		return nil, err
	}

	if err := e.learner.ApplyCorrection(ctx, item.Candidate, category); err != nil {
		return nil, fmt.Errorf("failed to record correction: %w", err)
	}

	if category != item.Candidate.Category {
		slog.Info("Review resolved with different category, move skipped",
			"review_id", id,
			"proposed", item.Candidate.Category,
			"chosen", category)
		return &service.ProposeResult{Outcome: service.OutcomeRejected}, nil
	}

	record, err := e.executor.Execute(ctx, item.Candidate, item.Confidence)
	if err != nil {
		return nil, fmt.Errorf("confirmed execution failed: %w", err)
	}

	return &service.ProposeResult{
		Outcome: service.OutcomeExecuted,
		Record:  record,
	}, nil
}

// ListRecentOperations returns the operation log since the given time,
// newest first.
func (e *Engine) ListRecentOperations(ctx context.Context, since time.Time) ([]model.OperationRecord, error) {
	return e.storage.ListOperationsSince(ctx, since)
}

// Undo reverses a single operation by id.
func (e *Engine) Undo(ctx context.Context, id int64) (*model.OperationRecord, error) {
	return e.executor.Undo(ctx, id)
}

// UndoSince reverses every active operation executed at or after the
// given time, newest first.
func (e *Engine) UndoSince(ctx context.Context, since time.Time) (*model.BatchUndoResult, error) {
	return e.executor.UndoRange(ctx, since)
}

// Search filters the operation log for targeted recovery.
func (e *Engine) Search(ctx context.Context, query service.OperationQuery) ([]model.OperationRecord, error) {
	return e.storage.SearchOperations(ctx, query)
}

// Reconcile surfaces stale intent rows for the external reconciliation
// pass. It never mutates anything.
func (e *Engine) Reconcile(ctx context.Context, cutoff time.Time) ([]model.OperationRecord, error) {
	records, err := e.executor.Reconcile(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		slog.Warn("Found stale intent records; a crash may have left unlogged mutations",
			"count", len(records))
	}
	return records, nil
}
