package engine

import (
	"context"
	"time"

	"github.com/filewarden/filewarden/internal/learning"
	"github.com/filewarden/filewarden/internal/model"
)

// Identifier answers content-identity questions for the dedup gate.
type Identifier interface {
	Identify(ctx context.Context, path string) (*model.ContentFingerprint, error)
	Compare(ctx context.Context, a, b *model.ContentFingerprint) (model.CompareResult, error)
}

// Executor performs logged mutations and undoes them.
type Executor interface {
	Execute(ctx context.Context, candidate model.CandidateAction, confidence float64) (*model.OperationRecord, error)
	Undo(ctx context.Context, id int64) (*model.OperationRecord, error)
	UndoRange(ctx context.Context, since time.Time) (*model.BatchUndoResult, error)
	Reconcile(ctx context.Context, cutoff time.Time) ([]model.OperationRecord, error)
}

// SnapshotSource supplies immutable pattern snapshots for scoring.
type SnapshotSource interface {
	Snapshot() *learning.Snapshot
}

// Learner consumes correction events.
type Learner interface {
	ApplyCorrection(ctx context.Context, candidate model.CandidateAction, chosenCategory string) error
}
