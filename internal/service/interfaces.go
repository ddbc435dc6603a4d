// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/filewarden/filewarden/internal/model"
)

// OperationQuery defines filtering options for operation log searches.
// Zero fields are ignored.
type OperationQuery struct {
	Start         *time.Time
	End           *time.Time
	MinConfidence *float64
	MaxConfidence *float64
	PathContains  string
	Statuses      []model.OperationStatus
	Limit         int
}

// Storage defines the contract for our persistence layer. The operation
// log is the authoritative history of file moves; the filesystem is not.
type Storage interface {
	// Operation log. Records are append-only: status transitions only,
	// never deletion. BeginIntent assigns the monotonic ID.
	BeginIntent(ctx context.Context, record *model.OperationRecord) error
	CommitIntent(ctx context.Context, id int64, executedAt time.Time) error
	MarkIntentFailed(ctx context.Context, id int64) error
	GetOperation(ctx context.Context, id int64) (*model.OperationRecord, error)
	// UpdateOperationStatus transitions a record from one status to
	// another and reports whether the transition was applied. A false
	// return means another caller got there first.
	UpdateOperationStatus(ctx context.Context, id int64, from, to model.OperationStatus) (bool, error)
	ListActiveOperationsSince(ctx context.Context, since time.Time) ([]model.OperationRecord, error)
	ListOperationsSince(ctx context.Context, since time.Time) ([]model.OperationRecord, error)
	SearchOperations(ctx context.Context, query OperationQuery) ([]model.OperationRecord, error)
	ListStaleIntents(ctx context.Context, cutoff time.Time) ([]model.OperationRecord, error)

	// Pattern store. Exclusively written by the learning updater;
	// readers consume immutable snapshots built from GetPatternEntries.
	UpsertPatternEntry(ctx context.Context, entry *model.PatternEntry) error
	GetPatternEntry(ctx context.Context, featureKey, category string) (*model.PatternEntry, error)
	GetPatternEntries(ctx context.Context) ([]model.PatternEntry, error)
	DeletePatternEntry(ctx context.Context, featureKey, category string) error

	// Staging.
	UpsertStagedFile(ctx context.Context, file *model.StagedFile) error
	GetStagedFile(ctx context.Context, path string) (*model.StagedFile, error)
	MarkStagedState(ctx context.Context, path string, from, to model.StagingState) (bool, error)
	ListDueStagedFiles(ctx context.Context, asOf time.Time) ([]model.StagedFile, error)

	// Review queue.
	EnqueueReview(ctx context.Context, item *model.ReviewItem) error
	GetReviewItem(ctx context.Context, id int64) (*model.ReviewItem, error)
	ListPendingReview(ctx context.Context) ([]model.ReviewItem, error)
	ResolveReview(ctx context.Context, id int64) error

	// Database management.
	Migrate(ctx context.Context) error
	Close() error
}

// Outcome is the structured result kind returned across the API boundary.
type Outcome string

// Outcome constants. Every engine call is representable as a
// JSON-serializable response for the external HTTP layer.
const (
	OutcomeExecuted  Outcome = "executed"
	OutcomeQueued    Outcome = "queued_for_review"
	OutcomeRejected  Outcome = "rejected"
	OutcomeDuplicate Outcome = "duplicate"
)

// ProposeResult is the response to ProposeAndMaybeExecute.
type ProposeResult struct {
	Decision  *model.ScoredDecision  `json:"decision,omitempty"`
	Record    *model.OperationRecord `json:"record,omitempty"`
	Duplicate *DuplicateResult       `json:"duplicate,omitempty"`
	Outcome   Outcome                `json:"outcome"`
	ReviewID  int64                  `json:"review_id,omitempty"`
}

// DuplicateResult describes a dedup short-circuit: the candidate's content
// already exists at another known path.
type DuplicateResult struct {
	ExistingPath  string              `json:"existing_path"`
	SafeToDiscard model.DiscardChoice `json:"safe_to_discard"`
	Discarded     bool                `json:"discarded"`
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
