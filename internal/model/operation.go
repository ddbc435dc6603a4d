package model

import "time"

// OperationStatus tracks the lifecycle of a logged mutation.
type OperationStatus string

// Operation status constants. INTENT is written before the filesystem
// mutation is attempted; ACTIVE after it succeeds. A crash between the
// two leaves a detectable INTENT row for the reconciliation scan.
const (
	StatusIntent         OperationStatus = "INTENT"
	StatusActive         OperationStatus = "ACTIVE"
	StatusFailed         OperationStatus = "FAILED"
	StatusRolledBack     OperationStatus = "ROLLED_BACK"
	StatusRollbackFailed OperationStatus = "ROLLBACK_FAILED"
)

// OperationRecord is the unit of the audit log: one executed (or intended)
// filesystem mutation. Records are append-only and never deleted.
type OperationRecord struct {
	ExecutedAt   time.Time       `json:"executed_at"`
	OriginalPath string          `json:"original_path"`
	OriginalName string          `json:"original_name"`
	NewPath      string          `json:"new_path"`
	NewName      string          `json:"new_name"`
	Status       OperationStatus `json:"status"`
	SourceSystem string          `json:"source_system"`
	ID           int64           `json:"id"`
	Confidence   float64         `json:"confidence_at_execution"`
}

// UndoOutcome reports the result of undoing a single record within a batch.
type UndoOutcome struct {
	Error    string          `json:"error,omitempty"`
	Status   OperationStatus `json:"status"`
	RecordID int64           `json:"record_id"`
	Undone   bool            `json:"undone"`
}

// BatchUndoResult is the per-record outcome list of an UndoRange call.
type BatchUndoResult struct {
	Outcomes []UndoOutcome `json:"outcomes"`
	Undone   int           `json:"undone"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
}
