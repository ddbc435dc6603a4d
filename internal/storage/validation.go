package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/filewarden/filewarden/internal/model"
)

// Validation errors.
var (
	ErrNilContext          = errors.New("context cannot be nil")
	ErrEmptyString         = errors.New("string parameter cannot be empty")
	ErrNilParameter        = errors.New("parameter cannot be nil")
	ErrInvalidOperation    = errors.New("invalid operation record")
	ErrInvalidPatternEntry = errors.New("invalid pattern entry")
	ErrInvalidStagedFile   = errors.New("invalid staged file")
	ErrInvalidReviewItem   = errors.New("invalid review item")
	ErrInvalidStatus       = errors.New("invalid operation status")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateOperation validates an operation record before it is written.
func validateOperation(record *model.OperationRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record", ErrNilParameter)
	}
	if strings.TrimSpace(record.OriginalPath) == "" {
		return fmt.Errorf("%w: missing original path", ErrInvalidOperation)
	}
	if strings.TrimSpace(record.NewPath) == "" {
		return fmt.Errorf("%w: missing new path", ErrInvalidOperation)
	}
	if record.Confidence < 0 || record.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidOperation)
	}
	return nil
}

// validateOperationStatus ensures a status value is one of the known set.
func validateOperationStatus(status model.OperationStatus) error {
	switch status {
	case model.StatusIntent,
		model.StatusActive,
		model.StatusFailed,
		model.StatusRolledBack,
		model.StatusRollbackFailed:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
}

// validatePatternEntry validates a pattern entry before it is written.
// Reads tolerate corrupt rows; writes never produce them.
func validatePatternEntry(entry *model.PatternEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrNilParameter)
	}
	if !entry.Valid() {
		return fmt.Errorf("%w: %q/%q counts %d/%d", ErrInvalidPatternEntry,
			entry.FeatureKey, entry.Category, entry.ObservationCount, entry.ConfirmationCount)
	}
	return nil
}

// validateStagedFile validates a staged file entry.
func validateStagedFile(file *model.StagedFile) error {
	if file == nil {
		return fmt.Errorf("%w: file", ErrNilParameter)
	}
	if strings.TrimSpace(file.Path) == "" {
		return fmt.Errorf("%w: missing path", ErrInvalidStagedFile)
	}
	if file.DiscoveredAt.IsZero() {
		return fmt.Errorf("%w: missing discovery time", ErrInvalidStagedFile)
	}
	return nil
}

// validateReviewItem validates a review queue item.
func validateReviewItem(item *model.ReviewItem) error {
	if item == nil {
		return fmt.Errorf("%w: item", ErrNilParameter)
	}
	if strings.TrimSpace(item.Candidate.SourcePath) == "" {
		return fmt.Errorf("%w: missing candidate source path", ErrInvalidReviewItem)
	}
	if item.Confidence < 0 || item.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidReviewItem)
	}
	return nil
}
