package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/filewarden/filewarden/internal/model"
	"github.com/filewarden/filewarden/internal/service"
)

// ErrOperationNotFound is returned when an operation record does not exist.
var ErrOperationNotFound = errors.New("operation record not found")

const operationColumns = `id, original_path, original_name, new_path, new_name,
	executed_at, confidence, status, source_system`

// BeginIntent writes a write-ahead INTENT row for a mutation that is about
// to be attempted and assigns the record its monotonic ID.
func (s *SQLiteStorage) BeginIntent(ctx context.Context, record *model.OperationRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateOperation(record); err != nil {
		return err
	}

	if record.ExecutedAt.IsZero() {
		record.ExecutedAt = time.Now().UTC()
	}
	record.Status = model.StatusIntent

	query := `
		INSERT INTO operations (
			original_path, original_name, new_path, new_name,
			executed_at, confidence, status, source_system
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		record.OriginalPath, record.OriginalName, record.NewPath, record.NewName,
		record.ExecutedAt, record.Confidence, record.Status, record.SourceSystem,
	)
	if err != nil {
		return fmt.Errorf("failed to write intent record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get operation ID: %w", err)
	}

	record.ID = id
	return nil
}

// CommitIntent transitions an INTENT record to ACTIVE after the filesystem
// mutation physically succeeded.
func (s *SQLiteStorage) CommitIntent(ctx context.Context, id int64, executedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	query := `UPDATE operations SET status = ?, executed_at = ? WHERE id = ? AND status = ?`
	result, err := s.db.ExecContext(ctx, query, model.StatusActive, executedAt.UTC(), id, model.StatusIntent)
	if err != nil {
		return fmt.Errorf("failed to commit intent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: id %d is not a pending intent", ErrOperationNotFound, id)
	}

	return nil
}

// MarkIntentFailed transitions an INTENT record to FAILED after the
// mutation could not be performed. Failed intents are never undone.
func (s *SQLiteStorage) MarkIntentFailed(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	query := `UPDATE operations SET status = ? WHERE id = ? AND status = ?`
	result, err := s.db.ExecContext(ctx, query, model.StatusFailed, id, model.StatusIntent)
	if err != nil {
		return fmt.Errorf("failed to mark intent failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: id %d is not a pending intent", ErrOperationNotFound, id)
	}

	return nil
}

// GetOperation retrieves an operation record by ID.
func (s *SQLiteStorage) GetOperation(ctx context.Context, id int64) (*model.OperationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = ?`

	var record model.OperationRecord
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID, &record.OriginalPath, &record.OriginalName, &record.NewPath, &record.NewName,
		&record.ExecutedAt, &record.Confidence, &record.Status, &record.SourceSystem,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOperationNotFound
		}
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	return &record, nil
}

// UpdateOperationStatus transitions a record from one status to another.
// It reports false if the record was not in the expected status, which is
// how two concurrent undos of the same record are kept from both
// succeeding.
func (s *SQLiteStorage) UpdateOperationStatus(ctx context.Context, id int64, from, to model.OperationStatus) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateOperationStatus(from); err != nil {
		return false, err
	}
	if err := validateOperationStatus(to); err != nil {
		return false, err
	}

	query := `UPDATE operations SET status = ? WHERE id = ? AND status = ?`
	result, err := s.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update operation status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ListActiveOperationsSince returns all ACTIVE records executed after the
// given time, newest first. This is the undo-range working set.
func (s *SQLiteStorage) ListActiveOperationsSince(ctx context.Context, since time.Time) ([]model.OperationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + operationColumns + `
		FROM operations
		WHERE status = ? AND executed_at >= ?
		ORDER BY executed_at DESC, id DESC`

	return s.queryOperations(ctx, query, model.StatusActive, since.UTC())
}

// ListOperationsSince returns all records executed after the given time,
// regardless of status, newest first.
func (s *SQLiteStorage) ListOperationsSince(ctx context.Context, since time.Time) ([]model.OperationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + operationColumns + `
		FROM operations
		WHERE executed_at >= ?
		ORDER BY executed_at DESC, id DESC`

	return s.queryOperations(ctx, query, since.UTC())
}

// ListStaleIntents returns INTENT records older than the cutoff. These are
// the possible unlogged-mutation survivors of a crash between the rename
// and the commit, surfaced for an external reconciliation pass.
func (s *SQLiteStorage) ListStaleIntents(ctx context.Context, cutoff time.Time) ([]model.OperationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + operationColumns + `
		FROM operations
		WHERE status = ? AND executed_at < ?
		ORDER BY executed_at ASC, id ASC`

	return s.queryOperations(ctx, query, model.StatusIntent, cutoff.UTC())
}

// SearchOperations filters the operation log by path substring, confidence
// range, time range, and status. Used for targeted recovery.
func (s *SQLiteStorage) SearchOperations(ctx context.Context, query service.OperationQuery) ([]model.OperationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var conditions []string
	var args []any

	if query.PathContains != "" {
		conditions = append(conditions, `(original_path LIKE ? OR new_path LIKE ?)`)
		like := "%" + query.PathContains + "%"
		args = append(args, like, like)
	}
	if query.MinConfidence != nil {
		conditions = append(conditions, `confidence >= ?`)
		args = append(args, *query.MinConfidence)
	}
	if query.MaxConfidence != nil {
		conditions = append(conditions, `confidence <= ?`)
		args = append(args, *query.MaxConfidence)
	}
	if query.Start != nil {
		conditions = append(conditions, `executed_at >= ?`)
		args = append(args, query.Start.UTC())
	}
	if query.End != nil {
		conditions = append(conditions, `executed_at <= ?`)
		args = append(args, query.End.UTC())
	}
	if len(query.Statuses) > 0 {
		placeholders := make([]string, len(query.Statuses))
		for i, status := range query.Statuses {
			if err := validateOperationStatus(status); err != nil {
				return nil, err
			}
			placeholders[i] = "?"
			args = append(args, status)
		}
		conditions = append(conditions, `status IN (`+strings.Join(placeholders, ", ")+`)`)
	}

	sqlQuery := `SELECT ` + operationColumns + ` FROM operations`
	if len(conditions) > 0 {
		sqlQuery += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	sqlQuery += ` ORDER BY executed_at DESC, id DESC`
	if query.Limit > 0 {
		sqlQuery += ` LIMIT ?`
		args = append(args, query.Limit)
	}

	return s.queryOperations(ctx, sqlQuery, args...)
}

// queryOperations runs a SELECT over the operations table and scans rows.
func (s *SQLiteStorage) queryOperations(ctx context.Context, query string, args ...any) ([]model.OperationRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.OperationRecord
	for rows.Next() {
		var record model.OperationRecord
		err := rows.Scan(
			&record.ID, &record.OriginalPath, &record.OriginalName, &record.NewPath, &record.NewName,
			&record.ExecutedAt, &record.Confidence, &record.Status, &record.SourceSystem,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return records, nil
}
