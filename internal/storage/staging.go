package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/filewarden/filewarden/internal/model"
)

// ErrStagedFileNotFound is returned when a staged file does not exist.
var ErrStagedFileNotFound = errors.New("staged file not found")

// UpsertStagedFile inserts or refreshes a pending entry. Re-observing a
// path that was previously released or withdrawn restarts its grace
// window.
func (s *SQLiteStorage) UpsertStagedFile(ctx context.Context, file *model.StagedFile) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateStagedFile(file); err != nil {
		return err
	}

	if file.State == "" {
		file.State = model.StagingPending
	}

	query := `
		INSERT INTO staged_files (path, discovered_at, state)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			discovered_at = excluded.discovered_at,
			state = excluded.state
	`

	_, err := s.db.ExecContext(ctx, query, file.Path, file.DiscoveredAt.UTC(), file.State)
	if err != nil {
		return fmt.Errorf("failed to upsert staged file: %w", err)
	}

	return nil
}

// GetStagedFile retrieves a staged file by path.
func (s *SQLiteStorage) GetStagedFile(ctx context.Context, path string) (*model.StagedFile, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(path, "path"); err != nil {
		return nil, err
	}

	query := `SELECT path, discovered_at, state FROM staged_files WHERE path = ?`

	var file model.StagedFile
	err := s.db.QueryRowContext(ctx, query, path).Scan(&file.Path, &file.DiscoveredAt, &file.State)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStagedFileNotFound
		}
		return nil, fmt.Errorf("failed to get staged file: %w", err)
	}

	return &file, nil
}

// MarkStagedState transitions a staged file between states and reports
// whether the transition was applied. A release and a withdrawal racing
// on the same path cannot both win.
func (s *SQLiteStorage) MarkStagedState(ctx context.Context, path string, from, to model.StagingState) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(path, "path"); err != nil {
		return false, err
	}

	query := `UPDATE staged_files SET state = ? WHERE path = ? AND state = ?`
	result, err := s.db.ExecContext(ctx, query, to, path, from)
	if err != nil {
		return false, fmt.Errorf("failed to mark staged state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ListDueStagedFiles returns PENDING entries discovered at or before the
// given time, oldest first.
func (s *SQLiteStorage) ListDueStagedFiles(ctx context.Context, asOf time.Time) ([]model.StagedFile, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT path, discovered_at, state
		FROM staged_files
		WHERE state = ? AND discovered_at <= ?
		ORDER BY discovered_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, model.StagingPending, asOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list due staged files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []model.StagedFile
	for rows.Next() {
		var file model.StagedFile
		if err := rows.Scan(&file.Path, &file.DiscoveredAt, &file.State); err != nil {
			return nil, fmt.Errorf("failed to scan staged file: %w", err)
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staged files: %w", err)
	}

	return files, nil
}
