package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/filewarden/filewarden/internal/model"
)

// ErrReviewItemNotFound is returned when a review queue item does not exist.
var ErrReviewItemNotFound = errors.New("review item not found")

// EnqueueReview adds a scored decision to the review queue and assigns
// the item its ID.
func (s *SQLiteStorage) EnqueueReview(ctx context.Context, item *model.ReviewItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateReviewItem(item); err != nil {
		return err
	}

	if item.QueuedAt.IsZero() {
		item.QueuedAt = time.Now().UTC()
	}

	candidate, err := json.Marshal(item.Candidate)
	if err != nil {
		return fmt.Errorf("failed to encode candidate: %w", err)
	}
	explanations, err := json.Marshal(item.Explanations)
	if err != nil {
		return fmt.Errorf("failed to encode explanations: %w", err)
	}

	query := `
		INSERT INTO review_queue (candidate, confidence, explanations, queued_at, resolved)
		VALUES (?, ?, ?, ?, 0)
	`

	result, err := s.db.ExecContext(ctx, query, string(candidate), item.Confidence, string(explanations), item.QueuedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue review item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get review item ID: %w", err)
	}

	item.ID = id
	return nil
}

// GetReviewItem retrieves a review queue item by ID.
func (s *SQLiteStorage) GetReviewItem(ctx context.Context, id int64) (*model.ReviewItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, candidate, confidence, explanations, queued_at, resolved
		FROM review_queue
		WHERE id = ?
	`

	item, err := scanReviewItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReviewItemNotFound
		}
		return nil, err
	}

	return item, nil
}

// ListPendingReview returns all unresolved review items, oldest first.
func (s *SQLiteStorage) ListPendingReview(ctx context.Context) ([]model.ReviewItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, candidate, confidence, explanations, queued_at, resolved
		FROM review_queue
		WHERE resolved = 0
		ORDER BY queued_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending review: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.ReviewItem
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating review items: %w", err)
	}

	return items, nil
}

// ResolveReview marks a review item as resolved.
func (s *SQLiteStorage) ResolveReview(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE review_queue SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to resolve review item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrReviewItemNotFound
	}

	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReviewItem(row rowScanner) (*model.ReviewItem, error) {
	var item model.ReviewItem
	var candidate, explanations string
	if err := row.Scan(&item.ID, &candidate, &item.Confidence, &explanations, &item.QueuedAt, &item.Resolved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan review item: %w", err)
	}

	if err := json.Unmarshal([]byte(candidate), &item.Candidate); err != nil {
		return nil, fmt.Errorf("failed to decode candidate: %w", err)
	}
	if explanations != "" {
		if err := json.Unmarshal([]byte(explanations), &item.Explanations); err != nil {
			return nil, fmt.Errorf("failed to decode explanations: %w", err)
		}
	}

	return &item, nil
}
