package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/filewarden/filewarden/internal/model"
)

// ErrPatternEntryNotFound is returned when a pattern entry does not exist.
var ErrPatternEntryNotFound = errors.New("pattern entry not found")

// UpsertPatternEntry creates or replaces the statistics for one
// (feature, category) pair.
func (s *SQLiteStorage) UpsertPatternEntry(ctx context.Context, entry *model.PatternEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePatternEntry(entry); err != nil {
		return err
	}

	query := `
		INSERT INTO pattern_entries (
			feature_key, category, observation_count, confirmation_count, last_updated
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(feature_key, category) DO UPDATE SET
			observation_count = excluded.observation_count,
			confirmation_count = excluded.confirmation_count,
			last_updated = excluded.last_updated
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.FeatureKey, entry.Category,
		entry.ObservationCount, entry.ConfirmationCount, entry.LastUpdated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pattern entry: %w", err)
	}

	return nil
}

// GetPatternEntry retrieves a single pattern entry.
func (s *SQLiteStorage) GetPatternEntry(ctx context.Context, featureKey, category string) (*model.PatternEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(featureKey, "featureKey"); err != nil {
		return nil, err
	}
	if err := validateString(category, "category"); err != nil {
		return nil, err
	}

	query := `
		SELECT feature_key, category, observation_count, confirmation_count, last_updated
		FROM pattern_entries
		WHERE feature_key = ? AND category = ?
	`

	var entry model.PatternEntry
	err := s.db.QueryRowContext(ctx, query, featureKey, category).Scan(
		&entry.FeatureKey, &entry.Category,
		&entry.ObservationCount, &entry.ConfirmationCount, &entry.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPatternEntryNotFound
		}
		return nil, fmt.Errorf("failed to get pattern entry: %w", err)
	}

	return &entry, nil
}

// GetPatternEntries returns every stored pattern entry, including rows
// that fail validation. Callers building snapshots skip corrupt rows
// rather than failing the read.
func (s *SQLiteStorage) GetPatternEntries(ctx context.Context) ([]model.PatternEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT feature_key, category, observation_count, confirmation_count, last_updated
		FROM pattern_entries
		ORDER BY feature_key ASC, category ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.PatternEntry
	for rows.Next() {
		var entry model.PatternEntry
		err := rows.Scan(
			&entry.FeatureKey, &entry.Category,
			&entry.ObservationCount, &entry.ConfirmationCount, &entry.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pattern entries: %w", err)
	}

	return entries, nil
}

// DeletePatternEntry removes one entry. Only compaction calls this, for
// entries that have decayed below the relevance floor.
func (s *SQLiteStorage) DeletePatternEntry(ctx context.Context, featureKey, category string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(featureKey, "featureKey"); err != nil {
		return err
	}
	if err := validateString(category, "category"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM pattern_entries WHERE feature_key = ? AND category = ?",
		featureKey, category)
	if err != nil {
		return fmt.Errorf("failed to delete pattern entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPatternEntryNotFound
	}

	return nil
}
