package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS operations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					original_path TEXT NOT NULL,
					original_name TEXT NOT NULL,
					new_path TEXT NOT NULL,
					new_name TEXT NOT NULL,
					executed_at DATETIME NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					status TEXT NOT NULL,
					source_system TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX idx_operations_executed_at ON operations(executed_at)`,
				`CREATE INDEX idx_operations_status ON operations(status)`,
				`CREATE INDEX idx_operations_new_path ON operations(new_path)`,

				`CREATE TABLE IF NOT EXISTS pattern_entries (
					feature_key TEXT NOT NULL,
					category TEXT NOT NULL,
					observation_count INTEGER NOT NULL DEFAULT 0,
					confirmation_count INTEGER NOT NULL DEFAULT 0,
					last_updated DATETIME NOT NULL,
					PRIMARY KEY (feature_key, category)
				)`,
				`CREATE INDEX idx_pattern_entries_category ON pattern_entries(category)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add staging table",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS staged_files (
					path TEXT PRIMARY KEY,
					discovered_at DATETIME NOT NULL,
					state TEXT NOT NULL DEFAULT 'PENDING'
				)`,
				`CREATE INDEX idx_staged_files_state ON staged_files(state)`,
				`CREATE INDEX idx_staged_files_discovered ON staged_files(discovered_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add review queue",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS review_queue (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					candidate TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					explanations TEXT,
					queued_at DATETIME NOT NULL,
					resolved BOOLEAN NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX idx_review_queue_resolved ON review_queue(resolved)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
