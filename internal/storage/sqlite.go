// Package storage provides the data persistence layer for the warden application.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"database/sql"

	"github.com/gofrs/flock"

	"github.com/filewarden/filewarden/internal/common"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the service.Storage interface using SQLite.
// Opening the store is fatal if the database or the data-directory lock
// cannot be acquired: no mutation is permitted without a working audit
// trail.
type SQLiteStorage struct {
	db     *sql.DB
	lock   *flock.Flock
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	var lock *flock.Flock
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}

		// Single-writer discipline across processes: the data directory
		// is exclusively locked for the lifetime of the store.
		lock = flock.New(filepath.Join(dir, "warden.lock"))
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire data directory lock: %w", err)
		}
		if !locked {
			return nil, common.ErrStoreLocked
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, fmt.Errorf("%w: %v", common.ErrLogUnavailable, err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, fmt.Errorf("%w: %v", common.ErrLogUnavailable, err)
	}

	return &SQLiteStorage{
		db:     db,
		lock:   lock,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection and releases the directory lock.
func (s *SQLiteStorage) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}
