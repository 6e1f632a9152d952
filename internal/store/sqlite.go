// Package store provides storage backends for intake sessions.
//
// This file implements an SQLite-backed session store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/precare/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// One writer connection avoids "database is locked" under concurrent turns.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dsn", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateSession(sess *models.IntakeSession) error {
	answers, flags, err := encodeSession(sess)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`INSERT OR IGNORE INTO intake_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		sess.SessionID, string(sess.CurrentStep), answers, flags, sess.Progress, sess.CreatedAt.UTC(), sess.UpdatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore.CreateSession failed", "error", err, "sessionID", sess.SessionID)
		return fmt.Errorf("failed to insert session %s: %w", sess.SessionID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check insert of session %s: %w", sess.SessionID, err)
	} else if n == 0 {
		return ErrSessionExists
	}
	sess.Version = 1
	slog.Debug("SQLiteStore.CreateSession succeeded", "sessionID", sess.SessionID)
	return nil
}

func (s *SQLiteStore) GetSession(sessionID string) (*models.IntakeSession, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM intake_sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore.GetSession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return sess, nil
}

func (s *SQLiteStore) SaveSession(sess *models.IntakeSession) error {
	if sess.Version == 0 {
		if err := s.CreateSession(sess); err != nil {
			if errors.Is(err, ErrSessionExists) {
				return ErrVersionConflict
			}
			return err
		}
		return nil
	}

	answers, flags, err := encodeSession(sess)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE intake_sessions
		SET current_step = ?, answers = ?, flags = ?, progress = ?, version = version + 1, updated_at = ?
		WHERE session_id = ? AND version = ?`,
		string(sess.CurrentStep), answers, flags, sess.Progress, sess.UpdatedAt.UTC(), sess.SessionID, sess.Version)
	if err != nil {
		slog.Error("SQLiteStore.SaveSession failed", "error", err, "sessionID", sess.SessionID)
		return fmt.Errorf("failed to save session %s: %w", sess.SessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check save of session %s: %w", sess.SessionID, err)
	}
	if n == 0 {
		if _, err := s.GetSession(sess.SessionID); errors.Is(err, ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		slog.Debug("SQLiteStore.SaveSession: version conflict", "sessionID", sess.SessionID, "have", sess.Version)
		return ErrVersionConflict
	}
	sess.Version++
	slog.Debug("SQLiteStore.SaveSession succeeded", "sessionID", sess.SessionID, "step", sess.CurrentStep, "version", sess.Version)
	return nil
}

func (s *SQLiteStore) ListSessions() ([]*models.IntakeSession, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM intake_sessions ORDER BY updated_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore.ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.IntakeSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			slog.Error("SQLiteStore.ListSessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("SQLiteStore.ListSessions succeeded", "count", len(sessions))
	return sessions, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
