// Package store provides storage backends for intake sessions.
//
// This file implements a PostgreSQL-backed session store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/precare/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateSession(sess *models.IntakeSession) error {
	answers, flags, err := encodeSession(sess)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		INSERT INTO intake_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, 1, $6, $7)
		ON CONFLICT (session_id) DO NOTHING`,
		sess.SessionID, string(sess.CurrentStep), answers, flags, sess.Progress, sess.CreatedAt.UTC(), sess.UpdatedAt.UTC())
	if err != nil {
		slog.Error("PostgresStore.CreateSession failed", "error", err, "sessionID", sess.SessionID)
		return fmt.Errorf("failed to insert session %s: %w", sess.SessionID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check insert of session %s: %w", sess.SessionID, err)
	} else if n == 0 {
		return ErrSessionExists
	}
	sess.Version = 1
	slog.Debug("PostgresStore.CreateSession succeeded", "sessionID", sess.SessionID)
	return nil
}

func (s *PostgresStore) GetSession(sessionID string) (*models.IntakeSession, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM intake_sessions WHERE session_id = $1`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		slog.Error("PostgresStore.GetSession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return sess, nil
}

// SaveSession uses a compare-and-set on the version column; the RETURNING row
// tells a conflict apart from a missing session in one round trip.
func (s *PostgresStore) SaveSession(sess *models.IntakeSession) error {
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
	var version int64
	err = s.db.QueryRow(`
		WITH updated AS (
			UPDATE intake_sessions
			SET current_step = $1, answers = $2::jsonb, flags = $3::jsonb, progress = $4,
			    version = version + 1, updated_at = $5
			WHERE session_id = $6 AND version = $7
			RETURNING version
		)
		SELECT COALESCE((SELECT version FROM updated), -1)
		WHERE EXISTS (SELECT 1 FROM intake_sessions WHERE session_id = $6)`,
		string(sess.CurrentStep), answers, flags, sess.Progress, sess.UpdatedAt.UTC(), sess.SessionID, sess.Version,
	).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrSessionNotFound
	case err != nil:
		slog.Error("PostgresStore.SaveSession failed", "error", err, "sessionID", sess.SessionID)
		return fmt.Errorf("failed to save session %s: %w", sess.SessionID, err)
	case version < 0:
		slog.Debug("PostgresStore.SaveSession: version conflict", "sessionID", sess.SessionID, "have", sess.Version)
		return ErrVersionConflict
	}
	sess.Version = version
	slog.Debug("PostgresStore.SaveSession succeeded", "sessionID", sess.SessionID, "step", sess.CurrentStep, "version", version)
	return nil
}

func (s *PostgresStore) ListSessions() ([]*models.IntakeSession, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM intake_sessions ORDER BY updated_at DESC`)
	if err != nil {
		slog.Error("PostgresStore.ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.IntakeSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			slog.Error("PostgresStore.ListSessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
