// Package store provides storage backends for intake sessions.
//
// It includes an in-memory store and SQL-backed stores (SQLite and PostgreSQL).
// All backends use optimistic versioning: SaveSession fails with
// ErrVersionConflict when the stored version differs from the caller's copy.
package store

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/precare/internal/models"
)

var (
	// ErrSessionNotFound is returned when no session exists for an id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by CreateSession for a taken id.
	ErrSessionExists = errors.New("session already exists")
	// ErrVersionConflict is returned by SaveSession when the session changed
	// since it was loaded.
	ErrVersionConflict = errors.New("session version conflict")
)

// Store is the session-of-record persistence interface.
type Store interface {
	// CreateSession inserts a fresh session and sets its Version to 1.
	CreateSession(s *models.IntakeSession) error
	// GetSession returns a copy of the stored session or ErrSessionNotFound.
	GetSession(sessionID string) (*models.IntakeSession, error)
	// SaveSession writes s if its Version matches the stored one, then bumps
	// s.Version. A session with Version 0 is inserted.
	SaveSession(s *models.IntakeSession) error
	// ListSessions returns all sessions ordered by last update, newest first.
	ListSessions() ([]*models.IntakeSession, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns the database/sql driver name for dsn: "postgres" for
// PostgreSQL URLs and key/value strings, "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.Contains(lower, "host=") || strings.Contains(lower, "dbname="):
		return "postgres"
	default:
		return "sqlite3"
	}
}

// MemoryDSN selects the in-memory store in Open.
const MemoryDSN = "memory"

// Open returns the backend selected by the configured DSN: in-memory for an
// empty DSN or MemoryDSN, otherwise PostgreSQL or SQLite per DetectDSNType.
func Open(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "" || cfg.DSN == MemoryDSN:
		slog.Info("Store.Open: using in-memory store; sessions will not survive a restart")
		return NewInMemoryStore(), nil
	case DetectDSNType(cfg.DSN) == "postgres":
		return NewPostgresStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}

// InMemoryStore keeps sessions in a map. Sessions are copied on the way in and
// out so callers never share state with the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.IntakeSession
	inbound  map[string]*DedupRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*models.IntakeSession),
		inbound:  make(map[string]*DedupRecord),
	}
}

func (s *InMemoryStore) CreateSession(sess *models.IntakeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.SessionID]; ok {
		return ErrSessionExists
	}
	sess.Version = 1
	s.sessions[sess.SessionID] = sess.Clone()
	slog.Debug("InMemoryStore.CreateSession: created", "sessionID", sess.SessionID)
	return nil
}

func (s *InMemoryStore) GetSession(sessionID string) (*models.IntakeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *InMemoryStore) SaveSession(sess *models.IntakeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[sess.SessionID]
	switch {
	case !ok && sess.Version != 0:
		return ErrSessionNotFound
	case ok && stored.Version != sess.Version:
		slog.Debug("InMemoryStore.SaveSession: version conflict", "sessionID", sess.SessionID,
			"stored", stored.Version, "have", sess.Version)
		return ErrVersionConflict
	}
	sess.Version++
	s.sessions[sess.SessionID] = sess.Clone()
	return nil
}

func (s *InMemoryStore) ListSessions() ([]*models.IntakeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.IntakeSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// Compile-time checks.
var (
	_ Store     = (*InMemoryStore)(nil)
	_ DedupRepo = (*InMemoryStore)(nil)
)

func (s *InMemoryStore) IsDuplicate(messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.inbound[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(messageID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbound[messageID]; ok {
		return false, nil
	}
	s.inbound[messageID] = &DedupRecord{MessageID: messageID, SessionID: sessionID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.inbound[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
	}
	return nil
}

func (s *InMemoryStore) ReleaseInbound(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inbound, messageID)
	return nil
}

func (s *InMemoryStore) PruneInbound(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.inbound {
		if rec.ReceivedAt.Before(cutoff) {
			delete(s.inbound, id)
			n++
		}
	}
	return n, nil
}
