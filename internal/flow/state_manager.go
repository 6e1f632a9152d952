// Package flow provides concrete implementations of state management.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/precare/internal/models"
	"github.com/BTreeMap/precare/internal/store"
)

// StoreBasedStateManager implements StateManager using a Store backend. Each
// operation is a locked load, transition, save.
type StoreBasedStateManager struct {
	store store.Store
	locks *store.KeyedLocker
	now   func() time.Time
}

// NewStoreBasedStateManager creates a new StateManager backed by a Store. The
// locker should be shared with any Engine using the same store.
func NewStoreBasedStateManager(st store.Store, locks *store.KeyedLocker) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	if locks == nil {
		locks = store.NewKeyedLocker()
	}
	return &StoreBasedStateManager{store: st, locks: locks, now: time.Now}
}

// CreateSession initializes a fresh session.
func (sm *StoreBasedStateManager) CreateSession(ctx context.Context, sessionID string) (*models.IntakeSession, error) {
	slog.Debug("StateManager CreateSession", "sessionID", sessionID)
	unlock := sm.locks.Lock(sessionID)
	defer unlock()

	sess := models.NewIntakeSession(sessionID, sm.now())
	if err := sm.store.CreateSession(sess); err != nil {
		slog.Error("StateManager CreateSession error", "error", err, "sessionID", sessionID)
		return nil, err
	}
	slog.Info("StateManager CreateSession succeeded", "sessionID", sessionID)
	return sess, nil
}

// GetSession returns the stored session.
func (sm *StoreBasedStateManager) GetSession(ctx context.Context, sessionID string) (*models.IntakeSession, error) {
	return sm.store.GetSession(sessionID)
}

// UpdateAnswer writes answers[step] = value.
func (sm *StoreBasedStateManager) UpdateAnswer(ctx context.Context, sessionID string, step models.IntakeStep, value models.AnswerValue) (*models.IntakeSession, error) {
	return sm.mutate(sessionID, "UpdateAnswer", func(s *models.IntakeSession) error {
		return updateAnswer(s, step, value)
	})
}

// MoveToNextStep advances to the next step in order.
func (sm *StoreBasedStateManager) MoveToNextStep(ctx context.Context, sessionID string) (*models.IntakeSession, error) {
	return sm.mutate(sessionID, "MoveToNextStep", func(s *models.IntakeSession) error {
		moveToNextStep(s)
		return nil
	})
}

// JumpToStep sets the current step directly.
func (sm *StoreBasedStateManager) JumpToStep(ctx context.Context, sessionID string, target models.IntakeStep) (*models.IntakeSession, error) {
	return sm.mutate(sessionID, "JumpToStep", func(s *models.IntakeSession) error {
		return jumpToStep(s, target)
	})
}

// EnterEditMode sets the edit flag and jumps to target.
func (sm *StoreBasedStateManager) EnterEditMode(ctx context.Context, sessionID string, target models.IntakeStep) (*models.IntakeSession, error) {
	return sm.mutate(sessionID, "EnterEditMode", func(s *models.IntakeSession) error {
		return enterEditMode(s, target)
	})
}

// ExitEditMode clears the edit flag and jumps to review.
func (sm *StoreBasedStateManager) ExitEditMode(ctx context.Context, sessionID string) (*models.IntakeSession, error) {
	return sm.mutate(sessionID, "ExitEditMode", func(s *models.IntakeSession) error {
		exitEditMode(s)
		return nil
	})
}

func (sm *StoreBasedStateManager) mutate(sessionID, op string, apply func(*models.IntakeSession) error) (*models.IntakeSession, error) {
	unlock := sm.locks.Lock(sessionID)
	defer unlock()

	sess, err := sm.store.GetSession(sessionID)
	if err != nil {
		slog.Error("StateManager "+op+" get error", "error", err, "sessionID", sessionID)
		return nil, err
	}
	from := sess.CurrentStep
	if err := apply(sess); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sess.UpdatedAt = sm.now()
	if err := sm.store.SaveSession(sess); err != nil {
		slog.Error("StateManager "+op+" save error", "error", err, "sessionID", sessionID)
		return nil, err
	}
	slog.Debug("StateManager "+op+" succeeded", "sessionID", sessionID, "from", from, "to", sess.CurrentStep, "editMode", sess.Flags.EditMode)
	return sess, nil
}
