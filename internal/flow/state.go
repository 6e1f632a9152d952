// Package flow defines the intake state machine and the orchestrator that drives
// it one patient message at a time.
package flow

import (
	"context"

	"github.com/BTreeMap/precare/internal/models"
)

// StateManager exposes the intake state machine by session id for callers
// outside a turn: session creation, reads, and operator corrections. Every
// operation returns the session as stored after the change. Engine.Sessions
// returns the instance that shares the engine's locks.
type StateManager interface {
	// CreateSession initializes a session at patient_info with progress 0.
	CreateSession(ctx context.Context, sessionID string) (*models.IntakeSession, error)

	// GetSession returns the session or store.ErrSessionNotFound. It never mutates.
	GetSession(ctx context.Context, sessionID string) (*models.IntakeSession, error)

	// UpdateAnswer writes answers[step]; nothing else changes.
	UpdateAnswer(ctx context.Context, sessionID string, step models.IntakeStep, value models.AnswerValue) (*models.IntakeSession, error)

	// MoveToNextStep advances to the next step in order. It is a no-op at the last step.
	MoveToNextStep(ctx context.Context, sessionID string) (*models.IntakeSession, error)

	// JumpToStep sets the current step directly, bypassing order.
	JumpToStep(ctx context.Context, sessionID string, target models.IntakeStep) (*models.IntakeSession, error)

	// EnterEditMode sets the edit flag and jumps to target.
	EnterEditMode(ctx context.Context, sessionID string, target models.IntakeStep) (*models.IntakeSession, error)

	// ExitEditMode clears the edit flag and jumps to review.
	ExitEditMode(ctx context.Context, sessionID string) (*models.IntakeSession, error)
}
