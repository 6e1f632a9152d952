package models

import "fmt"

// ValidationCode is a machine-readable rejection reason.
type ValidationCode string

// Rejection codes produced by the field validators.
const (
	CodeEmpty          ValidationCode = "EMPTY"
	CodeTooShort       ValidationCode = "TOO_SHORT"
	CodeTooLong        ValidationCode = "TOO_LONG"
	CodeMissingName    ValidationCode = "MISSING_NAME"
	CodeMissingDOB     ValidationCode = "MISSING_DOB"
	CodeMissingPhone   ValidationCode = "MISSING_PHONE"
	CodeInvalidName    ValidationCode = "INVALID_NAME"
	CodeInvalidDOB     ValidationCode = "INVALID_DOB"
	CodeDOBOutOfRange  ValidationCode = "DOB_OUT_OF_RANGE"
	CodeInvalidPhone   ValidationCode = "INVALID_PHONE"
	CodeNotCollectible ValidationCode = "NOT_COLLECTIBLE"
)

// ValidationError is the rejection half of a validation result. The hint is
// user-facing remediation text.
type ValidationError struct {
	Code ValidationCode `json:"code"`
	Hint string         `json:"hint"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Hint)
}

// TurnResponse is the result of processing one patient message. It is always
// produced, even when the turn fails.
type TurnResponse struct {
	SessionID          string     `json:"sessionId"`
	CurrentStep        IntakeStep `json:"current_step"`
	Progress           int        `json:"progress"`
	Utterance          string     `json:"utterance"`
	RequiresCorrection bool       `json:"requires_correction"`
	// ReviewSnapshot is non-nil only when the turn transitioned into review.
	ReviewSnapshot *string `json:"review_snapshot"`
}
