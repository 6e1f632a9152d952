// Package models defines the core data structures for the pre-care intake service.
//
// It includes the intake session record, the step and intent enumerations, and the
// JSON envelope shared by every HTTP response.
package models

import (
	"errors"
	"strings"
)

// Validation constants for inbound API payloads
const (
	// MaxMessageLength defines the maximum allowed length for a single patient message
	MaxMessageLength = 4096
	// MaxMessageIDLength defines the maximum allowed length for a client-supplied message ID
	MaxMessageIDLength = 128
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessage     = errors.New("text is required")
	ErrMessageTooLong   = errors.New("text exceeds maximum length")
	ErrMessageIDTooLong = errors.New("message_id exceeds maximum length")
)

// MessageRequest is the payload for POST /intake/sessions/{id}/messages.
type MessageRequest struct {
	Text      string `json:"text"`
	MessageID string `json:"message_id,omitempty"` // optional client idempotency key
}

// Validate performs structural validation on a MessageRequest. Content validation of the
// patient's answer is the intake engine's job, not the transport's.
func (m *MessageRequest) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return ErrEmptyMessage
	}
	if len(m.Text) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if len(m.MessageID) > MaxMessageIDLength {
		return ErrMessageIDTooLong
	}
	return nil
}

// APIStatus is the value of the envelope's status field.
type APIStatus string

// Envelope statuses.
const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse is the JSON envelope for every HTTP response.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success wraps result in an ok envelope.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// SuccessWithMessage is Success with an informational message, e.g. for a
// duplicate delivery.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Message: message, Result: result}
}

// Error returns an error envelope carrying message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
