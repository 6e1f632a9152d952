package store

import (
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/precare/internal/models"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const sessionColumns = `session_id, current_step, answers, flags, progress, version, created_at, updated_at`

// encodeSession renders the JSON columns of a session.
func encodeSession(s *models.IntakeSession) (answers, flags string, err error) {
	a, err := json.Marshal(s.Answers)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode answers for %s: %w", s.SessionID, err)
	}
	f, err := json.Marshal(s.Flags)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode flags for %s: %w", s.SessionID, err)
	}
	return string(a), string(f), nil
}

// scanSession reads one row selected with sessionColumns.
func scanSession(row rowScanner) (*models.IntakeSession, error) {
	var s models.IntakeSession
	var step string
	var answers, flags []byte
	if err := row.Scan(&s.SessionID, &step, &answers, &flags, &s.Progress, &s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := models.ParseStep(step)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", s.SessionID, err)
	}
	s.CurrentStep = parsed
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &s.Answers); err != nil {
			return nil, fmt.Errorf("failed to decode answers for %s: %w", s.SessionID, err)
		}
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &s.Flags); err != nil {
			return nil, fmt.Errorf("failed to decode flags for %s: %w", s.SessionID, err)
		}
	}
	return &s, nil
}
