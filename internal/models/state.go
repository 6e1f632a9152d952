// Package models defines state management structures for intake sessions.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PatientInfo is the structured answer to the patient_info step.
type PatientInfo struct {
	FullName string `json:"full_name"`
	DOB      string `json:"dob"`   // ISO YYYY-MM-DD
	Phone    string `json:"phone"` // digits only
}

// AnswerValue is a normalized answer. Patient is set only for patient_info.
type AnswerValue struct {
	Text    string
	Patient *PatientInfo
}

// TextAnswer wraps a normalized free-text value.
func TextAnswer(text string) AnswerValue {
	return AnswerValue{Text: text}
}

// PatientAnswer wraps a normalized patient_info value.
func PatientAnswer(p PatientInfo) AnswerValue {
	return AnswerValue{Patient: &p}
}

// Answers maps each step to its normalized value. Keys are only added on successful
// validation and are never removed, only overwritten.
type Answers struct {
	Patient *PatientInfo
	Text    map[IntakeStep]string
}

// Has reports whether step has a stored answer.
func (a Answers) Has(step IntakeStep) bool {
	if step == StepPatientInfo {
		return a.Patient != nil
	}
	_, ok := a.Text[step]
	return ok
}

// Get returns the free-text answer for step.
func (a Answers) Get(step IntakeStep) (string, bool) {
	v, ok := a.Text[step]
	return v, ok
}

// Put stores value under step.
func (a *Answers) Put(step IntakeStep, value AnswerValue) error {
	if step == StepPatientInfo {
		if value.Patient == nil {
			return fmt.Errorf("patient_info answer requires structured patient data")
		}
		p := *value.Patient
		a.Patient = &p
		return nil
	}
	if !step.IsFreeText() {
		return fmt.Errorf("step %q does not accept answers", step)
	}
	if a.Text == nil {
		a.Text = make(map[IntakeStep]string)
	}
	a.Text[step] = value.Text
	return nil
}

// Clone returns a deep copy.
func (a Answers) Clone() Answers {
	var out Answers
	if a.Patient != nil {
		p := *a.Patient
		out.Patient = &p
	}
	if a.Text != nil {
		out.Text = make(map[IntakeStep]string, len(a.Text))
		for k, v := range a.Text {
			out.Text[k] = v
		}
	}
	return out
}

// MarshalJSON renders answers as a flat object keyed by step name.
func (a Answers) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(a.Text)+1)
	if a.Patient != nil {
		flat[string(StepPatientInfo)] = a.Patient
	}
	for k, v := range a.Text {
		flat[string(k)] = v
	}
	return json.Marshal(flat)
}

// UnmarshalJSON parses the flat object produced by MarshalJSON.
func (a *Answers) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	*a = Answers{}
	for k, raw := range flat {
		step, err := ParseStep(k)
		if err != nil {
			return err
		}
		if step == StepPatientInfo {
			var p PatientInfo
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("failed to decode patient_info: %w", err)
			}
			a.Patient = &p
			continue
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return fmt.Errorf("failed to decode %s: %w", k, err)
		}
		if err := a.Put(step, TextAnswer(text)); err != nil {
			return err
		}
	}
	return nil
}

// Flags holds session flags that cut across steps.
type Flags struct {
	// Skipped is carried for collaborators that mark optional fields; the engine
	// itself re-asks on skip and never sets it.
	Skipped map[IntakeStep]bool `json:"skipped,omitempty"`
	// EditMode means the next valid answer returns control to review.
	EditMode bool `json:"edit_mode"`
}

// IntakeSession is the session-of-record for one patient's intake conversation.
type IntakeSession struct {
	SessionID   string     `json:"session_id"`
	CurrentStep IntakeStep `json:"current_step"`
	Answers     Answers    `json:"answers"`
	Flags       Flags      `json:"flags"`
	Progress    int        `json:"progress"`
	Version     int64      `json:"version"` // optimistic concurrency token, bumped on every save
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewIntakeSession returns a fresh session at patient_info with no answers.
func NewIntakeSession(id string, now time.Time) *IntakeSession {
	return &IntakeSession{
		SessionID:   id,
		CurrentStep: StepPatientInfo,
		Flags:       Flags{},
		Progress:    0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (s *IntakeSession) Clone() *IntakeSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Answers = s.Answers.Clone()
	if s.Flags.Skipped != nil {
		out.Flags.Skipped = make(map[IntakeStep]bool, len(s.Flags.Skipped))
		for k, v := range s.Flags.Skipped {
			out.Flags.Skipped[k] = v
		}
	}
	return &out
}

// IsComplete reports whether the session reached the terminal step.
func (s *IntakeSession) IsComplete() bool {
	return s.CurrentStep == StepComplete
}
