// Package summary builds the rule-based clinician summary of an intake session.
package summary

import (
	"strings"
	"time"

	"github.com/BTreeMap/precare/internal/models"
	"github.com/BTreeMap/precare/internal/validate"
)

// SeverityUnknown is reported until a triage source exists; the rule-based
// summary never grades severity.
const SeverityUnknown = "unknown"

// redFlagTerms are matched case-insensitively as substrings, so "suicid" also
// covers "suicidal" and "suicide".
var redFlagTerms = []string{
	"chest pain",
	"chest tightness",
	"shortness of breath",
	"can't breathe",
	"cannot breathe",
	"faint",
	"passed out",
	"severe bleeding",
	"coughing up blood",
	"suicid",
	"slurred speech",
	"numbness on one side",
}

// redFlagSources are the answers scanned for red-flag terms.
var redFlagSources = []models.IntakeStep{
	models.StepVisitReason,
	models.StepSymptomOnset,
	models.StepConcerns,
}

// Summary is the structured hand-off built from a session's answers.
type Summary struct {
	SessionID         string              `json:"session_id"`
	PatientInfo       *models.PatientInfo `json:"patient_info"`
	MainComplaint     string              `json:"main_complaint"`
	SymptomOnset      string              `json:"symptom_onset"`
	Severity          string              `json:"severity"`
	PreviousTreatment string              `json:"previous_treatment"`
	MedicalConditions []string            `json:"medical_conditions"`
	Allergies         []string            `json:"allergies"`
	Concerns          string              `json:"concerns"`
	RedFlags          []string            `json:"red_flags"`
	Complete          bool                `json:"complete"`
	CreatedAt         time.Time           `json:"created_at"`
}

// Build summarizes s. Canned "no" answers are reported as empty values.
func Build(s *models.IntakeSession, now time.Time) Summary {
	out := Summary{
		SessionID:         s.SessionID,
		MainComplaint:     answer(s, models.StepVisitReason),
		SymptomOnset:      answer(s, models.StepSymptomOnset),
		Severity:          SeverityUnknown,
		PreviousTreatment: answer(s, models.StepPreviousTreatment),
		MedicalConditions: list(answer(s, models.StepMedicalConditions)),
		Allergies:         list(answer(s, models.StepAllergies)),
		Concerns:          answer(s, models.StepConcerns),
		RedFlags:          RedFlags(s.Answers),
		Complete:          s.IsComplete(),
		CreatedAt:         now.UTC(),
	}
	if s.Answers.Patient != nil {
		p := *s.Answers.Patient
		out.PatientInfo = &p
	}
	return out
}

// RedFlags returns the red-flag terms found in the answers, in term order and
// without duplicates.
func RedFlags(a models.Answers) []string {
	var texts []string
	for _, step := range redFlagSources {
		if v, ok := a.Get(step); ok {
			texts = append(texts, strings.ToLower(v))
		}
	}
	joined := strings.Join(texts, "\n")

	flags := []string{}
	for _, term := range redFlagTerms {
		if strings.Contains(joined, term) {
			flags = append(flags, term)
		}
	}
	return flags
}

func answer(s *models.IntakeSession, step models.IntakeStep) string {
	v, ok := s.Answers.Get(step)
	if !ok || validate.IsNegationValue(step, v) {
		return ""
	}
	return v
}

// list splits an answer on commas, semicolons and the word "and".
func list(v string) []string {
	items := []string{}
	if v == "" {
		return items
	}
	v = strings.NewReplacer(";", ",", " and ", ",").Replace(v)
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
