// Package review renders collected intake answers as a readable summary.
package review

import (
	"strings"

	"github.com/BTreeMap/precare/internal/models"
)

// labels gives the display label for each free-text step, in flow order.
var labels = []struct {
	step  models.IntakeStep
	label string
}{
	{models.StepVisitReason, "Reason for visit"},
	{models.StepSymptomOnset, "Symptoms started"},
	{models.StepPreviousTreatment, "Previous treatment"},
	{models.StepMedicalConditions, "Medical conditions"},
	{models.StepAllergies, "Allergies"},
	{models.StepConcerns, "Concerns"},
}

// BuildSnapshot emits one "Label: value" line per populated answer, patient
// details first. Unset answers are skipped.
func BuildSnapshot(answers models.Answers) string {
	var lines []string
	if p := answers.Patient; p != nil {
		lines = appendLine(lines, "Full name", p.FullName)
		lines = appendLine(lines, "Date of birth", p.DOB)
		lines = appendLine(lines, "Phone", p.Phone)
	}
	for _, l := range labels {
		if v, ok := answers.Get(l.step); ok {
			lines = appendLine(lines, l.label, v)
		}
	}
	return strings.Join(lines, "\n")
}

func appendLine(lines []string, label, value string) []string {
	if value == "" {
		return lines
	}
	return append(lines, label+": "+value)
}
