// Package redact masks protected health information in free text before it is
// written to logs or handed to collaborators outside the process.
package redact

import (
	"regexp"

	"github.com/BTreeMap/precare/internal/models"
)

// Placeholders substituted for each kind of identifier.
const (
	SSN   = "[REDACTED_SSN]"
	Phone = "[REDACTED_PHONE]"
	Email = "[REDACTED_EMAIL]"
	Name  = "[REDACTED_NAME]"
	Date  = "[REDACTED_DATE]"
	MRN   = "[REDACTED_MRN]"
)

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// rules run in priority order; earlier placeholders are not re-matched because
// none of the later patterns match bracketed upper-case text.
var rules = []rule{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), SSN},
	{regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`), Phone},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), Email},
	{regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`), Name},
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`), Date},
	{regexp.MustCompile(`(?i)\b(?:MRN|medical record(?: number)?|record #?)\s*:?\s*[A-Z0-9-]{6,}\b`), MRN},
}

// Text returns s with every recognized identifier replaced by its placeholder.
func Text(s string) string {
	if s == "" {
		return s
	}
	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.replacement)
	}
	return s
}

// Patient masks every field of p. The date of birth keeps only its year.
func Patient(p models.PatientInfo) models.PatientInfo {
	out := models.PatientInfo{FullName: Name, DOB: Date, Phone: Phone}
	if len(p.DOB) >= 4 {
		out.DOB = p.DOB[:4] + "-XX-XX"
	}
	return out
}
