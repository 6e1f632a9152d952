// Package validate provides the per-step field validators for the intake flow.
//
// Each validator trims its input and either returns a normalized answer or a
// *models.ValidationError carrying a machine-readable code and a user-facing hint.
package validate

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BTreeMap/precare/internal/models"
)

// MaxAnswerLength bounds free-text answers.
const MaxAnswerLength = 1000

// freeTextRule configures one free-text step.
type freeTextRule struct {
	label    string // used in hints
	minLen   int
	negation string // canned answer for "no"/"none"
}

var freeTextRules = map[models.IntakeStep]freeTextRule{
	models.StepVisitReason:       {label: "the reason for your visit", minLen: 5, negation: "No specific reason"},
	models.StepSymptomOnset:      {label: "when your symptoms started", minLen: 3, negation: "No symptoms"},
	models.StepPreviousTreatment: {label: "any previous treatment", minLen: 3, negation: "No previous treatment"},
	models.StepMedicalConditions: {label: "your medical conditions", minLen: 3, negation: "No medical conditions"},
	models.StepAllergies:         {label: "your allergies", minLen: 3, negation: "No known allergies"},
	models.StepConcerns:          {label: "your concerns", minLen: 3, negation: "No additional concerns"},
}

var negationTokens = map[string]bool{
	"no":                  true,
	"n":                   true,
	"none":                true,
	"nope":                true,
	"nah":                 true,
	"nothing":             true,
	"nothing else":        true,
	"no thanks":           true,
	"no thank you":        true,
	"none thanks":         true,
	"none thank you":      true,
	"not really":          true,
	"none that i know of": true,
	"not that i know of":  true,
	"n/a":                 true,
	"na":                  true,
}

// Validator validates raw answers. The clock is injectable so age checks are
// deterministic in tests.
type Validator struct {
	now func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the clock used for age checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate dispatches to the validator for step.
func (v *Validator) Validate(step models.IntakeStep, raw string) (models.AnswerValue, error) {
	if step == models.StepPatientInfo {
		p, err := v.ValidatePatientInfo(raw)
		if err != nil {
			return models.AnswerValue{}, err
		}
		return models.PatientAnswer(p), nil
	}
	text, err := ValidateFreeText(step, raw)
	if err != nil {
		return models.AnswerValue{}, err
	}
	return models.TextAnswer(text), nil
}

// ValidateFreeText validates one of the free-text steps.
func ValidateFreeText(step models.IntakeStep, raw string) (string, error) {
	rule, ok := freeTextRules[step]
	if !ok {
		return "", reject(models.CodeNotCollectible, fmt.Sprintf("The %s step does not take an answer.", step))
	}
	text := strings.TrimSpace(spaceRun.ReplaceAllString(raw, " "))
	if text == "" {
		return "", reject(models.CodeEmpty, fmt.Sprintf("Please tell me about %s, or say \"no\" if it does not apply.", rule.label))
	}
	if IsNegation(text) {
		return rule.negation, nil
	}
	if n := utf8.RuneCountInString(text); n < rule.minLen {
		return "", reject(models.CodeTooShort, fmt.Sprintf("Please give a little more detail about %s (at least %d characters).", rule.label, rule.minLen))
	} else if n > MaxAnswerLength {
		return "", reject(models.CodeTooLong, fmt.Sprintf("Please keep your answer about %s under %d characters.", rule.label, MaxAnswerLength))
	}
	return text, nil
}

// IsNegation reports whether text is a plain "no"-style answer.
func IsNegation(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.Trim(t, ".!?")
	t = strings.ReplaceAll(t, ",", " ")
	t = strings.Join(strings.Fields(t), " ")
	return negationTokens[t]
}

// NegationValue returns the canned answer a step stores for a "no" reply.
func NegationValue(step models.IntakeStep) (string, bool) {
	rule, ok := freeTextRules[step]
	if !ok {
		return "", false
	}
	return rule.negation, true
}

// IsNegationValue reports whether value is the canned "no" answer for step.
func IsNegationValue(step models.IntakeStep, value string) bool {
	canned, ok := NegationValue(step)
	return ok && canned == value
}

func reject(code models.ValidationCode, hint string) *models.ValidationError {
	return &models.ValidationError{Code: code, Hint: hint}
}
