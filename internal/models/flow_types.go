// Package models defines intake step and intent types to avoid circular imports.
package models

import (
	"fmt"
	"math"
)

// IntakeStep represents one named stage of the intake questionnaire.
type IntakeStep string

// Step constants, declared in flow order.
const (
	StepPatientInfo       IntakeStep = "patient_info"
	StepVisitReason       IntakeStep = "visit_reason"
	StepSymptomOnset      IntakeStep = "symptom_onset"
	StepPreviousTreatment IntakeStep = "previous_treatment"
	StepMedicalConditions IntakeStep = "medical_conditions"
	StepAllergies         IntakeStep = "allergies"
	StepConcerns          IntakeStep = "concerns"
	StepReview            IntakeStep = "review"
	StepComplete          IntakeStep = "complete"
)

// StepOrder is the fixed total order of steps. It defines both the normal-flow
// sequence and the progress percentage.
var StepOrder = []IntakeStep{
	StepPatientInfo,
	StepVisitReason,
	StepSymptomOnset,
	StepPreviousTreatment,
	StepMedicalConditions,
	StepAllergies,
	StepConcerns,
	StepReview,
	StepComplete,
}

// Index returns the position of s in StepOrder, or -1 for an unknown step.
func (s IntakeStep) Index() int {
	for i, step := range StepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// IsValid reports whether s is a member of StepOrder.
func (s IntakeStep) IsValid() bool {
	return s.Index() >= 0
}

// IsCollectible reports whether the step collects an answer from the patient.
func (s IntakeStep) IsCollectible() bool {
	switch s {
	case StepPatientInfo, StepVisitReason, StepSymptomOnset, StepPreviousTreatment,
		StepMedicalConditions, StepAllergies, StepConcerns:
		return true
	default:
		return false
	}
}

// IsFreeText reports whether the step holds a normalized free-text answer.
func (s IntakeStep) IsFreeText() bool {
	return s.IsCollectible() && s != StepPatientInfo
}

// Next returns the step after s in StepOrder. ok is false when s is the last step
// or not a valid step.
func (s IntakeStep) Next() (next IntakeStep, ok bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(StepOrder) {
		return s, false
	}
	return StepOrder[i+1], true
}

// ProgressFor returns round((index+1)/total*100) for a valid step and 0 otherwise.
func ProgressFor(s IntakeStep) int {
	i := s.Index()
	if i < 0 {
		return 0
	}
	return int(math.Round(float64(i+1) / float64(len(StepOrder)) * 100))
}

// CollectibleSteps returns the steps that accept patient answers, in flow order.
func CollectibleSteps() []IntakeStep {
	steps := make([]IntakeStep, 0, len(StepOrder))
	for _, s := range StepOrder {
		if s.IsCollectible() {
			steps = append(steps, s)
		}
	}
	return steps
}

// ParseStep converts a string into an IntakeStep.
func ParseStep(v string) (IntakeStep, error) {
	s := IntakeStep(v)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown intake step %q", v)
	}
	return s, nil
}

// Phase selects which utterance is produced for a step.
type Phase string

// Utterance phases.
const (
	PhaseAsk     Phase = "ask"
	PhaseConfirm Phase = "confirm"
	PhaseError   Phase = "error"
)

// IntentKind enumerates the families of special intents.
type IntentKind int

// Intent kinds. Navigation kinds carry no target; field kinds always do.
const (
	IntentNone IntentKind = iota
	IntentBack
	IntentSkip
	IntentReview
	IntentDone
	IntentChangeField
	IntentUpdateField
)

// SpecialIntent is a cross-cutting user request detected independently of the
// current step. Target is set only for IntentChangeField and IntentUpdateField.
type SpecialIntent struct {
	Kind   IntentKind
	Target IntakeStep
}

// Convenience values for the navigation intents.
var (
	NoIntent     = SpecialIntent{Kind: IntentNone}
	BackIntent   = SpecialIntent{Kind: IntentBack}
	SkipIntent   = SpecialIntent{Kind: IntentSkip}
	ReviewIntent = SpecialIntent{Kind: IntentReview}
	DoneIntent   = SpecialIntent{Kind: IntentDone}
)

// ChangeIntent returns the field-jump intent for a collectible step.
func ChangeIntent(target IntakeStep) SpecialIntent {
	return SpecialIntent{Kind: IntentChangeField, Target: target}
}

// UpdateIntent returns the direct-update intent for a collectible step.
func UpdateIntent(target IntakeStep) SpecialIntent {
	return SpecialIntent{Kind: IntentUpdateField, Target: target}
}

// String renders the intent in its wire form, e.g. "review" or "change_allergies".
func (i SpecialIntent) String() string {
	switch i.Kind {
	case IntentBack:
		return "back"
	case IntentSkip:
		return "skip"
	case IntentReview:
		return "review"
	case IntentDone:
		return "done"
	case IntentChangeField:
		return "change_" + string(i.Target)
	case IntentUpdateField:
		return "update_" + string(i.Target)
	default:
		return "none"
	}
}
