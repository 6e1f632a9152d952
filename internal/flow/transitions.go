package flow

import (
	"fmt"

	"github.com/BTreeMap/precare/internal/models"
)

// The transitions below mutate a session in place. They are the only code that
// changes CurrentStep, Flags.EditMode or Answers, and they keep Progress tied
// to CurrentStep.

func updateAnswer(s *models.IntakeSession, step models.IntakeStep, value models.AnswerValue) error {
	if s.IsComplete() {
		return fmt.Errorf("session %s is complete", s.SessionID)
	}
	return s.Answers.Put(step, value)
}

func moveToNextStep(s *models.IntakeSession) {
	if next, ok := s.CurrentStep.Next(); ok {
		setStep(s, next)
	}
}

func jumpToStep(s *models.IntakeSession, target models.IntakeStep) error {
	if !target.IsValid() {
		return fmt.Errorf("cannot jump to unknown step %q", target)
	}
	setStep(s, target)
	return nil
}

func enterEditMode(s *models.IntakeSession, target models.IntakeStep) error {
	if !target.IsCollectible() {
		return fmt.Errorf("step %q cannot be edited", target)
	}
	s.Flags.EditMode = true
	setStep(s, target)
	return nil
}

func exitEditMode(s *models.IntakeSession) {
	s.Flags.EditMode = false
	setStep(s, models.StepReview)
}

func setStep(s *models.IntakeSession, step models.IntakeStep) {
	s.CurrentStep = step
	s.Progress = models.ProgressFor(step)
}
