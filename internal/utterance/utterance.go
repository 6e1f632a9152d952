// Package utterance provides the fixed system utterances for each intake step.
package utterance

import (
	_ "embed"
	"fmt"

	"github.com/BTreeMap/precare/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed utterances.yaml
var tableYAML []byte

type table struct {
	Steps    map[models.IntakeStep]map[models.Phase]string `yaml:"steps"`
	Messages struct {
		Retry string `yaml:"retry"`
	} `yaml:"messages"`
}

var utterances table

func init() {
	if err := yaml.Unmarshal(tableYAML, &utterances); err != nil {
		panic(fmt.Sprintf("utterance: invalid table: %v", err))
	}
	for _, step := range models.StepOrder {
		for _, phase := range []models.Phase{models.PhaseAsk, models.PhaseConfirm, models.PhaseError} {
			if step == models.StepComplete && phase == models.PhaseError {
				continue
			}
			if utterances.Steps[step][phase] == "" {
				panic(fmt.Sprintf("utterance: missing %s text for step %s", phase, step))
			}
		}
	}
	if utterances.Messages.Retry == "" {
		panic("utterance: missing retry message")
	}
}

// Generate returns the utterance for step and phase. Unknown steps yield the
// patient_info prompt; complete has no error phase and answers with its ask text.
func Generate(step models.IntakeStep, phase models.Phase) string {
	byPhase, ok := utterances.Steps[step]
	if !ok {
		byPhase = utterances.Steps[models.StepPatientInfo]
	}
	if text, ok := byPhase[phase]; ok {
		return text
	}
	return byPhase[models.PhaseAsk]
}

// Retry is the generic response for a turn that could not be saved.
func Retry() string {
	return utterances.Messages.Retry
}
