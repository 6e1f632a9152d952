package intent

import (
	"regexp"

	"github.com/BTreeMap/precare/internal/models"
)

// assignmentToken captures "add" on its own so Extract can report OpAdd.
const assignmentToken = `(?:\b(add|is|set|to|started|when)\b|([=:]))`

// topic ties a collectible step to the keywords that name it. Detection and
// extraction both read from this table.
type topic struct {
	step models.IntakeStep
	// re finds the keyword anywhere in a message.
	re *regexp.Regexp
	// lead matches a message that opens with the keyword and an assignment,
	// e.g. "reason is fever".
	lead *regexp.Regexp
	// update is keyword, up to three filler words, assignment token, payload.
	// It is nil for steps that take no one-line update.
	update *regexp.Regexp
}

func newTopic(step models.IntakeStep, keywords string, updatable bool) topic {
	t := topic{
		step: step,
		re:   regexp.MustCompile(`(?i)\b(?:` + keywords + `)\b`),
		lead: regexp.MustCompile(`(?is)^\s*(?:(?:my|the)\s+)?(?:` + keywords + `)\b\s*(?:[\w']+\s+)?(?:\b(?:add|is|set)\b|[=:])`),
	}
	if updatable {
		t.update = regexp.MustCompile(`(?is)\b(?:` + keywords + `)\b\s*(?:[\w']+\s+){0,3}?` + assignmentToken + `\s*(.+)$`)
	}
	return t
}

// patient_info is not updatable: its three sub-fields cannot be replaced from
// a one-line update, so those messages open edit mode instead.
var topics = []topic{
	newTopic(models.StepPatientInfo, `name|patient|birth|birthday|dob|phone|contact`, false),
	newTopic(models.StepVisitReason, `reasons?|visit|complaint`, true),
	newTopic(models.StepSymptomOnset, `symptoms?|onset`, true),
	newTopic(models.StepPreviousTreatment, `treatments?|medications?`, true),
	newTopic(models.StepMedicalConditions, `conditions?|history`, true),
	newTopic(models.StepAllergies, `allerg\w*`, true),
	newTopic(models.StepConcerns, `concerns?|worries|questions?`, true),
}

func topicFor(step models.IntakeStep) (topic, bool) {
	for _, t := range topics {
		if t.step == step {
			return t, true
		}
	}
	return topic{}, false
}

// findTopic returns the topic whose keyword appears leftmost in text.
func findTopic(text string) (topic, bool) {
	best := -1
	var found topic
	for _, t := range topics {
		loc := t.re.FindStringIndex(text)
		if loc == nil || (best >= 0 && loc[0] >= best) {
			continue
		}
		best, found = loc[0], t
	}
	return found, best >= 0
}
