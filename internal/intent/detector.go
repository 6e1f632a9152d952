// Package intent classifies patient messages into special intents and pulls
// direct-update payloads out of them.
package intent

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BTreeMap/precare/internal/models"
)

// MinPayloadLength is the shortest assignment payload that turns a field-jump
// into a direct update.
const MinPayloadLength = 3

var mutationVerb = regexp.MustCompile(`(?i)\b(?:change|edit|modify|update|add|set|correct|fix)\b`)

// fillers are dropped before navigation phrases are compared.
var fillers = map[string]bool{
	"please": true, "ok": true, "okay": true, "now": true, "just": true, "lets": true,
	"let's": true, "can": true, "we": true, "i": true, "i'm": true, "im": true, "am": true,
	"want": true, "to": true, "go": true, "the": true, "thanks": true, "thank": true,
	"you": true, "yes": true, "yeah": true, "sure": true, "me": true, "my": true,
	"like": true, "would": true, "i'd": true, "id": true, "and": true, "it": true, "this": true,
	"question": true, "step": true,
}

var navigation = map[string]models.SpecialIntent{
	"back":              models.BackIntent,
	"previous":          models.BackIntent,
	"undo":              models.BackIntent,
	"last one":          models.BackIntent,
	"skip":              models.SkipIntent,
	"pass":              models.SkipIntent,
	"next":              models.SkipIntent,
	"review":            models.ReviewIntent,
	"summary":           models.ReviewIntent,
	"show summary":      models.ReviewIntent,
	"show answers":      models.ReviewIntent,
	"see answers":       models.ReviewIntent,
	"review answers":    models.ReviewIntent,
	"done":              models.DoneIntent,
	"all done":          models.DoneIntent,
	"finish":            models.DoneIntent,
	"finished":          models.DoneIntent,
	"submit":            models.DoneIntent,
	"confirm":           models.DoneIntent,
	"complete":          models.DoneIntent,
	"looks good":        models.DoneIntent,
	"all good":          models.DoneIntent,
	"that's all":        models.DoneIntent,
	"thats all":         models.DoneIntent,
	"that's everything": models.DoneIntent,
	"that is all":       models.DoneIntent,
	"that's correct":    models.DoneIntent,
	"thats correct":     models.DoneIntent,
}

// Detect classifies text. Field intents win over navigation; a field intent is
// a direct update only when Extract can recover a payload of at least
// MinPayloadLength characters from it.
func Detect(text string) models.SpecialIntent {
	if mutationVerb.MatchString(text) {
		if t, ok := findTopic(text); ok {
			return classifyField(t, text)
		}
	}
	if in, ok := navigation[normalizePhrase(text)]; ok {
		return in
	}
	return models.NoIntent
}

// DetectAt is Detect for a session at step. At review, where free text is
// never an answer, a message that opens with a topic and an assignment such
// as "reason is fever" is also read as a field intent without a verb.
func DetectAt(step models.IntakeStep, text string) models.SpecialIntent {
	in := Detect(text)
	if in.Kind != models.IntentNone || step != models.StepReview {
		return in
	}
	for _, t := range topics {
		if t.lead.MatchString(text) {
			return classifyField(t, text)
		}
	}
	return in
}

func classifyField(t topic, text string) models.SpecialIntent {
	if u := extract(t, text); u != nil && utf8.RuneCountInString(u.Value) >= MinPayloadLength {
		return models.UpdateIntent(t.step)
	}
	return models.ChangeIntent(t.step)
}

// normalizePhrase lowercases text, strips punctuation other than apostrophes and
// drops filler words.
func normalizePhrase(text string) string {
	text = strings.ReplaceAll(strings.ToLower(text), "’", "'")
	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return r
		}
		return ' '
	}, text)
	var kept []string
	for _, w := range strings.Fields(text) {
		if !fillers[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func trimPayload(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ".!?"))
}
