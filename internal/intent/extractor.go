package intent

import (
	"strings"

	"github.com/BTreeMap/precare/internal/models"
)

// Operation says how an extracted value combines with the stored answer.
type Operation string

// Update operations.
const (
	OpReplace Operation = "replace"
	OpAdd     Operation = "add"
)

// Update is a value pulled from a direct-update message.
type Update struct {
	Value string
	Op    Operation
}

// Extract pulls the new value for a direct-update intent. It returns nil when
// the intent is not an update or no payload can be recovered.
func Extract(text string, in models.SpecialIntent) *Update {
	if in.Kind != models.IntentUpdateField {
		return nil
	}
	t, ok := topicFor(in.Target)
	if !ok {
		return nil
	}
	return extract(t, text)
}

func extract(t topic, text string) *Update {
	if t.update == nil {
		return nil
	}
	m := t.update.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	value := trimPayload(m[3])
	if value == "" {
		return nil
	}
	op := OpReplace
	if strings.EqualFold(m[1], "add") {
		op = OpAdd
	}
	return &Update{Value: value, Op: op}
}
