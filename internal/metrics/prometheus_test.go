package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveTurn("visit_reason", OutcomeAdvanced, 5*time.Millisecond)
	r.ObserveTurn("visit_reason", OutcomeAdvanced, 7*time.Millisecond)
	r.ObserveTurn("allergies", OutcomeInvalid, time.Millisecond)
	r.IncIntent("review")

	assert.Equal(t, 2.0, counterValue(t, r.turnsTotal.WithLabelValues("visit_reason", OutcomeAdvanced)))
	assert.Equal(t, 1.0, counterValue(t, r.turnsTotal.WithLabelValues("allergies", OutcomeInvalid)))
	assert.Equal(t, 1.0, counterValue(t, r.intentsTotal.WithLabelValues("review")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["precare_intake_turns_total"])
	assert.True(t, names["precare_intake_turn_duration_seconds"])
	assert.True(t, names["precare_intake_intents_total"])
}

func TestPrometheusRecorderSeparateRegistries(t *testing.T) {
	// Each registry gets its own collectors, so building two recorders must not panic.
	NewPrometheusRecorder(prometheus.NewRegistry())
	NewPrometheusRecorder(prometheus.NewRegistry())
}

func TestNop(t *testing.T) {
	r := Nop()
	r.ObserveTurn("review", OutcomeReask, time.Second)
	r.IncIntent("done")
}
