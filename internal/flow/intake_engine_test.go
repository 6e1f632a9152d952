package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/BTreeMap/precare/internal/models"
	"github.com/BTreeMap/precare/internal/store"
	"github.com/BTreeMap/precare/internal/utterance"
	"github.com/BTreeMap/precare/internal/validate"
)

func newTestEngine(st store.Store) *Engine {
	return NewEngine(st,
		WithValidator(validate.New(validate.WithClock(testClock))),
		WithClock(testClock),
	)
}

// scriptedTurn is one message and the state it must leave the session in.
type scriptedTurn struct {
	text     string
	step     models.IntakeStep
	progress int
}

var fullIntake = []scriptedTurn{
	{"John Doe, 1990-05-15, 5551234567", models.StepVisitReason, 22},
	{"chest pain for a week", models.StepSymptomOnset, 33},
	{"about a week ago", models.StepPreviousTreatment, 44},
	{"I took ibuprofen twice a day", models.StepMedicalConditions, 56},
	{"asthma since childhood", models.StepAllergies, 67},
	{"penicillin", models.StepConcerns, 78},
	{"worried it might be my heart", models.StepReview, 89},
}

// driveToReview runs the full scripted intake for sessionID and returns the
// final response.
func driveToReview(t *testing.T, e *Engine, sessionID string) models.TurnResponse {
	t.Helper()
	var resp models.TurnResponse
	for _, turn := range fullIntake {
		resp = e.ProcessIntakeMessage(context.Background(), sessionID, turn.text)
		if resp.RequiresCorrection {
			t.Fatalf("message %q rejected: %s", turn.text, resp.Utterance)
		}
	}
	return resp
}

func TestEngine_EndToEnd(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)
	ctx := context.Background()

	last := 0
	var resp models.TurnResponse
	for i, turn := range fullIntake {
		resp = e.ProcessIntakeMessage(ctx, "s1", turn.text)
		if resp.RequiresCorrection {
			t.Fatalf("turn %d (%q) rejected: %s", i, turn.text, resp.Utterance)
		}
		if resp.CurrentStep != turn.step {
			t.Errorf("turn %d: expected step %s, got %s", i, turn.step, resp.CurrentStep)
		}
		if resp.Progress != turn.progress {
			t.Errorf("turn %d: expected progress %d, got %d", i, turn.progress, resp.Progress)
		}
		if resp.Progress < last {
			t.Errorf("turn %d: progress went backwards from %d to %d", i, last, resp.Progress)
		}
		last = resp.Progress
		if resp.CurrentStep != models.StepReview && resp.ReviewSnapshot != nil {
			t.Errorf("turn %d: unexpected snapshot outside review", i)
		}
	}

	if resp.ReviewSnapshot == nil {
		t.Fatal("expected a review snapshot after concerns")
	}
	for _, want := range []string{
		"Full name: John Doe",
		"Date of birth: 1990-05-15",
		"Phone: 5551234567",
		"Reason for visit: chest pain for a week",
		"Symptoms started: about a week ago",
		"Previous treatment: I took ibuprofen twice a day",
		"Medical conditions: asthma since childhood",
		"Allergies: penicillin",
		"Concerns: worried it might be my heart",
	} {
		if !strings.Contains(*resp.ReviewSnapshot, want) {
			t.Errorf("snapshot missing %q:\n%s", want, *resp.ReviewSnapshot)
		}
	}

	resp = e.ProcessIntakeMessage(ctx, "s1", "done")
	if resp.CurrentStep != models.StepComplete || resp.Progress != 100 {
		t.Fatalf("expected complete/100, got %s/%d", resp.CurrentStep, resp.Progress)
	}
	if resp.Utterance != utterance.Generate(models.StepComplete, models.PhaseConfirm) {
		t.Errorf("unexpected completion utterance %q", resp.Utterance)
	}

	stored, err := st.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.Answers.Patient == nil || stored.Answers.Patient.FullName != "John Doe" {
		t.Errorf("patient answer not stored: %+v", stored.Answers.Patient)
	}
}

func TestEngine_ConfirmThenAsk(t *testing.T) {
	e := newTestEngine(store.NewInMemoryStore())
	resp := e.ProcessIntakeMessage(context.Background(), "s1", "John Smith 1985-01-15 5551234567")

	want := utterance.Generate(models.StepPatientInfo, models.PhaseConfirm) + " " +
		utterance.Generate(models.StepVisitReason, models.PhaseAsk)
	if resp.Utterance != want {
		t.Errorf("expected %q, got %q", want, resp.Utterance)
	}
}

func TestEngine_LazyCreationOnInvalidFirstMessage(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)

	resp := e.ProcessIntakeMessage(context.Background(), "new-session", "hello")
	if !resp.RequiresCorrection {
		t.Fatal("expected correction for a greeting at patient_info")
	}
	if resp.CurrentStep != models.StepPatientInfo || resp.Progress != 0 {
		t.Errorf("expected patient_info/0, got %s/%d", resp.CurrentStep, resp.Progress)
	}
	if !strings.HasPrefix(resp.Utterance, utterance.Generate(models.StepPatientInfo, models.PhaseError)) {
		t.Errorf("expected error utterance, got %q", resp.Utterance)
	}

	stored, err := st.GetSession("new-session")
	if err != nil {
		t.Fatalf("expected lazily created session, got %v", err)
	}
	if stored.Answers.Has(models.StepPatientInfo) {
		t.Error("rejected answer must not be stored")
	}
}

func TestEngine_ValidationFailureLeavesSessionUntouched(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)
	ctx := context.Background()

	e.ProcessIntakeMessage(ctx, "s1", "John Doe, 1990-05-15, 5551234567")
	before, _ := st.GetSession("s1")

	resp := e.ProcessIntakeMessage(ctx, "s1", "abc")
	if !resp.RequiresCorrection {
		t.Fatal("expected requires_correction for a too-short reason")
	}
	if !strings.Contains(resp.Utterance, "at least 5 characters") {
		t.Errorf("expected validator hint in utterance, got %q", resp.Utterance)
	}

	after, _ := st.GetSession("s1")
	if after.Version != before.Version || after.CurrentStep != before.CurrentStep {
		t.Errorf("session mutated by a rejected answer: version %d->%d, step %s->%s",
			before.Version, after.Version, before.CurrentStep, after.CurrentStep)
	}
}

func TestEngine_IdempotentReview(t *testing.T) {
	e := newTestEngine(store.NewInMemoryStore())
	ctx := context.Background()
	driveToReview(t, e, "s1")

	first := e.ProcessIntakeMessage(ctx, "s1", "review")
	second := e.ProcessIntakeMessage(ctx, "s1", "show me my answers")
	if first.ReviewSnapshot == nil || second.ReviewSnapshot == nil {
		t.Fatal("expected snapshots on both review requests")
	}
	if *first.ReviewSnapshot != *second.ReviewSnapshot {
		t.Errorf("snapshots differ:\n%s\n---\n%s", *first.ReviewSnapshot, *second.ReviewSnapshot)
	}
}

func TestEngine_ReviewIntentMidFlow(t *testing.T) {
	e := newTestEngine(store.NewInMemoryStore())
	ctx := context.Background()
	e.ProcessIntakeMessage(ctx, "s1", "John Doe, 1990-05-15, 5551234567")

	resp := e.ProcessIntakeMessage(ctx, "s1", "review")
	if resp.CurrentStep != models.StepReview || resp.Progress != 89 {
		t.Fatalf("expected review/89, got %s/%d", resp.CurrentStep, resp.Progress)
	}
	if resp.ReviewSnapshot == nil || !strings.Contains(*resp.ReviewSnapshot, "Full name: John Doe") {
		t.Errorf("expected snapshot with patient details, got %v", resp.ReviewSnapshot)
	}
}

func TestEngine_EditRoundTrip(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)
	ctx := context.Background()
	before := driveToReview(t, e, "s1")

	resp := e.ProcessIntakeMessage(ctx, "s1", "change my allergies")
	if resp.CurrentStep != models.StepAllergies {
		t.Fatalf("expected allergies, got %s", resp.CurrentStep)
	}
	if resp.Utterance != utterance.Generate(models.StepAllergies, models.PhaseAsk) {
		t.Errorf("expected allergies prompt, got %q", resp.Utterance)
	}
	sess, _ := st.GetSession("s1")
	if !sess.Flags.EditMode {
		t.Fatal("expected edit mode")
	}

	resp = e.ProcessIntakeMessage(ctx, "s1", "latex")
	if resp.CurrentStep != models.StepReview || resp.ReviewSnapshot == nil {
		t.Fatalf("expected review with snapshot, got %s", resp.CurrentStep)
	}
	sess, _ = st.GetSession("s1")
	if sess.Flags.EditMode {
		t.Error("edit mode should be cleared after the edit")
	}

	oldLines := strings.Split(*before.ReviewSnapshot, "\n")
	newLines := strings.Split(*resp.ReviewSnapshot, "\n")
	if len(oldLines) != len(newLines) {
		t.Fatalf("line count changed: %d -> %d", len(oldLines), len(newLines))
	}
	for i := range oldLines {
		if strings.HasPrefix(oldLines[i], "Allergies:") {
			if newLines[i] != "Allergies: latex" {
				t.Errorf("expected new allergy line, got %q", newLines[i])
			}
			continue
		}
		if oldLines[i] != newLines[i] {
			t.Errorf("line %d changed: %q -> %q", i, oldLines[i], newLines[i])
		}
	}
}

func TestEngine_EditModeRejectsInvalidAnswer(t *testing.T) {
	e := newTestEngine(store.NewInMemoryStore())
	ctx := context.Background()
	driveToReview(t, e, "s1")

	e.ProcessIntakeMessage(ctx, "s1", "edit my reason")
	resp := e.ProcessIntakeMessage(ctx, "s1", "ab")
	if !resp.RequiresCorrection || resp.CurrentStep != models.StepVisitReason {
		t.Errorf("expected correction at visit_reason, got %s (correction=%v)", resp.CurrentStep, resp.RequiresCorrection)
	}
}

func TestEngine_DirectUpdate(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"add appends", "reason add fever", "cough, fever"},
		{"replace overwrites", "update my reason to fever", "fever"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewInMemoryStore()
			e := newTestEngine(st)
			ctx := context.Background()
			e.ProcessIntakeMessage(ctx, "s1", "John Doe, 1990-05-15, 5551234567")
			e.ProcessIntakeMessage(ctx, "s1", "cough")

			resp := e.ProcessIntakeMessage(ctx, "s1", tt.message)
			if resp.RequiresCorrection {
				t.Fatalf("update rejected: %s", resp.Utterance)
			}
			if resp.CurrentStep != models.StepReview || resp.ReviewSnapshot == nil {
				t.Fatalf("expected review with snapshot, got %s", resp.CurrentStep)
			}
			sess, _ := st.GetSession("s1")
			if got, _ := sess.Answers.Get(models.StepVisitReason); got != tt.want {
				t.Errorf("expected visit_reason %q, got %q", tt.want, got)
			}
			if sess.Flags.EditMode {
				t.Error("direct update must leave edit mode off")
			}
		})
	}
}

func TestEngine_VerblessUpdateAtReview(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)
	ctx := context.Background()
	driveToReview(t, e, "s1")

	resp := e.ProcessIntakeMessage(ctx, "s1", "reason is fever")
	if resp.RequiresCorrection {
		t.Fatalf("update rejected: %s", resp.Utterance)
	}
	if resp.CurrentStep != models.StepReview || resp.ReviewSnapshot == nil {
		t.Fatalf("expected review with snapshot, got %s", resp.CurrentStep)
	}
	if !strings.Contains(*resp.ReviewSnapshot, "fever") {
		t.Errorf("snapshot does not show the new reason: %q", *resp.ReviewSnapshot)
	}
	sess, _ := st.GetSession("s1")
	if got, _ := sess.Answers.Get(models.StepVisitReason); got != "fever" {
		t.Errorf("expected visit_reason %q, got %q", "fever", got)
	}
}

func TestEngine_VerblessAssignmentMidFlowIsAnAnswer(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)
	ctx := context.Background()
	e.ProcessIntakeMessage(ctx, "s1", "John Doe, 1990-05-15, 5551234567")

	resp := e.ProcessIntakeMessage(ctx, "s1", "reason is back pain")
	if resp.CurrentStep != models.StepSymptomOnset {
		t.Fatalf("expected the answer to advance to symptom_onset, got %s", resp.CurrentStep)
	}
	sess, _ := st.GetSession("s1")
	if got, _ := sess.Answers.Get(models.StepVisitReason); got != "reason is back pain" {
		t.Errorf("expected the message stored as the answer, got %q", got)
	}
}

func TestEngine_DirectUpdateEveryTopicWord(t *testing.T) {
	tests := []struct {
		message string
		step    models.IntakeStep
		want    string
	}{
		{"change my complaint to headache", models.StepVisitReason, "headache"},
		{"update my visit to knee pain", models.StepVisitReason, "knee pain"},
		{"update my history to asthma", models.StepMedicalConditions, "asthma"},
		{"change my worries to the cost", models.StepConcerns, "the cost"},
		{"update my questions to parking", models.StepConcerns, "parking"},
		{"update my medications to aspirin", models.StepPreviousTreatment, "aspirin"},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			st := store.NewInMemoryStore()
			e := newTestEngine(st)
			driveToReview(t, e, "s1")

			resp := e.ProcessIntakeMessage(context.Background(), "s1", tt.message)
			if resp.RequiresCorrection || resp.CurrentStep != models.StepReview {
				t.Fatalf("expected review without correction, got %s (%q)", resp.CurrentStep, resp.Utterance)
			}
			sess, _ := st.GetSession("s1")
			if got, _ := sess.Answers.Get(tt.step); got != tt.want {
				t.Errorf("expected %s %q, got %q", tt.step, tt.want, got)
			}
			if sess.Flags.EditMode {
				t.Error("direct update must not leave edit mode on")
			}
		})
	}
}

func TestEngine_AddValidatesCombinedValue(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)
	ctx := context.Background()
	driveToReview(t, e, "s1")

	resp := e.ProcessIntakeMessage(ctx, "s1", "reason add flu")
	if resp.RequiresCorrection {
		t.Fatalf("short addition onto a valid answer rejected: %s", resp.Utterance)
	}
	sess, _ := st.GetSession("s1")
	if got, _ := sess.Answers.Get(models.StepVisitReason); got != "chest pain for a week, flu" {
		t.Errorf("expected combined reason, got %q", got)
	}

	other := store.NewInMemoryStore()
	e = newTestEngine(other)
	e.ProcessIntakeMessage(ctx, "s2", "John Doe, 1990-05-15, 5551234567")
	e.ProcessIntakeMessage(ctx, "s2", "review")
	resp = e.ProcessIntakeMessage(ctx, "s2", "reason add flu")
	if !resp.RequiresCorrection {
		t.Error("a short addition with nothing stored must still be validated on its own")
	}
}

func TestEngine_AddOntoNegationReplaces(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)
	ctx := context.Background()
	driveToReview(t, e, "s1")

	e.ProcessIntakeMessage(ctx, "s1", "change my allergies")
	e.ProcessIntakeMessage(ctx, "s1", "no")
	sess, _ := st.GetSession("s1")
	if got, _ := sess.Answers.Get(models.StepAllergies); got != "No known allergies" {
		t.Fatalf("expected canned negation, got %q", got)
	}

	e.ProcessIntakeMessage(ctx, "s1", "allergies add shellfish")
	sess, _ = st.GetSession("s1")
	if got, _ := sess.Answers.Get(models.StepAllergies); got != "shellfish" {
		t.Errorf("expected add onto a negation to replace it, got %q", got)
	}
}

func TestEngine_UpdateWithoutUsablePayloadEntersEditMode(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)
	ctx := context.Background()
	driveToReview(t, e, "s1")

	resp := e.ProcessIntakeMessage(ctx, "s1", "update my name to Jane Doe")
	if resp.RequiresCorrection {
		t.Fatalf("extraction miss must not be surfaced as an error: %q", resp.Utterance)
	}
	if resp.CurrentStep != models.StepPatientInfo {
		t.Fatalf("expected patient_info, got %s", resp.CurrentStep)
	}
	sess, _ := st.GetSession("s1")
	if !sess.Flags.EditMode {
		t.Error("expected edit mode after an extraction miss")
	}
}

func TestEngine_DirectUpdateInvalidValue(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)
	ctx := context.Background()
	driveToReview(t, e, "s1")
	before, _ := st.GetSession("s1")

	resp := e.ProcessIntakeMessage(ctx, "s1", "update my reason to flu")
	if !resp.RequiresCorrection {
		t.Fatal("expected a too-short update to be rejected")
	}
	after, _ := st.GetSession("s1")
	if after.Version != before.Version {
		t.Error("rejected update must not be saved")
	}
}

func TestEngine_BackAndSkipReask(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)
	ctx := context.Background()
	e.ProcessIntakeMessage(ctx, "s1", "John Doe, 1990-05-15, 5551234567")
	before, _ := st.GetSession("s1")

	for _, msg := range []string{"go back", "skip"} {
		resp := e.ProcessIntakeMessage(ctx, "s1", msg)
		if resp.CurrentStep != models.StepVisitReason {
			t.Errorf("%q: expected visit_reason, got %s", msg, resp.CurrentStep)
		}
		if resp.Utterance != utterance.Generate(models.StepVisitReason, models.PhaseAsk) {
			t.Errorf("%q: expected re-ask, got %q", msg, resp.Utterance)
		}
	}
	after, _ := st.GetSession("s1")
	if after.Version != before.Version {
		t.Error("navigation re-asks must not write the session")
	}
}

func TestEngine_FreeTextAtReviewReasks(t *testing.T) {
	e := newTestEngine(store.NewInMemoryStore())
	driveToReview(t, e, "s1")

	resp := e.ProcessIntakeMessage(context.Background(), "s1", "hmm let me think")
	if resp.CurrentStep != models.StepReview || resp.ReviewSnapshot != nil {
		t.Errorf("expected plain review re-ask, got %s (snapshot=%v)", resp.CurrentStep, resp.ReviewSnapshot != nil)
	}
	if resp.Utterance != utterance.Generate(models.StepReview, models.PhaseAsk) {
		t.Errorf("unexpected utterance %q", resp.Utterance)
	}
}

func TestEngine_TerminalImmutability(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)
	ctx := context.Background()
	driveToReview(t, e, "s1")
	e.ProcessIntakeMessage(ctx, "s1", "done")
	before, _ := st.GetSession("s1")

	for _, msg := range []string{"I forgot to mention my knee", "change my allergies", "review", "go back"} {
		resp := e.ProcessIntakeMessage(ctx, "s1", msg)
		if resp.CurrentStep != models.StepComplete || resp.Progress != 100 {
			t.Errorf("%q moved a completed session to %s/%d", msg, resp.CurrentStep, resp.Progress)
		}
	}
	after, _ := st.GetSession("s1")
	if after.Version != before.Version {
		t.Error("completed session was written")
	}
}

func TestEngine_RetriesOnceAfterSaveFailure(t *testing.T) {
	fs := &flakyStore{Store: store.NewInMemoryStore(), saveFailures: 1, failWith: store.ErrVersionConflict}
	e := newTestEngine(fs)

	resp := e.ProcessIntakeMessage(context.Background(), "s1", "John Doe, 1990-05-15, 5551234567")
	if resp.RequiresCorrection {
		t.Fatalf("expected the retry to succeed, got %q", resp.Utterance)
	}
	if resp.CurrentStep != models.StepVisitReason {
		t.Errorf("expected visit_reason, got %s", resp.CurrentStep)
	}
	if fs.calls() != 2 {
		t.Errorf("expected 2 save attempts, got %d", fs.calls())
	}
}

func TestEngine_GivesUpAfterSecondFailure(t *testing.T) {
	inner := store.NewInMemoryStore()
	fs := &flakyStore{Store: inner, failWith: errors.New("disk full")}
	e := newTestEngine(fs)
	ctx := context.Background()
	e.ProcessIntakeMessage(ctx, "s1", "John Doe, 1990-05-15, 5551234567")
	before, _ := inner.GetSession("s1")

	fs.mu.Lock()
	fs.saveFailures = 2
	fs.mu.Unlock()

	resp := e.ProcessIntakeMessage(ctx, "s1", "chest pain for a week")
	if !resp.RequiresCorrection {
		t.Fatal("expected requires_correction after two failed saves")
	}
	if resp.Utterance != utterance.Retry() {
		t.Errorf("expected retry utterance, got %q", resp.Utterance)
	}
	if resp.CurrentStep != models.StepVisitReason || resp.Progress != 22 {
		t.Errorf("expected the stored position visit_reason/22, got %s/%d", resp.CurrentStep, resp.Progress)
	}
	after, _ := inner.GetSession("s1")
	if after.Version != before.Version || after.Answers.Has(models.StepVisitReason) {
		t.Error("failed turn left a partial write")
	}
}

func TestEngine_HandleMessageReportsUnsavedTurn(t *testing.T) {
	fs := &flakyStore{Store: store.NewInMemoryStore(), saveFailures: 2, failWith: errors.New("disk full")}
	e := newTestEngine(fs)

	resp, err := e.HandleMessage(context.Background(), "s1", "John Doe, 1990-05-15, 5551234567")
	if !errors.Is(err, ErrTurnNotSaved) {
		t.Fatalf("expected ErrTurnNotSaved, got %v", err)
	}
	if resp.Utterance != utterance.Retry() || !resp.RequiresCorrection {
		t.Errorf("expected the retry response, got %+v", resp)
	}

	resp, err = e.HandleMessage(context.Background(), "s1", "John Doe, 1990-05-15, 5551234567")
	if err != nil {
		t.Fatalf("expected the resent message to be saved, got %v", err)
	}
	if resp.CurrentStep != models.StepVisitReason {
		t.Errorf("expected visit_reason, got %s", resp.CurrentStep)
	}
}

func TestEngine_SerializesConcurrentTurns(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)
	ctx := context.Background()
	e.ProcessIntakeMessage(ctx, "s1", "John Doe, 1990-05-15, 5551234567")

	// Each message is a valid free-text answer for any step, so every turn
	// advances exactly once if turns never interleave.
	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.ProcessIntakeMessage(ctx, "s1", fmt.Sprintf("concurrent answer %d", i))
		}(i)
	}
	wg.Wait()

	sess, _ := st.GetSession("s1")
	if sess.CurrentStep != models.StepConcerns {
		t.Errorf("expected five advances to reach concerns, got %s", sess.CurrentStep)
	}
	if len(sess.Answers.Text) != n {
		t.Errorf("expected %d answers, got %d", n, len(sess.Answers.Text))
	}
	if e.locks.Len() != 0 {
		t.Errorf("lock table should be empty, has %d entries", e.locks.Len())
	}
}

func TestEngine_IndependentSessions(t *testing.T) {
	e := newTestEngine(store.NewInMemoryStore())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", i)
			var resp models.TurnResponse
			for _, turn := range fullIntake {
				resp = e.ProcessIntakeMessage(context.Background(), id, turn.text)
			}
			if resp.CurrentStep != models.StepReview {
				t.Errorf("%s: expected review, got %s", id, resp.CurrentStep)
			}
		}(i)
	}
	wg.Wait()
}

func TestEngine_StartSession(t *testing.T) {
	st := store.NewInMemoryStore()
	e := newTestEngine(st)
	ctx := context.Background()

	resp, err := e.StartSession(ctx, "s1")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if resp.CurrentStep != models.StepPatientInfo || resp.Progress != 0 {
		t.Errorf("expected patient_info/0, got %s/%d", resp.CurrentStep, resp.Progress)
	}
	if resp.Utterance != utterance.Generate(models.StepPatientInfo, models.PhaseAsk) {
		t.Errorf("expected opening prompt, got %q", resp.Utterance)
	}

	if _, err := e.StartSession(ctx, "s1"); !errors.Is(err, store.ErrSessionExists) {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}

	sess, err := e.Sessions().GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("Sessions().GetSession: %v", err)
	}
	if !sess.CreatedAt.Equal(testClock()) {
		t.Errorf("expected the engine clock on the new session, got %v", sess.CreatedAt)
	}
}

func TestCombineAnswers(t *testing.T) {
	tests := []struct {
		existing string
		had      bool
		addition string
		want     string
		ok       bool
	}{
		{"cough", true, "fever", "cough, fever", true},
		{"", false, "fever", "fever", false},
		{"No specific reason", true, "fever", "fever", false},
		{"cough", true, "No specific reason", "No specific reason", false},
		{"cough", true, "none", "none", false},
	}
	for _, tt := range tests {
		got, ok := combineAnswers(models.StepVisitReason, tt.existing, tt.had, tt.addition)
		if got != tt.want || ok != tt.ok {
			t.Errorf("combineAnswers(%q, %q) = %q, %v; want %q, %v", tt.existing, tt.addition, got, ok, tt.want, tt.ok)
		}
	}
}
