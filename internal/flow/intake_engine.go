package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/precare/internal/intent"
	"github.com/BTreeMap/precare/internal/metrics"
	"github.com/BTreeMap/precare/internal/models"
	"github.com/BTreeMap/precare/internal/redact"
	"github.com/BTreeMap/precare/internal/review"
	"github.com/BTreeMap/precare/internal/store"
	"github.com/BTreeMap/precare/internal/utterance"
	"github.com/BTreeMap/precare/internal/validate"
)

// maxTurnAttempts is one try plus one retry after a store failure.
const maxTurnAttempts = 2

// ErrTurnNotSaved is returned by HandleMessage when a turn could not be
// committed after the retry.
var ErrTurnNotSaved = errors.New("intake turn not saved")

// Engine processes patient messages against the intake state machine. It is
// safe for concurrent use; turns for the same session are serialized.
type Engine struct {
	store     store.Store
	locks     *store.KeyedLocker
	validator *validate.Validator
	recorder  metrics.Recorder
	now       func() time.Time
	sessions  *StoreBasedStateManager
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithValidator sets the field validator.
func WithValidator(v *validate.Validator) EngineOption {
	return func(e *Engine) { e.validator = v }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithLocker shares a per-session lock table with other writers of the store.
func WithLocker(l *store.KeyedLocker) EngineOption {
	return func(e *Engine) { e.locks = l }
}

// WithClock overrides the clock used for session timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine over st.
func NewEngine(st store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     st,
		locks:     store.NewKeyedLocker(),
		validator: validate.New(),
		recorder:  metrics.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sessions = &StoreBasedStateManager{store: st, locks: e.locks, now: e.now}
	return e
}

// Sessions returns the id-based state machine over the engine's store. It
// shares the engine's lock table, so its operations never interleave with a turn.
func (e *Engine) Sessions() StateManager {
	return e.sessions
}

// turn is the outcome of applying one message to a working copy of a session.
type turn struct {
	session    *models.IntakeSession
	utterance  string
	correction bool
	snapshot   bool
	mutated    bool
	outcome    string
}

func (t turn) response() models.TurnResponse {
	resp := models.TurnResponse{
		SessionID:          t.session.SessionID,
		CurrentStep:        t.session.CurrentStep,
		Progress:           t.session.Progress,
		Utterance:          t.utterance,
		RequiresCorrection: t.correction,
	}
	if t.snapshot {
		snap := review.BuildSnapshot(t.session.Answers)
		resp.ReviewSnapshot = &snap
	}
	return resp
}

// ProcessIntakeMessage applies one patient message and returns the next system
// utterance. It always returns a response: unknown sessions are created, and
// store failures are retried once before asking the patient to try again.
func (e *Engine) ProcessIntakeMessage(ctx context.Context, sessionID, text string) models.TurnResponse {
	resp, _ := e.HandleMessage(ctx, sessionID, text)
	return resp
}

// HandleMessage is ProcessIntakeMessage for callers that need to know whether
// the turn was committed. On ErrTurnNotSaved the response is the retry prompt
// and the session is unchanged.
func (e *Engine) HandleMessage(ctx context.Context, sessionID, text string) (models.TurnResponse, error) {
	start := time.Now()
	unlock := e.locks.Lock(sessionID)
	defer unlock()

	slog.Debug("Engine.HandleMessage: received", "sessionID", sessionID, "text", redact.Text(text))

	var (
		t      turn
		loaded *models.IntakeSession
		err    error
	)
	for attempt := 1; attempt <= maxTurnAttempts; attempt++ {
		t, loaded, err = e.runTurn(sessionID, text)
		if err == nil {
			break
		}
		slog.Warn("Engine.HandleMessage: turn failed", "sessionID", sessionID, "attempt", attempt, "error", err)
	}

	step := models.StepPatientInfo
	if loaded != nil {
		step = loaded.CurrentStep
	}
	if err != nil {
		slog.Error("Engine.HandleMessage: giving up after retry", "sessionID", sessionID, "error", err)
		e.recorder.ObserveTurn(string(step), metrics.OutcomeRetry, time.Since(start))
		return retryResponse(sessionID, loaded), fmt.Errorf("%w: %v", ErrTurnNotSaved, err)
	}

	e.recorder.ObserveTurn(string(step), t.outcome, time.Since(start))
	resp := t.response()
	slog.Info("Engine.HandleMessage: turn complete", "sessionID", sessionID, "from", step,
		"to", resp.CurrentStep, "outcome", t.outcome, "progress", resp.Progress)
	return resp, nil
}

// runTurn loads the session, decides the turn on a copy, and commits it with a
// single versioned save. loaded is the session as read, for error responses.
func (e *Engine) runTurn(sessionID, text string) (t turn, loaded *models.IntakeSession, err error) {
	loaded, err = e.store.GetSession(sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		slog.Info("Engine.runTurn: creating session on first message", "sessionID", sessionID)
		loaded = models.NewIntakeSession(sessionID, e.now())
	} else if err != nil {
		return turn{}, nil, fmt.Errorf("load session: %w", err)
	}

	t, err = e.decide(loaded.Clone(), text)
	if err != nil {
		return turn{}, loaded, err
	}
	if t.mutated || t.session.Version == 0 {
		t.session.UpdatedAt = e.now()
		if err := e.store.SaveSession(t.session); err != nil {
			return turn{}, loaded, fmt.Errorf("save session: %w", err)
		}
	}
	return t, loaded, nil
}

// decide applies text to s, which the caller owns.
func (e *Engine) decide(s *models.IntakeSession, text string) (turn, error) {
	if s.IsComplete() {
		return turn{session: s, utterance: utterance.Generate(models.StepComplete, models.PhaseAsk), outcome: metrics.OutcomeTerminal}, nil
	}

	in := intent.DetectAt(s.CurrentStep, text)
	if in.Kind != models.IntentNone {
		e.recorder.IncIntent(in.String())
		slog.Debug("Engine.decide: special intent", "sessionID", s.SessionID, "intent", in.String(), "step", s.CurrentStep)
	}

	switch in.Kind {
	case models.IntentReview:
		if s.Flags.EditMode {
			exitEditMode(s)
		} else if err := jumpToStep(s, models.StepReview); err != nil {
			return turn{}, err
		}
		return turn{session: s, utterance: utterance.Generate(models.StepReview, models.PhaseAsk),
			snapshot: true, mutated: true, outcome: metrics.OutcomeReview}, nil

	case models.IntentDone:
		s.Flags.EditMode = false
		if err := jumpToStep(s, models.StepComplete); err != nil {
			return turn{}, err
		}
		return turn{session: s, utterance: utterance.Generate(models.StepComplete, models.PhaseConfirm),
			mutated: true, outcome: metrics.OutcomeCompleted}, nil

	case models.IntentChangeField:
		return e.beginEdit(s, in.Target)

	case models.IntentUpdateField:
		return e.directUpdate(s, text, in)

	case models.IntentBack, models.IntentSkip:
		return reask(s), nil
	}

	if s.CurrentStep == models.StepReview {
		return reask(s), nil
	}
	return e.answer(s, text)
}

// answer validates text for the current step and moves the flow forward.
func (e *Engine) answer(s *models.IntakeSession, text string) (turn, error) {
	step := s.CurrentStep
	value, err := e.validator.Validate(step, text)
	if err != nil {
		return rejected(s, step, err), nil
	}
	if err := updateAnswer(s, step, value); err != nil {
		return turn{}, err
	}

	confirm := utterance.Generate(step, models.PhaseConfirm)
	switch {
	case s.Flags.EditMode:
		exitEditMode(s)
	case step == models.StepConcerns:
		if err := jumpToStep(s, models.StepReview); err != nil {
			return turn{}, err
		}
	default:
		moveToNextStep(s)
		return turn{session: s, utterance: confirm + " " + utterance.Generate(s.CurrentStep, models.PhaseAsk),
			mutated: true, outcome: metrics.OutcomeAdvanced}, nil
	}
	return turn{session: s, utterance: confirm + " " + utterance.Generate(models.StepReview, models.PhaseAsk),
		snapshot: true, mutated: true, outcome: metrics.OutcomeReview}, nil
}

// directUpdate writes the value carried by an update_<step> message and returns
// to review. Messages without a usable payload fall back to edit mode.
func (e *Engine) directUpdate(s *models.IntakeSession, text string, in models.SpecialIntent) (turn, error) {
	target := in.Target
	u := intent.Extract(text, in)
	if u == nil {
		slog.Debug("Engine.directUpdate: no payload, entering edit mode", "sessionID", s.SessionID, "target", target)
		return e.beginEdit(s, target)
	}

	raw := u.Value
	if u.Op == intent.OpAdd {
		existing, had := s.Answers.Get(target)
		raw, _ = combineAnswers(target, existing, had, raw)
	}
	value, err := e.validator.Validate(target, raw)
	if err != nil {
		return rejected(s, target, err), nil
	}
	if err := updateAnswer(s, target, value); err != nil {
		return turn{}, err
	}
	exitEditMode(s)
	return turn{session: s,
		utterance: utterance.Generate(target, models.PhaseConfirm) + " " + utterance.Generate(models.StepReview, models.PhaseAsk),
		snapshot:  true, mutated: true, outcome: metrics.OutcomeReview}, nil
}

func (e *Engine) beginEdit(s *models.IntakeSession, target models.IntakeStep) (turn, error) {
	if err := enterEditMode(s, target); err != nil {
		return turn{}, err
	}
	return turn{session: s, utterance: utterance.Generate(target, models.PhaseAsk), mutated: true, outcome: metrics.OutcomeEdit}, nil
}

// combineAnswers joins a raw added value onto the stored one; the result is
// validated as a whole. ok is false when the addition should simply replace
// the stored answer: nothing stored yet, or either side is a "no" answer.
func combineAnswers(step models.IntakeStep, existing string, had bool, addition string) (string, bool) {
	if !had || existing == "" || validate.IsNegationValue(step, existing) ||
		validate.IsNegationValue(step, addition) || validate.IsNegation(addition) {
		return addition, false
	}
	return existing + ", " + addition, true
}

func reask(s *models.IntakeSession) turn {
	return turn{session: s, utterance: utterance.Generate(s.CurrentStep, models.PhaseAsk), outcome: metrics.OutcomeReask}
}

func rejected(s *models.IntakeSession, step models.IntakeStep, err error) turn {
	text := utterance.Generate(step, models.PhaseError)
	var verr *models.ValidationError
	if errors.As(err, &verr) && verr.Hint != "" {
		text += " " + verr.Hint
	}
	slog.Debug("Engine: validation failed", "sessionID", s.SessionID, "step", step, "error", err)
	return turn{session: s, utterance: text, correction: true, outcome: metrics.OutcomeInvalid}
}

func retryResponse(sessionID string, loaded *models.IntakeSession) models.TurnResponse {
	resp := models.TurnResponse{
		SessionID:          sessionID,
		CurrentStep:        models.StepPatientInfo,
		Utterance:          utterance.Retry(),
		RequiresCorrection: true,
	}
	if loaded != nil {
		resp.CurrentStep = loaded.CurrentStep
		resp.Progress = loaded.Progress
	}
	return resp
}

// StartSession creates a session with a caller-chosen id and returns the
// opening prompt.
func (e *Engine) StartSession(ctx context.Context, sessionID string) (models.TurnResponse, error) {
	sess, err := e.sessions.CreateSession(ctx, sessionID)
	if err != nil {
		return models.TurnResponse{}, err
	}
	return reask(sess).response(), nil
}
