package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/precare/internal/models"
	"github.com/BTreeMap/precare/internal/store"
	"github.com/BTreeMap/precare/internal/summary"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /intake/sessions", s.createSessionHandler)
	mux.HandleFunc("GET /intake/sessions", s.listSessionsHandler)
	mux.HandleFunc("GET /intake/sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("POST /intake/sessions/{id}/messages", s.messageHandler)
	mux.HandleFunc("GET /intake/sessions/{id}/summary", s.summaryHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// sessionView is the API representation of a stored session.
type sessionView struct {
	SessionID   string            `json:"session_id"`
	CurrentStep models.IntakeStep `json:"current_step"`
	Progress    int               `json:"progress"`
	Answers     models.Answers    `json:"answers"`
	EditMode    bool              `json:"edit_mode"`
	Complete    bool              `json:"complete"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

func newSessionView(sess *models.IntakeSession) sessionView {
	return sessionView{
		SessionID:   sess.SessionID,
		CurrentStep: sess.CurrentStep,
		Progress:    sess.Progress,
		Answers:     sess.Answers,
		EditMode:    sess.Flags.EditMode,
		Complete:    sess.IsComplete(),
		CreatedAt:   sess.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:   sess.UpdatedAt.UTC().Format(timeLayout),
	}
}

// createSessionHandler handles POST /intake/sessions.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := s.newID()
	resp, err := s.engine.StartSession(r.Context(), id)
	if err != nil {
		slog.Error("Server.createSessionHandler: failed to create session", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create session"))
		return
	}
	slog.Info("Server.createSessionHandler: session created", "sessionID", id)
	writeJSONResponse(w, http.StatusCreated, models.Success(resp))
}

// listSessionsHandler handles GET /intake/sessions.
func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.st.ListSessions()
	if err != nil {
		slog.Error("Server.listSessionsHandler: failed to list sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, newSessionView(sess))
	}
	writeJSONResponse(w, http.StatusOK, models.Success(views))
}

// getSessionHandler handles GET /intake/sessions/{id}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r, "getSessionHandler")
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(newSessionView(sess)))
}

// summaryHandler handles GET /intake/sessions/{id}/summary.
func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r, "summaryHandler")
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(summary.Build(sess, s.now())))
}

// messageHandler handles POST /intake/sessions/{id}/messages. A message_id seen
// before is not processed again.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req models.MessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.messageHandler: failed to decode JSON", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.messageHandler: validation failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if req.MessageID != "" && s.dedup != nil {
		fresh, err := s.dedup.RecordInbound(req.MessageID, sessionID)
		if err != nil {
			// A dedup failure never drops the message.
			slog.Error("Server.messageHandler: dedup record failed", "error", err, "messageID", req.MessageID)
		} else if !fresh {
			slog.Info("Server.messageHandler: duplicate message ignored", "messageID", req.MessageID, "sessionID", sessionID)
			s.writeDuplicate(w, r, sessionID)
			return
		}
	}

	resp, turnErr := s.engine.HandleMessage(r.Context(), sessionID, req.Text)

	if req.MessageID != "" && s.dedup != nil {
		s.settleInbound(req.MessageID, turnErr)
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// settleInbound marks a message processed, or releases its id when the turn
// was not saved so the client's retry is processed.
func (s *Server) settleInbound(messageID string, turnErr error) {
	if turnErr != nil {
		slog.Warn("Server.settleInbound: turn not saved, releasing message id", "error", turnErr, "messageID", messageID)
		if err := s.dedup.ReleaseInbound(messageID); err != nil {
			slog.Error("Server.settleInbound: failed to release message id", "error", err, "messageID", messageID)
		}
		return
	}
	if err := s.dedup.MarkProcessed(messageID); err != nil {
		slog.Warn("Server.settleInbound: failed to mark message processed", "error", err, "messageID", messageID)
	}
}

func (s *Server) writeDuplicate(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		slog.Warn("Server.writeDuplicate: session unavailable", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Duplicate message ignored", nil))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Duplicate message ignored", newSessionView(sess)))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

// loadSession writes a 404 or 500 and returns false when the session cannot be read.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request, handler string) (*models.IntakeSession, bool) {
	sessionID := r.PathValue("id")
	sess, err := s.sessions.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		slog.Debug("Server."+handler+": session not found", "sessionID", sessionID)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return nil, false
	}
	if err != nil {
		slog.Error("Server."+handler+": failed to load session", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return nil, false
	}
	return sess, true
}
