package intake

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/symptom-intake/internal/dispatch"
	"github.com/wolfman30/symptom-intake/internal/session"
	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

// Sessions is the subset of Service the HTTP layer reads from.
type Sessions interface {
	Start(ctx context.Context, req StartRequest) (StartResponse, error)
	Get(ctx context.Context, sessionID string) (triage.State, error)
}

// TurnSubmitter serializes turns per session. dispatch.Dispatcher
// implements it.
type TurnSubmitter interface {
	Submit(ctx context.Context, sessionID, utterance string) (triage.Reply, error)
	Enqueue(ctx context.Context, sessionID, utterance string) (string, error)
}

// TurnRequest is the body of POST /v1/sessions/{sessionID}/turns.
type TurnRequest struct {
	Utterance string `json:"utterance" validate:"required,max=2000"`
}

// AcceptedResponse is returned for turns queued with Prefer: respond-async.
type AcceptedResponse struct {
	JobID     string `json:"jobId"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// SessionView is the body of GET /v1/sessions/{sessionID}.
type SessionView struct {
	Session     triage.State `json:"session"`
	Step        triage.Step  `json:"step"`
	IsEmergency bool         `json:"isEmergency"`
}

type errorResponse struct {
	Error string        `json:"error"`
	Reply *triage.Reply `json:"reply,omitempty"`
}

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// Handler wires HTTP requests to the intake service.
type Handler struct {
	sessions Sessions
	turns    TurnSubmitter
	logger   *logging.Logger
}

// NewHandler creates an intake handler.
func NewHandler(sessions Sessions, turns TurnSubmitter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		sessions: sessions,
		turns:    turns,
		logger:   logger,
	}
}

// Start handles POST /v1/sessions. An empty body is allowed.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("failed to decode start request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.sessions.Start(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+resp.SessionID)
	h.writeJSON(w, http.StatusCreated, resp)
}

// Turn handles POST /v1/sessions/{sessionID}/turns.
func (h *Handler) Turn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode turn request", "error", err, "session_id", sessionID)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Utterance = strings.TrimSpace(req.Utterance)
	if err := requestValidator.Struct(req); err != nil {
		http.Error(w, "utterance is required and must be at most 2000 characters", http.StatusBadRequest)
		return
	}

	if prefersAsync(r) {
		if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
			h.writeError(w, err)
			return
		}
		jobID, err := h.turns.Enqueue(r.Context(), sessionID, req.Utterance)
		switch {
		case err == nil:
			w.Header().Set("Location", "/v1/sessions/"+sessionID)
			h.writeJSON(w, http.StatusAccepted, AcceptedResponse{JobID: jobID, SessionID: sessionID, Status: "queued"})
			return
		case !errors.Is(err, dispatch.ErrAsyncDisabled):
			h.writeError(w, err)
			return
		}
	}

	reply, err := h.turns.Submit(r.Context(), sessionID, req.Utterance)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reply)
}

// Get handles GET /v1/sessions/{sessionID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SessionView{Session: state, Step: state.Step(), IsEmergency: state.Emergency})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
	case errors.Is(err, ErrInvalidInput):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, triage.ErrCatalogUnavailable), errors.Is(err, ErrUnavailable):
		h.logger.Error("turn unavailable", "error", err)
		reply := triage.RetryReply()
		w.Header().Set("Retry-After", "5")
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable", Reply: &reply})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "request timed out"})
	default:
		h.logger.Error("intake request failed", "error", err)
		reply := triage.RetryReply()
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Reply: &reply})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func prefersAsync(r *http.Request) bool {
	for _, v := range r.Header.Values("Prefer") {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), "respond-async") {
				return true
			}
		}
	}
	return false
}
