// Package webchat serves the intake dialogue over a WebSocket.
package webchat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/symptom-intake/internal/dispatch"
	"github.com/wolfman30/symptom-intake/internal/intake"
	"github.com/wolfman30/symptom-intake/internal/session"
	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

const maxFrameBytes = 16 << 10

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type  string `json:"type"` // "message", "ping"
	Text  string `json:"text"`
	Async bool   `json:"async,omitempty"`
}

// OutboundMessage is what the widget receives.
type OutboundMessage struct {
	Type      string        `json:"type"` // "session", "reply", "queued", "typing", "pong", "error"
	SessionID string        `json:"sessionId,omitempty"`
	Step      triage.Step   `json:"step,omitempty"`
	Reply     *triage.Reply `json:"reply,omitempty"`
	JobID     string        `json:"jobId,omitempty"`
	Text      string        `json:"text,omitempty"`
	Timestamp string        `json:"timestamp,omitempty"`
}

// Handler manages chat connections.
type Handler struct {
	sessions intake.Sessions
	turns    intake.TurnSubmitter
	hub      *Hub
	logger   *logging.Logger
}

// NewHandler builds a chat handler. A nil hub gets a private one, which
// means queued replies are not pushed.
func NewHandler(sessions intake.Sessions, turns intake.TurnSubmitter, hub *Hub, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	return &Handler{
		sessions: sessions,
		turns:    turns,
		hub:      hub,
		logger:   logger,
	}
}

// HandleWebSocket handles GET /v1/ws. Query parameters: session resumes an
// existing session; otherwise patient and lang start a new one.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		conn.MaxPayloadBytes = maxFrameBytes
		h.serveWS(r.Context(), conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(ctx context.Context, conn *websocket.Conn, r *http.Request) {
	sessionID, ok := h.open(ctx, conn, r)
	if !ok {
		return
	}

	defer h.hub.register(sessionID, conn)()

	h.logger.Info("webchat: connection opened", "session_id", sessionID)
	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", sessionID, "error", err)
			return
		}
		switch msg.Type {
		case "ping":
			h.send(conn, OutboundMessage{Type: "pong"})
		case "message":
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			h.processMessage(ctx, conn, sessionID, msg)
		}
	}
}

// open resumes or starts the session and announces it to the client.
func (h *Handler) open(ctx context.Context, conn *websocket.Conn, r *http.Request) (string, bool) {
	q := r.URL.Query()
	if id := strings.TrimSpace(q.Get("session")); id != "" {
		state, err := h.sessions.Get(ctx, id)
		if err != nil {
			text := "Sorry, something went wrong. Please try again."
			if errors.Is(err, session.ErrNotFound) {
				text = "session not found"
			}
			h.send(conn, OutboundMessage{Type: "error", Text: text})
			return "", false
		}
		h.send(conn, OutboundMessage{Type: "session", SessionID: id, Step: state.Step()})
		return id, true
	}

	resp, err := h.sessions.Start(ctx, intake.StartRequest{PatientID: q.Get("patient"), Language: q.Get("lang")})
	if err != nil {
		h.logger.Error("webchat: failed to start session", "error", err)
		reply := triage.RetryReply()
		h.send(conn, OutboundMessage{Type: "error", Text: reply.Message})
		return "", false
	}
	h.send(conn, OutboundMessage{Type: "session", SessionID: resp.SessionID, Step: resp.Reply.Step})
	h.send(conn, replyMessage(resp.Reply))
	return resp.SessionID, true
}

func (h *Handler) processMessage(ctx context.Context, conn *websocket.Conn, sessionID string, msg InboundMessage) {
	if msg.Async {
		jobID, err := h.turns.Enqueue(ctx, sessionID, msg.Text)
		if err == nil {
			h.send(conn, OutboundMessage{Type: "queued", JobID: jobID})
			return
		}
		if !errors.Is(err, dispatch.ErrAsyncDisabled) {
			h.sendFailure(conn, sessionID, err)
			return
		}
	}

	h.send(conn, OutboundMessage{Type: "typing"})
	reply, err := h.turns.Submit(ctx, sessionID, msg.Text)
	if err != nil {
		h.sendFailure(conn, sessionID, err)
		return
	}
	h.send(conn, replyMessage(reply))
}

func (h *Handler) sendFailure(conn *websocket.Conn, sessionID string, err error) {
	h.logger.Error("webchat: turn failed", "error", err, "session_id", sessionID)
	if errors.Is(err, intake.ErrInvalidInput) {
		h.send(conn, OutboundMessage{Type: "error", Text: "message too long"})
		return
	}
	reply := triage.RetryReply()
	h.send(conn, OutboundMessage{Type: "error", Text: reply.Message, Reply: &reply})
}

func (h *Handler) send(conn *websocket.Conn, msg OutboundMessage) {
	if err := send(conn, msg); err != nil {
		h.logger.Debug("webchat: send failed", "error", err)
	}
}

func send(conn *websocket.Conn, msg OutboundMessage) error {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return websocket.JSON.Send(conn, msg)
}

func replyMessage(reply triage.Reply) OutboundMessage {
	return OutboundMessage{Type: "reply", Step: reply.Step, Reply: &reply}
}
