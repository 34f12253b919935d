package webchat

import (
	"context"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

// Hub tracks one live connection per session and pushes queued turn
// results to it. A newer connection for a session replaces the older one.
// Hub implements dispatch.ResultListener.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*websocket.Conn
	logger *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{conns: make(map[string]*websocket.Conn), logger: logger}
}

// register tracks conn and returns its unregister func.
func (h *Hub) register(sessionID string, conn *websocket.Conn) func() {
	h.mu.Lock()
	h.conns[sessionID] = conn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		if h.conns[sessionID] == conn {
			delete(h.conns, sessionID)
		}
		h.mu.Unlock()
	}
}

// SendToSession pushes a message to the session's live connection, if any.
func (h *Hub) SendToSession(sessionID string, msg OutboundMessage) bool {
	h.mu.RLock()
	conn, ok := h.conns[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if err := send(conn, msg); err != nil {
		h.logger.Debug("webchat: push failed", "error", err, "session_id", sessionID)
		return false
	}
	return true
}

func (h *Hub) TurnCompleted(ctx context.Context, sessionID, jobID string, reply triage.Reply, err error) {
	msg := replyMessage(reply)
	msg.JobID = jobID
	if err != nil {
		retry := triage.RetryReply()
		msg = OutboundMessage{Type: "error", JobID: jobID, Text: retry.Message, Reply: &retry}
	}
	if !h.SendToSession(sessionID, msg) {
		h.logger.Debug("webchat: no live connection for queued reply", "session_id", sessionID, "job_id", jobID)
	}
}
