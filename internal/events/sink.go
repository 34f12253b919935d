package events

import (
	"context"

	"github.com/google/uuid"

	"github.com/wolfman30/symptom-intake/pkg/logging"
)

type outboxWriter interface {
	Insert(ctx context.Context, sessionID, eventType string, payload any) (uuid.UUID, error)
}

// OutboxSink records emergency events in the outbox for the Deliverer.
type OutboxSink struct {
	outbox outboxWriter
	logger *logging.Logger
}

func NewOutboxSink(outbox *OutboxStore, logger *logging.Logger) *OutboxSink {
	if outbox == nil {
		panic("events: outbox store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OutboxSink{outbox: outbox, logger: logger}
}

func (s *OutboxSink) PublishEmergency(ctx context.Context, evt EmergencyRaised) error {
	id, err := s.outbox.Insert(ctx, evt.SessionID, EventEmergencyRaised, evt)
	if err != nil {
		return err
	}
	s.logger.Info("emergency event queued", "event_id", id, "session_id", evt.SessionID, "priority", evt.Priority)
	return nil
}

// LogSink only logs emergencies. It is used when no outbox database is
// configured.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) PublishEmergency(ctx context.Context, evt EmergencyRaised) error {
	s.logger.Warn("emergency raised", "session_id", evt.SessionID, "priority", evt.Priority, "symptom", evt.Symptom)
	return nil
}
