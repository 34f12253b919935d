// Package intake runs patient sessions end to end: it loads state, hands
// each utterance to the triage engine, persists the result and fans out
// the side effects of a turn.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/symptom-intake/internal/events"
	"github.com/wolfman30/symptom-intake/internal/observability/metrics"
	"github.com/wolfman30/symptom-intake/internal/session"
	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

const maxUtteranceLength = 2000

var (
	// ErrUnavailable wraps session store failures; callers should retry.
	ErrUnavailable = errors.New("intake: temporarily unavailable")
	// ErrInvalidInput is returned for requests the service refuses to process.
	ErrInvalidInput = errors.New("intake: invalid input")
)

// EmergencySink receives one event per session when it first becomes an
// emergency.
type EmergencySink interface {
	PublishEmergency(ctx context.Context, evt events.EmergencyRaised) error
}

// Auditor records compliance events for a turn.
type Auditor interface {
	LogRedaction(ctx context.Context, sessionID, patientID string, kinds []string) error
	LogEmergency(ctx context.Context, sessionID, patientID, priority, symptom string) error
	LogModelFallback(ctx context.Context, sessionID, step, repairStage string, modelFailed bool) error
}

// Archiver stores completed sessions.
type Archiver interface {
	ArchiveSession(ctx context.Context, state triage.State) error
}

// Disclaimer decorates summary replies.
type Disclaimer interface {
	Apply(ctx context.Context, sessionID, message string) string
}

type StartRequest struct {
	PatientID string `json:"patientId"`
	Language  string `json:"language"`
}

type StartResponse struct {
	SessionID string       `json:"sessionId"`
	Reply     triage.Reply `json:"reply"`
}

// Service is the session lifecycle entrypoint shared by every transport.
type Service struct {
	engine     *triage.Engine
	store      session.Store
	sink       EmergencySink
	auditor    Auditor
	archiver   Archiver
	disclaimer Disclaimer
	metrics    *metrics.IntakeMetrics
	logger     *logging.Logger
	tracer     trace.Tracer
	newID      func() string
}

type Option func(*Service)

func WithEmergencySink(sink EmergencySink) Option {
	return func(s *Service) { s.sink = sink }
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

func WithDisclaimer(d Disclaimer) Option {
	return func(s *Service) { s.disclaimer = d }
}

func WithMetrics(m *metrics.IntakeMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func NewService(engine *triage.Engine, store session.Store, logger *logging.Logger, opts ...Option) *Service {
	if engine == nil {
		panic("intake: engine cannot be nil")
	}
	if store == nil {
		panic("intake: session store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		engine: engine,
		store:  store,
		logger: logger,
		tracer: otel.Tracer("intake.internal.intake"),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a session and persists its initial state.
func (s *Service) Start(ctx context.Context, req StartRequest) (StartResponse, error) {
	state, reply := s.engine.Start(s.newID(), strings.TrimSpace(req.PatientID), normalizeLanguage(req.Language))
	if err := s.store.Save(ctx, state); err != nil {
		return StartResponse{}, fmt.Errorf("%w: save session: %w", ErrUnavailable, err)
	}
	s.metrics.ObserveSessionStarted()
	s.logger.Info("session started", "session_id", state.ID, "language", state.Language)
	return StartResponse{SessionID: state.ID, Reply: reply}, nil
}

// Get returns the persisted state of a session.
func (s *Service) Get(ctx context.Context, sessionID string) (triage.State, error) {
	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return triage.State{}, err
		}
		return triage.State{}, fmt.Errorf("%w: load session: %w", ErrUnavailable, err)
	}
	return state, nil
}

// Turn processes one utterance. Callers must not run two turns for the
// same session concurrently; see the dispatch package.
func (s *Service) Turn(ctx context.Context, sessionID, utterance string) (triage.Reply, error) {
	ctx, span := s.tracer.Start(ctx, "intake.turn", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()
	started := time.Now()

	if len(utterance) > maxUtteranceLength {
		return triage.Reply{}, fmt.Errorf("%w: utterance longer than %d bytes", ErrInvalidInput, maxUtteranceLength)
	}

	prev, err := s.Get(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return triage.Reply{}, err
	}

	result, err := s.engine.Handle(ctx, utterance, prev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine")
		return triage.Reply{}, err
	}

	reply := result.Reply
	if reply.Type == triage.ReplySummary && s.disclaimer != nil {
		reply.Message = s.disclaimer.Apply(ctx, sessionID, reply.Message)
	}

	if result.State.Step() != triage.StepCompleted || prev.Step() != triage.StepCompleted {
		if err := s.store.Save(ctx, result.State); err != nil {
			span.RecordError(err)
			return triage.Reply{}, fmt.Errorf("%w: save session: %w", ErrUnavailable, err)
		}
	}

	s.afterTurn(ctx, prev, result)
	s.metrics.ObserveTurn(string(result.State.Step()), string(result.Path), time.Since(started))
	span.SetAttributes(
		attribute.String("intake.step", string(result.State.Step())),
		attribute.String("intake.path", string(result.Path)),
	)
	return reply, nil
}

// afterTurn runs side effects. Their failures are logged and never undo
// the saved turn.
func (s *Service) afterTurn(ctx context.Context, prev triage.State, result triage.TurnResult) {
	state := result.State

	if result.EmergencyRaised {
		s.metrics.ObserveEmergency()
		if s.sink != nil {
			evt := events.EmergencyRaised{
				SessionID: state.ID,
				PatientID: state.PatientID,
				Priority:  string(state.Priority),
				Symptom:   state.CurrentSymptom(),
				Step:      string(state.Step()),
				RaisedAt:  state.UpdatedAt,
			}
			if err := s.sink.PublishEmergency(ctx, evt); err != nil {
				s.logger.Error("failed to publish emergency", "error", err, "session_id", state.ID)
			}
		}
		if s.auditor != nil {
			if err := s.auditor.LogEmergency(ctx, state.ID, state.PatientID, string(state.Priority), state.CurrentSymptom()); err != nil {
				s.logger.Error("failed to audit emergency", "error", err, "session_id", state.ID)
			}
		}
	}

	if len(result.Redactions) > 0 && s.auditor != nil {
		kinds := make([]string, 0, len(result.Redactions))
		for _, k := range result.Redactions {
			kinds = append(kinds, string(k))
		}
		if err := s.auditor.LogRedaction(ctx, state.ID, state.PatientID, kinds); err != nil {
			s.logger.Error("failed to audit redaction", "error", err, "session_id", state.ID)
		}
	}

	if result.Path == triage.PathModelAssisted {
		s.metrics.ObserveRepair(string(result.RepairStage))
		degraded := result.ModelFailed || (result.RepairStage != "" && result.RepairStage != triage.StageDirect)
		if degraded && s.auditor != nil {
			if err := s.auditor.LogModelFallback(ctx, state.ID, string(prev.Step()), string(result.RepairStage), result.ModelFailed); err != nil {
				s.logger.Error("failed to audit model fallback", "error", err, "session_id", state.ID)
			}
		}
	}

	if offer, ok := state.Phase.(triage.OfferingBooking); ok && prev.Step() != triage.StepBookingOffer {
		s.metrics.ObserveSlotFallback(offer.Offer.FallbackReason)
	}

	if state.Step() == triage.StepCompleted && prev.Step() != triage.StepCompleted && s.archiver != nil {
		if err := s.archiver.ArchiveSession(ctx, state); err != nil {
			s.logger.Error("failed to archive session", "error", err, "session_id", state.ID)
		}
	}
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if lang == "" {
		return "en"
	}
	return lang
}
