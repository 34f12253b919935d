package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

// LatencyObserver receives one observation per model call.
type LatencyObserver interface {
	ObserveModelLatency(purpose, outcome string, d time.Duration)
}

// Assistant turns engine prompts into provider requests.
type Assistant struct {
	client    Client
	model     string
	maxTokens int32
	observer  LatencyObserver
	logger    *logging.Logger
	tracer    trace.Tracer
}

type AssistantOption func(*Assistant)

func WithMaxTokens(n int32) AssistantOption {
	return func(a *Assistant) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

func WithLatencyObserver(o LatencyObserver) AssistantOption {
	return func(a *Assistant) { a.observer = o }
}

func NewAssistant(client Client, model string, logger *logging.Logger, opts ...AssistantOption) *Assistant {
	if client == nil {
		panic("llm: client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	a := &Assistant{
		client:    client,
		model:     model,
		maxTokens: 600,
		logger:    logger,
		tracer:    otel.Tracer("intake.internal.llm"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Complete implements triage.Model.
func (a *Assistant) Complete(ctx context.Context, prompt triage.Prompt) (string, error) {
	ctx, span := a.tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("session.id", prompt.SessionID),
		attribute.String("llm.purpose", string(prompt.Purpose)),
		attribute.String("llm.model", a.model),
	))
	defer span.End()

	start := time.Now()
	resp, err := a.client.Complete(ctx, Request{
		Model:       a.model,
		System:      []string{prompt.Instructions()},
		Messages:    []Message{{Role: RoleUser, Content: prompt.Transcript()}},
		MaxTokens:   a.maxTokens,
		Temperature: 0.2,
	})
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	case strings.TrimSpace(resp.Text) == "":
		outcome = "empty"
		err = errors.New("llm: empty completion")
	}
	if a.observer != nil {
		a.observer.ObserveModelLatency(string(prompt.Purpose), outcome, elapsed)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return "", err
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", int(resp.Usage.InputTokens)),
		attribute.Int("llm.tokens.output", int(resp.Usage.OutputTokens)),
	)
	a.logger.Debug("model completion",
		"session_id", prompt.SessionID,
		"purpose", prompt.Purpose,
		"latency_ms", elapsed.Milliseconds(),
		"output_tokens", resp.Usage.OutputTokens,
	)
	return resp.Text, nil
}
