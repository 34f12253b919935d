// Package triage is the conversational intake engine: it normalizes patient
// text, matches it to a symptom rule, sequences follow-up questions, stamps
// priority and walks each session from identification to booking.
package triage

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/symptom-intake/internal/scheduling"
)

var (
	// ErrCatalogUnavailable means no symptom rules could be loaded, so no
	// deterministic question can be asked.
	ErrCatalogUnavailable = errors.New("triage: symptom catalog unavailable")
	// ErrInvalidState is returned for session states that violate step requirements.
	ErrInvalidState = errors.New("triage: invalid session state")
)

// SymptomRule is one catalog entry keyed by its canonical symptom.
type SymptomRule struct {
	Symptom            string   `json:"symptom" validate:"required,max=80"`
	FollowUpQuestions  []string `json:"followUpQuestions" validate:"dive,required"`
	SeverityIndicators []string `json:"severityIndicators,omitempty" validate:"dive,required"`
	EmergencyFlags     []string `json:"emergencyFlags,omitempty" validate:"dive,required"`
}

// Catalog supplies symptom rules. FindRule returns nil, nil for unknown keys.
type Catalog interface {
	ListRules(ctx context.Context) ([]SymptomRule, error)
	FindRule(ctx context.Context, symptom string) (*SymptomRule, error)
}

// Model completes a prompt with raw text that should contain a JSON reply.
type Model interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Doctor identifies a bookable clinician.
type Doctor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Availability exposes the doctor directory and free/busy lookups.
type Availability interface {
	Doctors(ctx context.Context) ([]Doctor, error)
	FreeBusy(ctx context.Context, doctorID string, start, end time.Time) ([]scheduling.Interval, error)
}
