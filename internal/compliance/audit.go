// Package compliance records the intake audit trail and the disclaimers
// attached to patient-facing summaries.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of compliance event.
type AuditEventType string

const (
	// EventRedaction is logged when patient text was redacted before use.
	EventRedaction AuditEventType = "intake.redaction"
	// EventEmergencyFlagged is logged once per session when it becomes an emergency.
	EventEmergencyFlagged AuditEventType = "intake.emergency_flagged"
	// EventModelFallback is logged when a model-assisted turn fell back to
	// deterministic content or a repaired reply.
	EventModelFallback AuditEventType = "intake.model_fallback"
	// EventDisclaimerSent is logged when a disclaimer is added to a reply.
	EventDisclaimerSent AuditEventType = "compliance.disclaimer_sent"
)

// AuditEvent is an immutable audit record. Patient text is never stored.
type AuditEvent struct {
	ID        string          `json:"id"`
	EventType AuditEventType  `json:"event_type"`
	SessionID string          `json:"session_id"`
	PatientID string          `json:"patient_id,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	RedactionKinds []string `json:"redaction_kinds,omitempty"`

	Priority string `json:"priority,omitempty"`
	Symptom  string `json:"symptom,omitempty"`

	Step        string `json:"step,omitempty"`
	RepairStage string `json:"repair_stage,omitempty"`
	ModelFailed bool   `json:"model_failed,omitempty"`

	DisclaimerLevel string `json:"disclaimer_level,omitempty"`
}

// AuditService writes to compliance_audit_events.
type AuditService struct {
	db  *sql.DB
	now func() time.Time
}

func NewAuditService(db *sql.DB) *AuditService {
	if db == nil {
		panic("compliance: db cannot be nil")
	}
	return &AuditService{db: db, now: time.Now}
}

// LogEvent records a compliance audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.SessionID == "" {
		return fmt.Errorf("compliance: session id required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compliance_audit_events (
			id, event_type, session_id, patient_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID,
		event.EventType,
		event.SessionID,
		nullString(event.PatientID),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return nil
}

func (s *AuditService) LogRedaction(ctx context.Context, sessionID, patientID string, kinds []string) error {
	return s.logDetails(ctx, EventRedaction, sessionID, patientID, AuditDetails{RedactionKinds: kinds})
}

func (s *AuditService) LogEmergency(ctx context.Context, sessionID, patientID, priority, symptom string) error {
	return s.logDetails(ctx, EventEmergencyFlagged, sessionID, patientID, AuditDetails{Priority: priority, Symptom: symptom})
}

func (s *AuditService) LogModelFallback(ctx context.Context, sessionID, step, repairStage string, modelFailed bool) error {
	return s.logDetails(ctx, EventModelFallback, sessionID, "", AuditDetails{
		Step:        step,
		RepairStage: repairStage,
		ModelFailed: modelFailed,
	})
}

func (s *AuditService) LogDisclaimerSent(ctx context.Context, sessionID string, level DisclaimerLevel) error {
	return s.logDetails(ctx, EventDisclaimerSent, sessionID, "", AuditDetails{DisclaimerLevel: string(level)})
}

func (s *AuditService) logDetails(ctx context.Context, eventType AuditEventType, sessionID, patientID string, details AuditDetails) error {
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("compliance: marshal details: %w", err)
	}
	return s.LogEvent(ctx, AuditEvent{
		EventType: eventType,
		SessionID: sessionID,
		PatientID: patientID,
		Details:   data,
	})
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	SessionID string
	EventType AuditEventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// QueryEvents retrieves audit events for one session, newest first.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, session_id, patient_id, details, created_at
		FROM compliance_audit_events
		WHERE session_id = $1`
	args := []any{filter.SessionID}

	if filter.EventType != "" {
		args = append(args, filter.EventType)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if !filter.StartTime.IsZero() {
		args = append(args, filter.StartTime)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.EndTime.IsZero() {
		args = append(args, filter.EndTime)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var patientID sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.SessionID, &patientID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.PatientID = patientID.String
		e.Details = details
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
