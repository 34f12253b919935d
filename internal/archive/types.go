package archive

import (
	"time"

	"github.com/wolfman30/symptom-intake/internal/triage"
)

const recordVersion = "1.0"

// SessionRecord is the document written for each completed session.
type SessionRecord struct {
	Version        string                 `json:"version"`
	SessionID      string                 `json:"session_id"`
	PatientHash    string                 `json:"patient_hash,omitempty"`
	Language       string                 `json:"language"`
	StartedAt      time.Time              `json:"started_at"`
	ArchivedAt     time.Time              `json:"archived_at"`
	Symptom        string                 `json:"symptom"`
	QuestionsAsked int                    `json:"questions_asked"`
	Priority       string                 `json:"priority"`
	Emergency      bool                   `json:"emergency"`
	Answers        []triage.Answer        `json:"answers"`
	Selection      *triage.SlotChoice     `json:"selection,omitempty"`
	Summary        *triage.SessionSummary `json:"summary,omitempty"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	SessionID  string `json:"session_id"`
	S3Key      string `json:"s3_key"`
	Symptom    string `json:"symptom"`
	Priority   string `json:"priority"`
	Emergency  bool   `json:"emergency"`
	Booked     bool   `json:"booked"`
	ArchivedAt string `json:"archived_at"`
}

// NewSessionRecord builds a scrubbed record from a session state.
func NewSessionRecord(state triage.State, archivedAt time.Time) SessionRecord {
	answers := append([]triage.Answer(nil), state.Answers...)
	scrubAnswers(answers)
	rec := SessionRecord{
		Version:        recordVersion,
		SessionID:      state.ID,
		Language:       state.Language,
		StartedAt:      state.CreatedAt,
		ArchivedAt:     archivedAt.UTC(),
		Symptom:        state.CurrentSymptom(),
		QuestionsAsked: state.QuestionsAsked(),
		Priority:       string(state.Priority),
		Emergency:      state.Emergency,
		Answers:        answers,
		Selection:      state.Selection(),
		Summary:        state.Summary(),
	}
	if state.PatientID != "" {
		rec.PatientHash = HashPatientID(state.PatientID)
	}
	return rec
}
