// Package events emits intake events through a Postgres outbox and delivers
// them to RabbitMQ.
package events

import "time"

// EventEmergencyRaised is published once per session, on the turn that
// first flags it as an emergency.
const EventEmergencyRaised = "intake.emergency.raised.v1"

// EmergencyRaised carries no patient free text; downstream fan-out looks up
// the session when it needs detail.
type EmergencyRaised struct {
	SessionID string    `json:"session_id"`
	PatientID string    `json:"patient_id,omitempty"`
	Priority  string    `json:"priority"`
	Symptom   string    `json:"symptom,omitempty"`
	Step      string    `json:"step"`
	RaisedAt  time.Time `json:"raised_at"`
}
