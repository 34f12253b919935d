package triage

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// ReplyType tells the transport how to render a reply.
type ReplyType string

const (
	ReplyQuestion      ReplyType = "question"
	ReplyClarification ReplyType = "clarification"
	ReplyBookingOffer  ReplyType = "booking_offer"
	ReplySummary       ReplyType = "summary"
	ReplyCompleted     ReplyType = "completed"
	ReplyError         ReplyType = "error"
)

// SlotOption is one numbered booking choice.
type SlotOption struct {
	Index    int       `json:"index"`
	Label    string    `json:"label"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	DoctorID string    `json:"doctorId,omitempty"`
}

// Reply is the transport-independent bot response.
type Reply struct {
	Message               string          `json:"message"`
	Type                  ReplyType       `json:"type"`
	Options               []SlotOption    `json:"options,omitempty"`
	Summary               *SessionSummary `json:"summary,omitempty"`
	IsEmergency           bool            `json:"isEmergency"`
	Priority              Priority        `json:"priority,omitempty"`
	Step                  Step            `json:"step,omitempty"`
	SuggestedDoctor       *Doctor         `json:"suggestedDoctor,omitempty"`
	AllQuestionsCompleted bool            `json:"allQuestionsCompleted,omitempty"`
}

// RetryReply is shown when a required collaborator is unavailable.
func RetryReply() Reply {
	return Reply{
		Message: "Sorry, something went wrong on our side. Please try again in a moment.",
		Type:    ReplyError,
	}
}

// ModelReply is the structured reply requested from the model.
type ModelReply struct {
	Message               string      `json:"message"`
	Type                  string      `json:"type"`
	NextStep              string      `json:"nextStep"`
	CurrentSymptom        *string     `json:"currentSymptom"`
	QuestionNumber        looseNumber `json:"questionNumber,omitempty"`
	AllQuestionsCompleted looseBool   `json:"allQuestionsCompleted"`
	SessionSummary        looseText   `json:"sessionSummary,omitempty"`
	DiagnosisSuggestions  looseList   `json:"diagnosis_suggestions,omitempty"`
	IsEmergency           *looseBool  `json:"isEmergency,omitempty"`
}

func (r ModelReply) emergency() bool {
	return r.IsEmergency != nil && bool(*r.IsEmergency)
}

// hints is the model output fed to the priority classifier.
func (r ModelReply) hints() string {
	return strings.TrimSpace(string(r.SessionSummary) + " " + strings.Join(r.DiagnosisSuggestions, " "))
}

// looseText accepts a JSON string or any other JSON value, kept as compact text.
type looseText string

func (t *looseText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = looseText(s)
		return nil
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = ""
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return err
	}
	*t = looseText(buf.String())
	return nil
}

// looseList accepts either a list of strings or a single string.
type looseList []string

func (l *looseList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single = strings.TrimSpace(single); single != "" {
		*l = []string{single}
	}
	return nil
}

// looseBool accepts booleans, numbers and yes/no style strings. Anything
// else reads as false rather than failing the whole reply.
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case bool:
		*b = looseBool(x)
	case float64:
		*b = x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "y", "1":
			*b = true
		default:
			*b = false
		}
	default:
		*b = false
	}
	return nil
}

// looseNumber keeps a numeric value as text; non-numeric values are dropped.
type looseNumber string

func (n looseNumber) String() string { return string(n) }

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*n = looseNumber(num)
		return nil
	}
	*n = ""
	return nil
}
