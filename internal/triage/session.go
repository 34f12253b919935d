package triage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/symptom-intake/internal/scheduling"
)

// Step is a session's position in the intake flow.
type Step string

const (
	StepSymptomIdentification Step = "symptom_identification"
	StepSymptomQuestions      Step = "symptom_questions"
	StepBookingOffer          Step = "booking_offer"
	StepSessionSummary        Step = "session_summary"
	StepCompleted             Step = "completed"
)

// Order is the step's index in the flow; unknown steps return -1.
func (s Step) Order() int {
	switch s {
	case StepSymptomIdentification:
		return 0
	case StepSymptomQuestions:
		return 1
	case StepBookingOffer:
		return 2
	case StepSessionSummary:
		return 3
	case StepCompleted:
		return 4
	default:
		return -1
	}
}

// Answer is one audit-trail entry.
type Answer struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Symptom   string    `json:"symptom"`
	Timestamp time.Time `json:"timestamp"`
}

// Phase holds the fields required by one step. The set of phases is closed.
type Phase interface {
	Step() Step
	isPhase()
}

// Identifying is the symptom_identification phase.
type Identifying struct {
	ClarificationAttempts int
}

// Questioning is the symptom_questions phase.
type Questioning struct {
	Symptom string
	Asked   int
}

// OfferingBooking is the booking_offer phase.
type OfferingBooking struct {
	Symptom   string
	Asked     int
	Offer     BookingOffer
	Reprompts int
}

// Summarizing is the session_summary phase.
type Summarizing struct {
	Symptom   string
	Asked     int
	Selection *SlotChoice
	Summary   SessionSummary
}

// Completed is the terminal phase.
type Completed struct {
	Symptom   string
	Asked     int
	Selection *SlotChoice
	Summary   SessionSummary
}

func (Identifying) Step() Step     { return StepSymptomIdentification }
func (Questioning) Step() Step     { return StepSymptomQuestions }
func (OfferingBooking) Step() Step { return StepBookingOffer }
func (Summarizing) Step() Step     { return StepSessionSummary }
func (Completed) Step() Step       { return StepCompleted }

func (Identifying) isPhase()     {}
func (Questioning) isPhase()     {}
func (OfferingBooking) isPhase() {}
func (Summarizing) isPhase()     {}
func (Completed) isPhase()       {}

// BookingOffer is the set of slots shown at booking_offer.
type BookingOffer struct {
	Doctor *Doctor                    `json:"doctor,omitempty"`
	Slots  []scheduling.CandidateSlot `json:"slots"`
	// FallbackReason explains a degraded offer: default slots, or slots
	// generated without a calendar.
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// SlotChoice is the patient's selected slot.
type SlotChoice struct {
	Slot     scheduling.CandidateSlot `json:"slot"`
	DoctorID string                   `json:"doctorId,omitempty"`
}

// SessionSummary is the doctor-facing recap produced at session_summary.
type SessionSummary struct {
	Text                 string   `json:"text"`
	DiagnosisSuggestions []string `json:"diagnosisSuggestions,omitempty"`
}

// State is one patient dialogue. Step-specific data lives in Phase.
type State struct {
	ID           string
	PatientID    string
	Language     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Phase        Phase
	Answers      []Answer
	LastQuestion string
	Emergency    bool
	Priority     Priority
}

// NewState returns a session at symptom_identification with zero counters.
func NewState(id, patientID, language string, now time.Time) State {
	if strings.TrimSpace(language) == "" {
		language = "en"
	}
	return State{
		ID:        id,
		PatientID: patientID,
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
		Phase:     Identifying{},
		Priority:  PriorityNormal,
	}
}

// Step returns the current step.
func (s State) Step() Step {
	if s.Phase == nil {
		return ""
	}
	return s.Phase.Step()
}

// CurrentSymptom returns the identified symptom, or "" before identification.
func (s State) CurrentSymptom() string {
	switch p := s.Phase.(type) {
	case Questioning:
		return p.Symptom
	case OfferingBooking:
		return p.Symptom
	case Summarizing:
		return p.Symptom
	case Completed:
		return p.Symptom
	}
	return ""
}

// QuestionsAsked returns the follow-up cursor for the current symptom.
func (s State) QuestionsAsked() int {
	switch p := s.Phase.(type) {
	case Questioning:
		return p.Asked
	case OfferingBooking:
		return p.Asked
	case Summarizing:
		return p.Asked
	case Completed:
		return p.Asked
	}
	return 0
}

// Selection returns the chosen slot once the booking step is over.
func (s State) Selection() *SlotChoice {
	switch p := s.Phase.(type) {
	case Summarizing:
		return p.Selection
	case Completed:
		return p.Selection
	}
	return nil
}

// Summary returns the session summary once generated.
func (s State) Summary() *SessionSummary {
	switch p := s.Phase.(type) {
	case Summarizing:
		return &p.Summary
	case Completed:
		return &p.Summary
	}
	return nil
}

// Validate checks the phase invariants.
func (s State) Validate() error {
	if s.Phase == nil {
		return fmt.Errorf("%w: missing phase", ErrInvalidState)
	}
	if s.Step() != StepSymptomIdentification && strings.TrimSpace(s.CurrentSymptom()) == "" {
		return fmt.Errorf("%w: %s requires a current symptom", ErrInvalidState, s.Step())
	}
	if s.QuestionsAsked() < 0 {
		return fmt.Errorf("%w: negative question cursor", ErrInvalidState)
	}
	if p, ok := s.Phase.(OfferingBooking); ok && len(p.Offer.Slots) == 0 {
		return fmt.Errorf("%w: booking_offer requires slots", ErrInvalidState)
	}
	return nil
}

func (s State) clone() State {
	out := s
	out.Answers = append([]Answer(nil), s.Answers...)
	return out
}

// symptomText concatenates everything the patient reported plus the symptom key.
func (s State) symptomText() string {
	parts := make([]string, 0, len(s.Answers)+1)
	if sym := s.CurrentSymptom(); sym != "" {
		parts = append(parts, sym)
	}
	for _, a := range s.Answers {
		parts = append(parts, a.Answer)
	}
	return strings.Join(parts, " ")
}

func (s *State) recordAnswer(answer, symptom string, at time.Time) {
	s.Answers = append(s.Answers, Answer{
		Question:  s.LastQuestion,
		Answer:    answer,
		Symptom:   symptom,
		Timestamp: at,
	})
}

type stateWire struct {
	ID                    string          `json:"sessionId"`
	PatientID             string          `json:"patientId,omitempty"`
	Language              string          `json:"language"`
	CurrentStep           Step            `json:"currentStep"`
	CurrentSymptom        *string         `json:"currentSymptom"`
	QuestionsAsked        int             `json:"questionsAskedForCurrentSymptom"`
	ClarificationAttempts int             `json:"clarificationAttempts,omitempty"`
	AllPatientAnswers     []Answer        `json:"allPatientAnswers"`
	LastQuestion          string          `json:"lastQuestion"`
	IsEmergency           bool            `json:"isEmergency"`
	Priority              Priority        `json:"priority"`
	BookingOffer          *BookingOffer   `json:"bookingOffer,omitempty"`
	BookingReprompts      int             `json:"bookingReprompts,omitempty"`
	SelectedSlot          *SlotChoice     `json:"selectedSlot,omitempty"`
	SessionSummary        *SessionSummary `json:"sessionSummary,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// MarshalJSON flattens the phase into the stored session document.
func (s State) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	w := stateWire{
		ID:                s.ID,
		PatientID:         s.PatientID,
		Language:          s.Language,
		CurrentStep:       s.Step(),
		QuestionsAsked:    s.QuestionsAsked(),
		AllPatientAnswers: s.Answers,
		LastQuestion:      s.LastQuestion,
		IsEmergency:       s.Emergency,
		Priority:          s.Priority,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
	if w.AllPatientAnswers == nil {
		w.AllPatientAnswers = []Answer{}
	}
	if sym := s.CurrentSymptom(); sym != "" {
		w.CurrentSymptom = &sym
	}
	switch p := s.Phase.(type) {
	case Identifying:
		w.ClarificationAttempts = p.ClarificationAttempts
	case OfferingBooking:
		offer := p.Offer
		w.BookingOffer = &offer
		w.BookingReprompts = p.Reprompts
	case Summarizing:
		w.SelectedSlot = p.Selection
		summary := p.Summary
		w.SessionSummary = &summary
	case Completed:
		w.SelectedSlot = p.Selection
		summary := p.Summary
		w.SessionSummary = &summary
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds the phase from the stored document and rejects
// documents missing fields their step requires.
func (s *State) UnmarshalJSON(data []byte) error {
	var w stateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	symptom := ""
	if w.CurrentSymptom != nil {
		symptom = *w.CurrentSymptom
	}
	summary := SessionSummary{}
	if w.SessionSummary != nil {
		summary = *w.SessionSummary
	}

	var phase Phase
	switch w.CurrentStep {
	case StepSymptomIdentification:
		phase = Identifying{ClarificationAttempts: w.ClarificationAttempts}
	case StepSymptomQuestions:
		phase = Questioning{Symptom: symptom, Asked: w.QuestionsAsked}
	case StepBookingOffer:
		if w.BookingOffer == nil {
			return fmt.Errorf("%w: booking_offer without offer", ErrInvalidState)
		}
		phase = OfferingBooking{Symptom: symptom, Asked: w.QuestionsAsked, Offer: *w.BookingOffer, Reprompts: w.BookingReprompts}
	case StepSessionSummary:
		phase = Summarizing{Symptom: symptom, Asked: w.QuestionsAsked, Selection: w.SelectedSlot, Summary: summary}
	case StepCompleted:
		phase = Completed{Symptom: symptom, Asked: w.QuestionsAsked, Selection: w.SelectedSlot, Summary: summary}
	default:
		return fmt.Errorf("%w: unknown step %q", ErrInvalidState, w.CurrentStep)
	}

	next := State{
		ID:           w.ID,
		PatientID:    w.PatientID,
		Language:     w.Language,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
		Phase:        phase,
		Answers:      w.AllPatientAnswers,
		LastQuestion: w.LastQuestion,
		Emergency:    w.IsEmergency,
		Priority:     PriorityNormal.Max(w.Priority),
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*s = next
	return nil
}
