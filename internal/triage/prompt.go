package triage

import (
	"fmt"
	"strings"
)

// PromptPurpose says what the model is asked to produce.
type PromptPurpose string

const (
	PurposeClarification PromptPurpose = "clarification"
	PurposeSummary       PromptPurpose = "summary"
)

// Prompt is the context handed to the model collaborator.
type Prompt struct {
	SessionID           string
	Purpose             PromptPurpose
	Language            string
	Step                Step
	CurrentSymptom      string
	QuestionNumber      int
	NextSymptomQuestion string
	KnownSymptoms       []string
	History             []Answer
	Utterance           string
	Priority            Priority
}

const systemPreamble = `You are a clinical intake assistant for a doctor's office. You collect symptom information and never diagnose, prescribe, or recommend medication. Text marked [REDACTED] was removed by a safety filter; do not ask about it.
Respond with a single JSON object and nothing else, using these fields:
{"message": string, "type": string, "nextStep": string, "currentSymptom": string|null, "questionNumber": number, "allQuestionsCompleted": boolean, "sessionSummary": string, "diagnosis_suggestions": [string], "isEmergency": boolean}`

// Instructions renders the system prompt for the model.
func (p Prompt) Instructions() string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Reply in language: %s.\n", p.languageOrDefault())
	switch p.Purpose {
	case PurposeSummary:
		b.WriteString("Task: write a concise summary of the patient's answers for the doctor in sessionSummary, and list possible conditions the doctor may want to rule out in diagnosis_suggestions. The message field thanks the patient and asks if there is anything else to add. Set nextStep to \"session_summary\" and type to \"summary\".\n")
	default:
		b.WriteString("Task: the patient's main symptom could not be identified. Ask one short, friendly clarifying question so the patient names their main symptom. Set nextStep to \"symptom_identification\" and type to \"clarification\".\n")
		if len(p.KnownSymptoms) > 0 {
			fmt.Fprintf(&b, "Symptoms this clinic can triage: %s.\n", strings.Join(p.KnownSymptoms, ", "))
		}
	}
	if p.CurrentSymptom != "" {
		fmt.Fprintf(&b, "Current symptom: %s. Questions asked so far: %d.\n", p.CurrentSymptom, p.QuestionNumber)
	}
	if p.NextSymptomQuestion != "" {
		fmt.Fprintf(&b, "Suggested next question: %s\n", p.NextSymptomQuestion)
	}
	if p.Priority == PriorityUrgent {
		b.WriteString("The patient's answers contain emergency warning signs; set isEmergency to true.\n")
	}
	return b.String()
}

// Transcript renders prior question/answer pairs followed by the new utterance.
func (p Prompt) Transcript() string {
	var b strings.Builder
	for _, a := range p.History {
		if a.Question != "" {
			fmt.Fprintf(&b, "Assistant: %s\n", a.Question)
		}
		fmt.Fprintf(&b, "Patient: %s\n", a.Answer)
	}
	if p.Utterance != "" {
		fmt.Fprintf(&b, "Patient: %s\n", p.Utterance)
	}
	return strings.TrimSpace(b.String())
}

func (p Prompt) languageOrDefault() string {
	if strings.TrimSpace(p.Language) == "" {
		return "en"
	}
	return p.Language
}
