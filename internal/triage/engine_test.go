package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/symptom-intake/pkg/logging"
)

type fakeCatalog struct {
	rules []SymptomRule
	err   error
}

func (c *fakeCatalog) ListRules(context.Context) ([]SymptomRule, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.rules, nil
}

func (c *fakeCatalog) FindRule(_ context.Context, symptom string) (*SymptomRule, error) {
	if c.err != nil {
		return nil, c.err
	}
	rule := findRule(c.rules, symptom)
	if rule == nil {
		return nil, nil
	}
	out := *rule
	return &out, nil
}

type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	err       error
	block     chan struct{}
	prompts   []Prompt
}

func (m *scriptedModel) Complete(_ context.Context, prompt Prompt) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	idx := len(m.prompts) - 1
	m.mu.Unlock()

	if m.block != nil {
		<-m.block
		return "", nil
	}
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", nil
	}
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}

func (m *scriptedModel) calls() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}

func newTestEngine(catalog Catalog, opts ...EngineOption) *Engine {
	if catalog == nil {
		catalog = &fakeCatalog{rules: testRules()}
	}
	base := []EngineOption{
		WithClock(func() time.Time { return monday08 }),
		WithMaxQuestions(3),
	}
	return NewEngine(catalog, logging.New("error"), append(base, opts...)...)
}

func mustHandle(t *testing.T, e *Engine, utterance string, state State) TurnResult {
	t.Helper()
	res, err := e.Handle(context.Background(), utterance, state)
	if err != nil {
		t.Fatalf("Handle(%q): %v", utterance, err)
	}
	if err := res.State.Validate(); err != nil {
		t.Fatalf("Handle(%q) produced invalid state: %v", utterance, err)
	}
	if strings.TrimSpace(res.Reply.Message) == "" {
		t.Fatalf("Handle(%q) produced empty reply", utterance)
	}
	return res
}

// driveToBooking walks a chest pain session through every follow-up question.
func driveToBooking(t *testing.T, e *Engine) State {
	t.Helper()
	state, _ := e.Start("s-1", "p-1", "en")
	state = mustHandle(t, e, "I have chest pane since morning", state).State
	for _, answer := range []string{"around 7am", "it stays in the middle", "a little sweaty"} {
		state = mustHandle(t, e, answer, state).State
	}
	if state.Step() != StepBookingOffer {
		t.Fatalf("expected booking_offer, got %s", state.Step())
	}
	return state
}

func TestHandleChestPainScenario(t *testing.T) {
	e := newTestEngine(nil)
	questions := testRules()[0].FollowUpQuestions

	state, greeting := e.Start("s-1", "p-1", "en")
	if greeting.Type != ReplyQuestion || state.LastQuestion != greeting.Message {
		t.Fatalf("unexpected greeting %+v", greeting)
	}

	res := mustHandle(t, e, "I have chest pane since morning", state)
	if res.State.Step() != StepSymptomQuestions {
		t.Fatalf("expected symptom_questions, got %s", res.State.Step())
	}
	if res.State.CurrentSymptom() != "chest pain" || res.State.QuestionsAsked() != 1 {
		t.Fatalf("unexpected symptom/cursor %q/%d", res.State.CurrentSymptom(), res.State.QuestionsAsked())
	}
	if res.Reply.Message != questions[0] || res.Reply.Type != ReplyQuestion {
		t.Fatalf("expected first follow-up, got %+v", res.Reply)
	}
	if res.Path != PathDeterministic {
		t.Fatalf("expected deterministic path, got %s", res.Path)
	}
	first := res.State.Answers[0]
	if first.Question != greeting.Message || first.Answer != "I have chest pain since morning" || first.Symptom != "chest pain" {
		t.Fatalf("unexpected first answer %+v", first)
	}
	if res.State.Priority != PriorityHigh || res.State.Emergency {
		t.Fatalf("expected HIGH non-emergency, got %s/%v", res.State.Priority, res.State.Emergency)
	}

	state = res.State
	answers := []string{"around 7am", "it stays in the middle", "a little sweaty"}
	for i, answer := range answers {
		res = mustHandle(t, e, answer, state)
		got := res.State.Answers[len(res.State.Answers)-1]
		if got.Question != questions[i] || got.Answer != answer {
			t.Fatalf("answer %d labelled %q, want %q", i, got.Question, questions[i])
		}
		if i < 2 {
			if res.State.QuestionsAsked() != state.QuestionsAsked()+1 {
				t.Fatalf("cursor did not advance by one: %d -> %d", state.QuestionsAsked(), res.State.QuestionsAsked())
			}
			if res.Reply.Message != questions[i+1] {
				t.Fatalf("expected question %d, got %q", i+2, res.Reply.Message)
			}
		}
		state = res.State
	}

	if state.Step() != StepBookingOffer {
		t.Fatalf("expected booking_offer, got %s", state.Step())
	}
	if state.QuestionsAsked() != 3 {
		t.Fatalf("expected cursor 3, got %d", state.QuestionsAsked())
	}
	if res.Reply.Type != ReplyBookingOffer || !res.Reply.AllQuestionsCompleted {
		t.Fatalf("unexpected booking reply %+v", res.Reply)
	}
	if len(res.Reply.Options) != 3 {
		t.Fatalf("expected 3 slot options, got %d", len(res.Reply.Options))
	}
	if !res.Reply.Options[0].Start.Equal(mon(9, 0)) {
		t.Fatalf("expected first option Monday 09:00, got %s", res.Reply.Options[0].Start)
	}
	if len(state.Answers) != 4 {
		t.Fatalf("expected 4 recorded answers, got %d", len(state.Answers))
	}
}

func TestHandleQuestionCapFromConfig(t *testing.T) {
	e := newTestEngine(nil, WithMaxQuestions(2))
	state, _ := e.Start("s-1", "", "en")

	asked := 0
	for _, utterance := range []string{"chest pain", "yesterday", "yes to my arm", "extra"} {
		res := mustHandle(t, e, utterance, state)
		if res.Reply.Type == ReplyQuestion {
			asked++
		}
		state = res.State
		if state.Step() == StepBookingOffer {
			break
		}
	}
	if asked != 2 {
		t.Fatalf("expected 2 questions asked, got %d", asked)
	}
	if state.Step() != StepBookingOffer || state.QuestionsAsked() != 2 {
		t.Fatalf("expected booking after 2 questions, got %s/%d", state.Step(), state.QuestionsAsked())
	}
}

func TestHandleRuleWithoutQuestionsGoesStraightToBooking(t *testing.T) {
	e := newTestEngine(nil)
	state, _ := e.Start("s-1", "", "en")
	res := mustHandle(t, e, "I have fever", state)
	if res.State.Step() != StepBookingOffer || res.State.CurrentSymptom() != "fever" {
		t.Fatalf("expected booking for fever, got %s/%s", res.State.Step(), res.State.CurrentSymptom())
	}
	if !res.Reply.AllQuestionsCompleted || len(res.Reply.Options) == 0 {
		t.Fatalf("expected completed booking reply, got %+v", res.Reply)
	}
}

func TestHandleClarificationRepairChain(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		stage   RepairStage
		message string
	}{
		{"empty", "", StageFallback, clarificationFallback},
		{"not json", "not json", StageFallback, clarificationFallback},
		{"fenced", "```json\n{\"message\":\"Which symptom bothers you most?\",\"type\":\"clarification\"}\n```", StageFenced, "Which symptom bothers you most?"},
		{"truncated", `{"message": "Where does it`, StageFallback, clarificationFallback},
		{"direct without message", `{"type":"clarification"}`, StageDirect, clarificationFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedModel{responses: []string{tt.raw}}
			e := newTestEngine(nil, WithModel(model))
			state, _ := e.Start("s-1", "", "en")

			res := mustHandle(t, e, "I feel off today", state)
			if res.State.Step() != StepSymptomIdentification {
				t.Fatalf("state should not advance, got %s", res.State.Step())
			}
			if res.Reply.Type != ReplyClarification || res.Reply.Message != tt.message {
				t.Fatalf("unexpected reply %+v", res.Reply)
			}
			if res.RepairStage != tt.stage || res.Path != PathModelAssisted {
				t.Fatalf("expected %s via model, got %s via %s", tt.stage, res.RepairStage, res.Path)
			}
			if got := res.State.Phase.(Identifying).ClarificationAttempts; got != 1 {
				t.Fatalf("expected one clarification attempt, got %d", got)
			}
			if len(res.State.Answers) != 1 || res.State.Answers[0].Symptom != "" {
				t.Fatalf("expected unlabelled answer recorded, got %+v", res.State.Answers)
			}

			prompts := model.calls()
			if len(prompts) != 1 || prompts[0].Purpose != PurposeClarification || len(prompts[0].KnownSymptoms) != 4 {
				t.Fatalf("unexpected prompts %+v", prompts)
			}
		})
	}
}

func TestHandleModelFailures(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		e := newTestEngine(nil, WithModel(&scriptedModel{err: errors.New("throttled")}))
		state, _ := e.Start("s-1", "", "en")
		res := mustHandle(t, e, "not great", state)
		if !res.ModelFailed || res.RepairStage != StageFallback || res.Reply.Message != clarificationFallback {
			t.Fatalf("expected deterministic fallback, got %+v", res)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		block := make(chan struct{})
		t.Cleanup(func() { close(block) })
		e := newTestEngine(nil, WithModel(&scriptedModel{block: block}), WithModelTimeout(20*time.Millisecond))
		state, _ := e.Start("s-1", "", "en")

		done := make(chan TurnResult, 1)
		go func() {
			res, _ := e.Handle(context.Background(), "not great", state)
			done <- res
		}()
		select {
		case res := <-done:
			if !res.ModelFailed || res.Reply.Message != clarificationFallback {
				t.Fatalf("expected fallback after timeout, got %+v", res.Reply)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Handle did not return after model timeout")
		}
	})

	t.Run("no model", func(t *testing.T) {
		e := newTestEngine(nil)
		state, _ := e.Start("s-1", "", "en")
		res := mustHandle(t, e, "not great", state)
		if res.ModelFailed || res.Path != PathDeterministic || res.RepairStage != StageFallback {
			t.Fatalf("unexpected result without model %+v", res)
		}
	})
}

func TestHandleEmergencyIsSticky(t *testing.T) {
	e := newTestEngine(nil)
	state, _ := e.Start("s-1", "", "en")

	res := mustHandle(t, e, "crushing pain in my chest pane", state)
	if !res.State.Emergency || !res.Reply.IsEmergency || !res.EmergencyRaised {
		t.Fatalf("expected emergency on first turn, got %+v", res)
	}
	if res.State.Priority != PriorityUrgent {
		t.Fatalf("expected URGENT, got %s", res.State.Priority)
	}
	if !strings.HasPrefix(res.Reply.Message, emergencyNotice) {
		t.Fatalf("expected emergency notice, got %q", res.Reply.Message)
	}
	if res.State.LastQuestion != testRules()[0].FollowUpQuestions[0] {
		t.Fatalf("last question should not include the notice, got %q", res.State.LastQuestion)
	}

	state = res.State
	for _, answer := range []string{"feeling better now", "no", "fine", "2", "that's all"} {
		res = mustHandle(t, e, answer, state)
		if !res.State.Emergency || !res.Reply.IsEmergency {
			t.Fatalf("emergency reset after %q at %s", answer, res.State.Step())
		}
		if res.EmergencyRaised {
			t.Fatalf("emergency raised twice")
		}
		if res.State.Priority != PriorityUrgent {
			t.Fatalf("priority decreased to %s", res.State.Priority)
		}
		state = res.State
	}
	if state.Step() != StepCompleted {
		t.Fatalf("expected completed, got %s", state.Step())
	}
}

func TestHandleBookingSelectionAndSummary(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"Here is the summary:\n```json\n{\"message\":\"Thanks! Anything else to add?\",\"type\":\"summary\",\"sessionSummary\":\"Chest pain since 7am, no radiation.\",\"diagnosis_suggestions\":[\"angina\",\"GERD\"]}\n```",
	}}
	e := newTestEngine(nil, WithModel(model))
	state := driveToBooking(t, e)
	offer := state.Phase.(OfferingBooking).Offer

	res := mustHandle(t, e, "2", state)
	if res.State.Step() != StepSessionSummary || res.Reply.Type != ReplySummary {
		t.Fatalf("expected summary, got %s/%s", res.State.Step(), res.Reply.Type)
	}
	selection := res.State.Selection()
	if selection == nil || !selection.Slot.Start.Equal(offer.Slots[1].Start) {
		t.Fatalf("expected second slot selected, got %+v", selection)
	}
	if res.Reply.Summary == nil || res.Reply.Summary.Text != "Chest pain since 7am, no radiation." {
		t.Fatalf("unexpected summary %+v", res.Reply.Summary)
	}
	if len(res.Reply.Summary.DiagnosisSuggestions) != 2 {
		t.Fatalf("expected diagnosis suggestions, got %v", res.Reply.Summary.DiagnosisSuggestions)
	}
	if !strings.Contains(res.Reply.Message, offer.Slots[1].DisplayLabel) {
		t.Fatalf("expected confirmation of chosen slot, got %q", res.Reply.Message)
	}
	prompts := model.calls()
	if len(prompts) != 1 || prompts[0].Purpose != PurposeSummary || len(prompts[0].History) != 5 {
		t.Fatalf("unexpected summary prompt %+v", prompts)
	}

	res = mustHandle(t, e, "nothing else", res.State)
	if res.State.Step() != StepCompleted || res.Reply.Type != ReplyCompleted {
		t.Fatalf("expected completed, got %s", res.State.Step())
	}

	done := res.State
	again := mustHandle(t, e, "hello?", done)
	if again.Reply.Type != ReplyCompleted || len(again.State.Answers) != len(done.Answers) {
		t.Fatalf("completed session should not change, got %+v", again.State)
	}
}

func TestHandleBookingDeclineAndReprompt(t *testing.T) {
	e := newTestEngine(nil)

	t.Run("decline", func(t *testing.T) {
		state := driveToBooking(t, e)
		res := mustHandle(t, e, "no thanks", state)
		if res.State.Step() != StepSessionSummary || res.State.Selection() != nil {
			t.Fatalf("expected summary without selection, got %+v", res.State)
		}
		if !strings.HasPrefix(res.Reply.Message, "No problem") {
			t.Fatalf("unexpected decline message %q", res.Reply.Message)
		}
		if !strings.Contains(res.Reply.Summary.Text, "Presenting symptom: chest pain") {
			t.Fatalf("expected deterministic summary, got %q", res.Reply.Summary.Text)
		}
	})

	t.Run("reprompt then proceed", func(t *testing.T) {
		state := driveToBooking(t, e)
		for i := 1; i <= maxBookingReprompts; i++ {
			res := mustHandle(t, e, "hmm maybe", state)
			if res.State.Step() != StepBookingOffer || res.Reply.Type != ReplyBookingOffer {
				t.Fatalf("expected re-prompt %d, got %s", i, res.State.Step())
			}
			if res.State.Phase.(OfferingBooking).Reprompts != i {
				t.Fatalf("expected reprompt count %d", i)
			}
			state = res.State
		}
		res := mustHandle(t, e, "whatever", state)
		if res.State.Step() != StepSessionSummary || res.State.Selection() != nil {
			t.Fatalf("expected summary after re-prompts, got %s", res.State.Step())
		}
	})
}

func TestHandleCatalogUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		catalog *fakeCatalog
	}{
		{"error", &fakeCatalog{err: errors.New("db down")}},
		{"empty", &fakeCatalog{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(tt.catalog)
			state, _ := e.Start("s-1", "", "en")
			if _, err := e.Handle(context.Background(), "chest pain", state); !errors.Is(err, ErrCatalogUnavailable) {
				t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
			}
		})
	}

	t.Run("rule removed mid-session", func(t *testing.T) {
		catalog := &fakeCatalog{rules: testRules()}
		e := newTestEngine(catalog)
		state, _ := e.Start("s-1", "", "en")
		state = mustHandle(t, e, "headache", state).State
		catalog.rules = catalog.rules[2:]
		if _, err := e.Handle(context.Background(), "two days", state); !errors.Is(err, ErrCatalogUnavailable) {
			t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
		}
	})
}

func TestHandleDoesNotMutateInput(t *testing.T) {
	e := newTestEngine(nil)
	state, _ := e.Start("s-1", "", "en")
	state = mustHandle(t, e, "headache", state).State
	before := len(state.Answers)

	res := mustHandle(t, e, "since yesterday", state)
	if len(state.Answers) != before || state.QuestionsAsked() != 1 {
		t.Fatalf("input state mutated")
	}
	if len(res.State.Answers) != before+1 {
		t.Fatalf("expected appended answer")
	}
}

func TestHandleRedactsBeforeMatching(t *testing.T) {
	e := newTestEngine(nil)
	state, _ := e.Start("s-1", "", "en")
	res := mustHandle(t, e, "What medicine should I take for my head ache?", state)
	if len(res.Redactions) != 1 || res.Redactions[0] != RedactionPrescription {
		t.Fatalf("expected prescription redaction, got %v", res.Redactions)
	}
	if res.State.CurrentSymptom() != "headache" {
		t.Fatalf("expected headache, got %q", res.State.CurrentSymptom())
	}
	if strings.Contains(strings.ToLower(res.State.Answers[0].Answer), "medicine") {
		t.Fatalf("redacted text stored in audit trail: %q", res.State.Answers[0].Answer)
	}
}

func TestHandleRejectsInvalidState(t *testing.T) {
	e := newTestEngine(nil)
	if _, err := e.Handle(context.Background(), "hi", State{}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestNewEnginePanicsWithoutCatalog(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil catalog")
		}
	}()
	NewEngine(nil, nil)
}
