package triage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/symptom-intake/pkg/logging"
)

// Path records which route produced a turn's reply.
type Path string

const (
	PathDeterministic Path = "deterministic"
	PathModelAssisted Path = "model_assisted"
)

const (
	defaultMaxQuestions = 5
	defaultModelTimeout = 20 * time.Second
	maxBookingReprompts = 2

	greetingMessage       = "Hello, I'm the clinic's intake assistant. What symptom is bothering you the most today?"
	clarificationFallback = "I want to make sure I understand. Could you describe your main symptom in a few words, for example \"headache\" or \"chest pain\"?"
	summaryAck            = "I've prepared a summary of your answers for the doctor. Is there anything else you'd like to add?"
	completedAgain        = "This intake is already complete. Please start a new session if you have another concern."
	emergencyNotice       = "Your answers include warning signs of a medical emergency. If you are in danger, call your local emergency number or go to the nearest emergency department now."
)

var errNoModel = errors.New("triage: no model configured")

// TurnResult is the outcome of one Handle call.
type TurnResult struct {
	Reply           Reply
	State           State
	Path            Path
	RepairStage     RepairStage
	ModelFailed     bool
	Redactions      []RedactionKind
	EmergencyRaised bool
}

// Engine drives one session turn at a time. It keeps no per-session state,
// so callers must serialize turns for the same session.
type Engine struct {
	catalog      Catalog
	model        Model
	planner      *BookingPlanner
	normalizer   *Normalizer
	classifier   *PriorityClassifier
	maxQuestions int
	modelTimeout time.Duration
	now          func() time.Time
	logger       *logging.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithModel sets the model collaborator used for clarification and summaries.
func WithModel(model Model) EngineOption {
	return func(e *Engine) { e.model = model }
}

// WithBookingPlanner sets the planner used at booking_offer.
func WithBookingPlanner(planner *BookingPlanner) EngineOption {
	return func(e *Engine) {
		if planner != nil {
			e.planner = planner
		}
	}
}

// WithMaxQuestions caps follow-up questions per symptom. Non-positive means no cap.
func WithMaxQuestions(n int) EngineOption {
	return func(e *Engine) { e.maxQuestions = n }
}

// WithModelTimeout bounds each model call.
func WithModelTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.modelTimeout = d
		}
	}
}

// WithNormalizer replaces the text normalizer.
func WithNormalizer(n *Normalizer) EngineOption {
	return func(e *Engine) {
		if n != nil {
			e.normalizer = n
		}
	}
}

// WithClassifier replaces the priority classifier.
func WithClassifier(c *PriorityClassifier) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds the intake state machine.
func NewEngine(catalog Catalog, logger *logging.Logger, opts ...EngineOption) *Engine {
	if catalog == nil {
		panic("triage: catalog cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		catalog:      catalog,
		normalizer:   NewNormalizer(nil),
		classifier:   NewPriorityClassifier(nil, nil),
		maxQuestions: defaultMaxQuestions,
		modelTimeout: defaultModelTimeout,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.planner == nil {
		e.planner = NewBookingPlanner(nil, logger)
	}
	return e
}

// Start creates a new session and its greeting.
func (e *Engine) Start(id, patientID, language string) (State, Reply) {
	state := NewState(id, patientID, language, e.now())
	state.LastQuestion = greetingMessage
	return state, Reply{
		Message:  greetingMessage,
		Type:     ReplyQuestion,
		Priority: state.Priority,
		Step:     state.Step(),
	}
}

type turn struct {
	state          State
	now            time.Time
	text           string
	reply          Reply
	rule           *SymptomRule
	path           Path
	stage          RepairStage
	modelFailed    bool
	modelHints     string
	modelEmergency bool
	raised         bool
}

// Handle consumes one utterance and returns the reply plus the next state.
// The input state is not modified. Only catalog unavailability and invalid
// input states produce errors.
func (e *Engine) Handle(ctx context.Context, utterance string, state State) (TurnResult, error) {
	if err := state.Validate(); err != nil {
		return TurnResult{}, err
	}
	if state.Step() == StepCompleted {
		reply := Reply{Message: completedAgain, Type: ReplyCompleted, Summary: state.Summary()}
		return TurnResult{Reply: e.finalize(state, reply), State: state, Path: PathDeterministic}, nil
	}

	norm := e.normalizer.Apply(utterance)
	t := &turn{state: state.clone(), now: e.now(), text: norm.Text, path: PathDeterministic}

	var err error
	switch phase := t.state.Phase.(type) {
	case Identifying:
		err = e.identify(ctx, t, phase)
	case Questioning:
		err = e.continueQuestions(ctx, t, phase)
	case OfferingBooking:
		e.resolveBooking(ctx, t, phase)
	case Summarizing:
		e.finish(ctx, t, phase)
	default:
		err = fmt.Errorf("%w: unhandled phase %T", ErrInvalidState, phase)
	}
	if err != nil {
		return TurnResult{}, err
	}

	t.state.LastQuestion = t.reply.Message
	t.state.UpdatedAt = t.now
	e.stampPriority(t)

	e.logger.Info("turn handled",
		"session_id", t.state.ID,
		"from_step", state.Step(),
		"to_step", t.state.Step(),
		"path", t.path,
		"repair_stage", t.stage,
		"questions_asked", t.state.QuestionsAsked(),
		"priority", t.state.Priority,
		"redactions", len(norm.Redactions),
	)

	return TurnResult{
		Reply:           e.finalize(t.state, t.reply),
		State:           t.state,
		Path:            t.path,
		RepairStage:     t.stage,
		ModelFailed:     t.modelFailed,
		Redactions:      norm.Redactions,
		EmergencyRaised: t.raised,
	}, nil
}

func (e *Engine) identify(ctx context.Context, t *turn, phase Identifying) error {
	rules, err := e.catalog.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	if len(rules) == 0 {
		return fmt.Errorf("%w: catalog is empty", ErrCatalogUnavailable)
	}

	if key, ok := DetectSymptom(t.text, rules); ok {
		rule := findRule(rules, key)
		t.rule = rule
		t.state.recordAnswer(t.text, rule.Symptom, t.now)
		step := NextQuestion(*rule, 0, e.maxQuestions)
		if step.Done {
			e.offerBooking(ctx, t, rule.Symptom, 0)
			return nil
		}
		t.state.Phase = Questioning{Symptom: rule.Symptom, Asked: 1}
		t.reply = Reply{Message: step.Question, Type: ReplyQuestion}
		return nil
	}

	t.state.recordAnswer(t.text, "", t.now)
	prompt := e.prompt(t, PurposeClarification, 0)
	prompt.KnownSymptoms = symptomKeys(rules)
	mr := e.consult(ctx, t, prompt, func() ModelReply {
		return e.fallbackReply(nil, 0, PurposeClarification, t.state)
	})
	t.state.Phase = Identifying{ClarificationAttempts: phase.ClarificationAttempts + 1}
	t.reply = Reply{Message: messageOr(mr.Message, clarificationFallback), Type: ReplyClarification}
	return nil
}

func (e *Engine) continueQuestions(ctx context.Context, t *turn, phase Questioning) error {
	rule, err := e.catalog.FindRule(ctx, phase.Symptom)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	if rule == nil {
		return fmt.Errorf("%w: no rule for %q", ErrCatalogUnavailable, phase.Symptom)
	}
	t.rule = rule
	t.state.recordAnswer(t.text, phase.Symptom, t.now)

	step := NextQuestion(*rule, phase.Asked, e.maxQuestions)
	if step.Done {
		e.offerBooking(ctx, t, phase.Symptom, phase.Asked)
		return nil
	}
	t.state.Phase = Questioning{Symptom: phase.Symptom, Asked: phase.Asked + 1}
	t.reply = Reply{Message: step.Question, Type: ReplyQuestion}
	return nil
}

func (e *Engine) offerBooking(ctx context.Context, t *turn, symptom string, asked int) {
	offer := e.planner.Offer(ctx, t.now, t.state.Language)
	t.state.Phase = OfferingBooking{Symptom: symptom, Asked: asked, Offer: offer}
	t.reply = Reply{
		Message:               fmt.Sprintf("Thank you, that's everything I need to know about your %s. %s", symptom, offerText(offer)),
		Type:                  ReplyBookingOffer,
		Options:               slotOptions(offer),
		SuggestedDoctor:       offer.Doctor,
		AllQuestionsCompleted: true,
	}
}

func (e *Engine) resolveBooking(ctx context.Context, t *turn, phase OfferingBooking) {
	t.rule = e.softRule(ctx, phase.Symptom)
	t.state.recordAnswer(t.text, phase.Symptom, t.now)

	idx, ok, declined := parseSlotChoice(t.text, phase.Offer.Slots)
	if !ok && !declined && phase.Reprompts < maxBookingReprompts {
		phase.Reprompts++
		t.state.Phase = phase
		t.reply = Reply{
			Message:               "Sorry, I didn't catch which time you'd like. " + offerText(phase.Offer),
			Type:                  ReplyBookingOffer,
			Options:               slotOptions(phase.Offer),
			SuggestedDoctor:       phase.Offer.Doctor,
			AllQuestionsCompleted: true,
		}
		return
	}

	var selection *SlotChoice
	if ok {
		selection = &SlotChoice{Slot: phase.Offer.Slots[idx]}
		if phase.Offer.Doctor != nil {
			selection.DoctorID = phase.Offer.Doctor.ID
		}
	}

	rule := t.rule
	mr := e.consult(ctx, t, e.prompt(t, PurposeSummary, phase.Asked), func() ModelReply {
		return e.fallbackReply(rule, phase.Asked, PurposeSummary, t.state)
	})
	summary := SessionSummary{
		Text:                 strings.TrimSpace(string(mr.SessionSummary)),
		DiagnosisSuggestions: mr.DiagnosisSuggestions,
	}
	if summary.Text == "" {
		summary.Text = deterministicSummary(t.state)
	}

	t.state.Phase = Summarizing{Symptom: phase.Symptom, Asked: phase.Asked, Selection: selection, Summary: summary}
	t.reply = Reply{
		Message: selectionText(selection) + " " + messageOr(mr.Message, summaryAck),
		Type:    ReplySummary,
		Summary: &summary,
	}
}

func (e *Engine) finish(ctx context.Context, t *turn, phase Summarizing) {
	t.rule = e.softRule(ctx, phase.Symptom)
	t.state.recordAnswer(t.text, phase.Symptom, t.now)
	t.state.Phase = Completed(phase)

	msg := "Thank you. Your intake is complete and the doctor will review your answers before your visit."
	if phase.Selection == nil {
		msg = "Thank you. Your intake is complete. Our team will contact you to find an appointment time."
	}
	summary := phase.Summary
	t.reply = Reply{Message: msg, Type: ReplyCompleted, Summary: &summary}
}

// softRule looks up a rule for classification only; failures are logged.
func (e *Engine) softRule(ctx context.Context, symptom string) *SymptomRule {
	rule, err := e.catalog.FindRule(ctx, symptom)
	if err != nil {
		e.logger.Warn("rule lookup failed", "symptom", symptom, "error", err)
		return nil
	}
	return rule
}

func (e *Engine) prompt(t *turn, purpose PromptPurpose, asked int) Prompt {
	p := Prompt{
		SessionID:      t.state.ID,
		Purpose:        purpose,
		Language:       t.state.Language,
		Step:           t.state.Step(),
		CurrentSymptom: t.state.CurrentSymptom(),
		QuestionNumber: asked,
		History:        t.state.Answers,
		Priority:       t.state.Priority,
	}
	if t.rule != nil {
		if step := NextQuestion(*t.rule, asked, e.maxQuestions); !step.Done {
			p.NextSymptomQuestion = step.Question
		}
	}
	return p
}

// consult calls the model and runs the repair chain. It always returns a reply.
func (e *Engine) consult(ctx context.Context, t *turn, prompt Prompt, fallback func() ModelReply) ModelReply {
	if e.model == nil {
		t.stage = StageFallback
		reply := fallback()
		t.modelHints = reply.hints()
		return reply
	}

	t.path = PathModelAssisted
	raw, err := e.complete(ctx, prompt)
	var reply ModelReply
	if err != nil {
		t.modelFailed = true
		e.logger.Warn("model call failed, using deterministic reply",
			"session_id", t.state.ID, "purpose", prompt.Purpose, "error", err)
		reply, t.stage = fallback(), StageFallback
	} else {
		reply, t.stage = ParseModelReply(raw, fallback)
		if t.stage == StageFallback {
			e.logger.Warn("model reply unparseable, using deterministic reply",
				"session_id", t.state.ID, "purpose", prompt.Purpose, "raw_len", len(raw))
		}
	}
	t.modelHints = reply.hints()
	t.modelEmergency = reply.emergency()
	return reply
}

// complete bounds the model call; an abandoned call's result is discarded.
func (e *Engine) complete(ctx context.Context, prompt Prompt) (string, error) {
	if e.model == nil {
		return "", errNoModel
	}
	ctx, cancel := context.WithTimeout(ctx, e.modelTimeout)
	defer cancel()

	type result struct {
		raw string
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := e.model.Complete(ctx, prompt)
		done <- result{raw: raw, err: err}
	}()

	select {
	case r := <-done:
		return r.raw, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("triage: model call abandoned: %w", ctx.Err())
	}
}

// fallbackReply is the last stage of the repair chain.
func (e *Engine) fallbackReply(rule *SymptomRule, asked int, purpose PromptPurpose, state State) ModelReply {
	reply := ModelReply{
		Message:        clarificationFallback,
		Type:           string(ReplyClarification),
		NextStep:       string(StepSymptomIdentification),
		QuestionNumber: looseNumber(strconv.Itoa(asked)),
	}
	if rule != nil {
		symptom := rule.Symptom
		reply.CurrentSymptom = &symptom
		step := NextQuestion(*rule, asked, e.maxQuestions)
		reply.AllQuestionsCompleted = looseBool(step.Done)
		if !step.Done {
			reply.Message = step.Question
			reply.Type = string(ReplyQuestion)
			reply.NextStep = string(StepSymptomQuestions)
		}
	}
	if purpose == PurposeSummary {
		reply.Message = summaryAck
		reply.Type = string(ReplySummary)
		reply.NextStep = string(StepSessionSummary)
		reply.SessionSummary = looseText(deterministicSummary(state))
	}
	return reply
}

func (e *Engine) stampPriority(t *turn) {
	tier := e.classifier.ClassifyForRule(t.rule, t.state.symptomText(), t.modelHints)
	t.state.Priority = t.state.Priority.Max(tier)
	if (tier == PriorityUrgent || t.modelEmergency) && !t.state.Emergency {
		t.state.Emergency = true
		t.raised = true
		t.reply.Message = emergencyNotice + "\n\n" + t.reply.Message
	}
}

func (e *Engine) finalize(state State, reply Reply) Reply {
	reply.IsEmergency = state.Emergency
	reply.Priority = state.Priority
	reply.Step = state.Step()
	return reply
}

func offerText(offer BookingOffer) string {
	var b strings.Builder
	b.WriteString("Here are the next available appointments")
	if offer.Doctor != nil && offer.Doctor.Name != "" {
		fmt.Fprintf(&b, " with %s", offer.Doctor.Name)
	}
	b.WriteString(":")
	for i, slot := range offer.Slots {
		fmt.Fprintf(&b, "\n%d. %s", i+1, slot.DisplayLabel)
	}
	b.WriteString("\nReply with the number of the time that works for you, or \"no\" to skip booking.")
	return b.String()
}

func slotOptions(offer BookingOffer) []SlotOption {
	opts := make([]SlotOption, 0, len(offer.Slots))
	for i, slot := range offer.Slots {
		opt := SlotOption{Index: i + 1, Label: slot.DisplayLabel, Start: slot.Start, End: slot.End}
		if offer.Doctor != nil {
			opt.DoctorID = offer.Doctor.ID
		}
		opts = append(opts, opt)
	}
	return opts
}

func selectionText(selection *SlotChoice) string {
	if selection == nil {
		return "No problem, we won't book a time right now."
	}
	return fmt.Sprintf("Great, I've noted %s for your appointment.", selection.Slot.DisplayLabel)
}

func deterministicSummary(state State) string {
	var b strings.Builder
	symptom := state.CurrentSymptom()
	if symptom == "" {
		symptom = "unspecified"
	}
	fmt.Fprintf(&b, "Presenting symptom: %s. Priority: %s.", symptom, PriorityNormal.Max(state.Priority))
	if state.Emergency {
		b.WriteString(" Emergency warning signs reported.")
	}
	for _, a := range state.Answers {
		if a.Question == "" || a.Answer == "" {
			continue
		}
		fmt.Fprintf(&b, "\nQ: %s\nA: %s", a.Question, a.Answer)
	}
	return b.String()
}

func messageOr(message, fallback string) string {
	if m := strings.TrimSpace(message); m != "" {
		return m
	}
	return fallback
}
