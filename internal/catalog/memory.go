package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/wolfman30/symptom-intake/internal/triage"
)

// MemoryStore keeps rules in catalog order in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	rules []triage.SymptomRule
}

// NewMemoryStore validates and stores rules. Nil rules seed DefaultRules.
func NewMemoryStore(rules []triage.SymptomRule) (*MemoryStore, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	copied := make([]triage.SymptomRule, 0, len(rules))
	for _, r := range rules {
		copied = append(copied, cloneRule(r))
	}
	if err := ValidateSet(copied); err != nil {
		return nil, err
	}
	return &MemoryStore{rules: copied}, nil
}

func (s *MemoryStore) ListRules(ctx context.Context) ([]triage.SymptomRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]triage.SymptomRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, cloneRule(r))
	}
	return out, nil
}

func (s *MemoryStore) FindRule(ctx context.Context, symptom string) (*triage.SymptomRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if strings.EqualFold(r.Symptom, strings.TrimSpace(symptom)) {
			out := cloneRule(r)
			return &out, nil
		}
	}
	return nil, nil
}

// UpsertRule replaces a rule in place or appends a new one.
func (s *MemoryStore) UpsertRule(ctx context.Context, rule triage.SymptomRule) error {
	rule = cloneRule(rule)
	if err := Validate(&rule); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].Symptom == rule.Symptom {
			s.rules[i] = rule
			return nil
		}
	}
	s.rules = append(s.rules, rule)
	return nil
}

// DefaultRules is the seed catalog used in development.
func DefaultRules() []triage.SymptomRule {
	return []triage.SymptomRule{
		{
			Symptom: "chest pain",
			FollowUpQuestions: []string{
				"When did the chest pain start, and is it constant or does it come and go?",
				"Does the pain spread to your arm, jaw, neck or back?",
				"Are you also short of breath, sweating, or feeling sick?",
				"Do you have a history of heart problems or high blood pressure?",
			},
			SeverityIndicators: []string{"pressure", "tightness", "sweating"},
			EmergencyFlags:     []string{"pain spreading to jaw", "pain spreading to arm"},
		},
		{
			Symptom: "shortness of breath",
			FollowUpQuestions: []string{
				"Did the breathing trouble start suddenly or gradually?",
				"Is it worse when you lie down or when you are active?",
				"Do you have asthma, COPD, or any heart condition?",
			},
			SeverityIndicators: []string{"wheezing", "at rest"},
			EmergencyFlags:     []string{"blue lips", "cannot speak"},
		},
		{
			Symptom: "headache",
			FollowUpQuestions: []string{
				"How long have you had the headache?",
				"Where is the pain located, and how would you rate it from 1 to 10?",
				"Is this the worst headache you have ever had, or did it start suddenly?",
				"Do you have vision changes, weakness, or numbness?",
			},
			SeverityIndicators: []string{"worst headache", "vision changes"},
			EmergencyFlags:     []string{"thunderclap", "sudden weakness"},
		},
		{
			Symptom: "abdominal pain",
			FollowUpQuestions: []string{
				"Where in your abdomen is the pain?",
				"When did it start, and is it getting worse?",
				"Have you had vomiting, diarrhea, or blood in your stool?",
			},
			SeverityIndicators: []string{"rigid", "blood in stool"},
		},
		{
			Symptom: "fever",
			FollowUpQuestions: []string{
				"How high has your temperature been, and for how many days?",
				"Do you have chills, a rash, or a stiff neck?",
				"Have you travelled recently or been around anyone who is sick?",
			},
			SeverityIndicators: []string{"stiff neck", "rash"},
		},
		{
			Symptom: "cough",
			FollowUpQuestions: []string{
				"How long have you been coughing?",
				"Are you bringing up phlegm or blood?",
				"Do you smoke, or have you been exposed to smoke or dust?",
			},
			SeverityIndicators: []string{"coughing blood"},
		},
		{
			Symptom: "back pain",
			FollowUpQuestions: []string{
				"Where in your back is the pain, and did an injury cause it?",
				"Does the pain travel down your legs?",
				"Any numbness, weakness, or trouble controlling your bladder?",
			},
			EmergencyFlags: []string{"loss of bladder control"},
		},
		{
			Symptom: "dizziness",
			FollowUpQuestions: []string{
				"Does the room spin, or do you feel lightheaded?",
				"Have you fainted or come close to fainting?",
				"Are you taking any new medication?",
			},
			SeverityIndicators: []string{"fainted"},
		},
	}
}
