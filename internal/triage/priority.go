package triage

import "strings"

// Priority is a severity tier.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) rank() int {
	switch p {
	case PriorityUrgent:
		return 2
	case PriorityHigh:
		return 1
	default:
		return 0
	}
}

// Max returns the higher of two tiers.
func (p Priority) Max(other Priority) Priority {
	if other.rank() > p.rank() {
		return other
	}
	if p == "" {
		return PriorityNormal
	}
	return p
}

var (
	// DefaultUrgentPhrases are emergency-tier red flags.
	DefaultUrgentPhrases = []string{
		"crushing pain",
		"cannot breathe",
		"unconscious",
		"not breathing",
		"severe bleeding",
		"seizure",
		"slurred speech",
		"heart attack",
		"stroke",
		"choking",
		"suicidal",
		"turning blue",
	}
	// DefaultHighPhrases are high-priority indicators.
	DefaultHighPhrases = []string{
		"chest pain",
		"shortness of breath",
		"radiating pain",
		"chest tightness",
		"high fever",
		"severe pain",
		"vomiting blood",
		"fainting",
		"confusion",
	}
)

// PriorityClassifier is a keyword-tier classifier. It never loosens: the
// urgent tier is checked before the high tier.
type PriorityClassifier struct {
	urgent []string
	high   []string
}

// NewPriorityClassifier builds a classifier; nil lists use the defaults.
func NewPriorityClassifier(urgent, high []string) *PriorityClassifier {
	if urgent == nil {
		urgent = DefaultUrgentPhrases
	}
	if high == nil {
		high = DefaultHighPhrases
	}
	return &PriorityClassifier{urgent: lowerAll(urgent), high: lowerAll(high)}
}

// Classify tiers the lower-cased concatenation of symptom text and model hints.
func (c *PriorityClassifier) Classify(symptomText, modelHints string) Priority {
	return c.ClassifyForRule(nil, symptomText, modelHints)
}

// ClassifyForRule also treats the rule's emergency flags as urgent phrases
// and its severity indicators as high-priority phrases.
func (c *PriorityClassifier) ClassifyForRule(rule *SymptomRule, symptomText, modelHints string) Priority {
	text := strings.ToLower(symptomText + " " + modelHints)
	var ruleUrgent, ruleHigh []string
	if rule != nil {
		ruleUrgent = rule.EmergencyFlags
		ruleHigh = rule.SeverityIndicators
	}
	if containsAny(text, c.urgent) || containsAny(text, lowerAll(ruleUrgent)) {
		return PriorityUrgent
	}
	if containsAny(text, c.high) || containsAny(text, lowerAll(ruleHigh)) {
		return PriorityHigh
	}
	return PriorityNormal
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
