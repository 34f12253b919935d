package triage

import (
	"strings"
	"unicode"
)

// DetectSymptom maps normalized text to a catalog symptom key.
//
// A case-insensitive containment check runs first and the first rule in
// catalog order wins. Otherwise rules are scored by the number of shared
// alphabetic tokens; the strictly highest score wins, ties keep the earlier
// rule, and a best score of zero reports no match.
func DetectSymptom(text string, rules []SymptomRule) (string, bool) {
	lower := strings.ToLower(text)
	for _, rule := range rules {
		key := strings.ToLower(strings.TrimSpace(rule.Symptom))
		if key != "" && strings.Contains(lower, key) {
			return rule.Symptom, true
		}
	}

	words := tokenSet(lower)
	if len(words) == 0 {
		return "", false
	}
	best, bestScore := "", 0
	for _, rule := range rules {
		score := 0
		for token := range tokenSet(strings.ToLower(rule.Symptom)) {
			if _, ok := words[token]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = rule.Symptom, score
		}
	}
	if bestScore == 0 {
		return "", false
	}
	return best, true
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) })
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func findRule(rules []SymptomRule, symptom string) *SymptomRule {
	for i := range rules {
		if strings.EqualFold(rules[i].Symptom, symptom) {
			return &rules[i]
		}
	}
	return nil
}

func symptomKeys(rules []SymptomRule) []string {
	keys := make([]string, 0, len(rules))
	for _, r := range rules {
		keys = append(keys, r.Symptom)
	}
	return keys
}
