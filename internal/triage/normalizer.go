package triage

import (
	"regexp"
	"strings"
)

// RedactionMarker replaces disallowed request text.
const RedactionMarker = "[REDACTED]"

const maxCanonicalPasses = 4

// RedactionKind labels why text was removed.
type RedactionKind string

const (
	RedactionDiagnosis    RedactionKind = "diagnosis_request"
	RedactionPrescription RedactionKind = "prescription_request"
	RedactionSecurity     RedactionKind = "security"
)

// PhraseMapping rewrites a colloquial phrasing to a canonical symptom term.
type PhraseMapping struct {
	Colloquial string
	Canonical  string
}

type redactionPattern struct {
	kind    RedactionKind
	pattern *regexp.Regexp
}

var redactionPatterns = []redactionPattern{
	{RedactionDiagnosis, regexp.MustCompile(`(?i)\b(?:diagnose\s+(?:me|my\s+\w+)|what(?:'s|\s+is)\s+my\s+diagnosis|what\s+(?:disease|illness|condition)\s+(?:do|might|could)\s+i\s+have|do\s+i\s+have\s+(?:cancer|covid|diabetes|a\s+heart\s+attack))\b`)},
	{RedactionPrescription, regexp.MustCompile(`(?i)\b(?:prescribe\s+me(?:\s+\w+)?|write\s+(?:me\s+)?a\s+prescription|(?:what|which)\s+(?:medicine|medication|tablet|pill|drug)s?\s+(?:should|can)\s+i\s+take|how\s+many\s+(?:mg|milligrams|tablets|pills)\s+should\s+i\s+take)\b`)},
	{RedactionSecurity, regexp.MustCompile(`(?i)(?:\bignore\s+(?:all\s+)?(?:previous|prior|above)\s+instructions\b|\bdisregard\s+(?:the\s+)?(?:system|previous)\s+prompt\b|\breveal\s+(?:your\s+)?(?:system\s+prompt|instructions)\b|\bact\s+as\s+(?:an?\s+)?(?:admin|developer|system)\b|<\s*script[^>]*>|\bdrop\s+table\b)`)},
}

// DefaultPhraseMappings covers common misspellings and code-mixed phrasings.
// Canonical targets never contain a colloquial phrase, so the pass is stable.
var DefaultPhraseMappings = []PhraseMapping{
	{"chest pane", "chest pain"},
	{"chest lo pain", "chest pain"},
	{"chest lo noppi", "chest pain"},
	{"chest me dard", "chest pain"},
	{"chest mein dard", "chest pain"},
	{"seene mein dard", "chest pain"},
	{"pain in my chest", "chest pain"},
	{"pain in the chest", "chest pain"},
	{"chest hurts", "chest pain"},
	{"head ache", "headache"},
	{"head pain", "headache"},
	{"sar dard", "headache"},
	{"sir dard", "headache"},
	{"thala noppi", "headache"},
	{"tummy ache", "abdominal pain"},
	{"stomach ache", "abdominal pain"},
	{"stomachache", "abdominal pain"},
	{"stomach pain", "abdominal pain"},
	{"belly pain", "abdominal pain"},
	{"pet dard", "abdominal pain"},
	{"pet mein dard", "abdominal pain"},
	{"kadupu noppi", "abdominal pain"},
	{"bukhar", "fever"},
	{"bukhaar", "fever"},
	{"jwaram", "fever"},
	{"feverish", "fever"},
	{"can't breathe", "cannot breathe"},
	{"can’t breathe", "cannot breathe"},
	{"cant breathe", "cannot breathe"},
	{"can not breathe", "cannot breathe"},
	{"unable to breathe", "cannot breathe"},
	{"breathless", "shortness of breath"},
	{"short of breath", "shortness of breath"},
	{"difficulty breathing", "shortness of breath"},
	{"trouble breathing", "shortness of breath"},
	{"saans phoolna", "shortness of breath"},
	{"coughing", "cough"},
	{"khansi", "cough"},
	{"throwing up", "vomiting"},
	{"vomitting", "vomiting"},
	{"back ache", "back pain"},
	{"backache", "back pain"},
	{"kamar dard", "back pain"},
	{"dizzy", "dizziness"},
	{"chakkar", "dizziness"},
	{"passed out", "unconscious"},
	{"blacked out", "unconscious"},
	{"behosh", "unconscious"},
}

type phrasePattern struct {
	pattern   *regexp.Regexp
	canonical string
}

// Normalization is the result of one normalize pass.
type Normalization struct {
	Text       string
	Redactions []RedactionKind
}

// Normalizer redacts disallowed requests and canonicalizes symptom phrasing.
// It is immutable after construction.
type Normalizer struct {
	phrases []phrasePattern
}

// NewNormalizer compiles the given mappings; nil uses DefaultPhraseMappings.
func NewNormalizer(mappings []PhraseMapping) *Normalizer {
	if mappings == nil {
		mappings = DefaultPhraseMappings
	}
	n := &Normalizer{}
	for _, m := range mappings {
		words := strings.Fields(strings.ToLower(m.Colloquial))
		if len(words) == 0 || strings.TrimSpace(m.Canonical) == "" {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		n.phrases = append(n.phrases, phrasePattern{
			pattern:   regexp.MustCompile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`),
			canonical: m.Canonical,
		})
	}
	return n
}

// Normalize returns the redacted, canonicalized text.
func (n *Normalizer) Normalize(raw string) string {
	return n.Apply(raw).Text
}

// Apply runs the redaction pass then the canonicalization pass.
func (n *Normalizer) Apply(raw string) Normalization {
	text := strings.Join(strings.Fields(raw), " ")

	var kinds []RedactionKind
	for _, rp := range redactionPatterns {
		if !rp.pattern.MatchString(text) {
			continue
		}
		text = rp.pattern.ReplaceAllLiteralString(text, RedactionMarker)
		kinds = append(kinds, rp.kind)
	}

	// A replacement can complete an earlier colloquial phrase, so repeat
	// until the text is stable.
	for pass := 0; pass < maxCanonicalPasses; pass++ {
		before := text
		for _, pp := range n.phrases {
			text = pp.pattern.ReplaceAllLiteralString(text, pp.canonical)
		}
		if text == before {
			break
		}
	}
	return Normalization{Text: text, Redactions: kinds}
}
