package archive

import (
	"crypto/sha256"
	"fmt"
	"regexp"

	"github.com/wolfman30/symptom-intake/internal/triage"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?1?[-.\s]?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)
)

// HashPatientID returns the hex-encoded SHA-256 hash of a patient id.
func HashPatientID(id string) string {
	h := sha256.Sum256([]byte(id))
	return fmt.Sprintf("%x", h)
}

// ScrubPII replaces emails with [EMAIL] and phone numbers with [PHONE].
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	return phoneRe.ReplaceAllString(text, "[PHONE]")
}

func scrubAnswers(answers []triage.Answer) {
	for i := range answers {
		answers[i].Answer = ScrubPII(answers[i].Answer)
	}
}
