package compliance

import (
	"context"
	"strings"
)

// DisclaimerLevel represents the verbosity of the disclaimer.
type DisclaimerLevel string

const (
	DisclaimerShort DisclaimerLevel = "short"
	DisclaimerFull  DisclaimerLevel = "full"
	DisclaimerNone  DisclaimerLevel = "none"
)

const (
	disclaimerShortText = "This summary is not a diagnosis."
	disclaimerFullText  = "This summary was prepared by an automated intake assistant for your doctor. It is not a diagnosis or medical advice. If your symptoms get worse, contact emergency services."
)

// DisclaimerService appends a disclaimer to summary replies and records
// that it was sent.
type DisclaimerService struct {
	audit *AuditService
	level DisclaimerLevel
}

// ParseDisclaimerLevel maps a configured level; unknown values mean full.
func ParseDisclaimerLevel(raw string) DisclaimerLevel {
	switch level := DisclaimerLevel(strings.ToLower(strings.TrimSpace(raw))); level {
	case DisclaimerShort, DisclaimerNone:
		return level
	default:
		return DisclaimerFull
	}
}

// NewDisclaimerService builds a disclaimer service. audit may be nil.
func NewDisclaimerService(audit *AuditService, level DisclaimerLevel) *DisclaimerService {
	level = ParseDisclaimerLevel(string(level))
	return &DisclaimerService{audit: audit, level: level}
}

func (s *DisclaimerService) Text() string {
	switch s.level {
	case DisclaimerShort:
		return disclaimerShortText
	case DisclaimerNone:
		return ""
	default:
		return disclaimerFullText
	}
}

// Apply appends the disclaimer once. Audit failures do not block the reply.
func (s *DisclaimerService) Apply(ctx context.Context, sessionID, message string) string {
	if s == nil || s.level == DisclaimerNone {
		return message
	}
	text := s.Text()
	if strings.Contains(message, text) {
		return message
	}
	if s.audit != nil && sessionID != "" {
		_ = s.audit.LogDisclaimerSent(ctx, sessionID, s.level)
	}
	return strings.TrimSpace(message) + "\n\n" + text
}
