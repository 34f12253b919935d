// Package catalog provides symptom rule sources for the intake engine.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/wolfman30/symptom-intake/internal/triage"
)

var (
	// ErrRuleNotFound is returned by admin lookups for unknown symptoms.
	ErrRuleNotFound = errors.New("catalog: rule not found")
	// ErrInvalidRule wraps validation failures.
	ErrInvalidRule = errors.New("catalog: invalid rule")
)

// Source is a read-only rule provider.
type Source interface {
	ListRules(ctx context.Context) ([]triage.SymptomRule, error)
	FindRule(ctx context.Context, symptom string) (*triage.SymptomRule, error)
}

// Store is a Source that also accepts rule updates.
type Store interface {
	Source
	UpsertRule(ctx context.Context, rule triage.SymptomRule) error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a single rule and canonicalizes its key.
func Validate(rule *triage.SymptomRule) error {
	rule.Symptom = strings.ToLower(strings.TrimSpace(rule.Symptom))
	if err := validate.Struct(rule); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidRule, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// ValidateSet checks every rule and enforces one rule per canonical symptom.
func ValidateSet(rules []triage.SymptomRule) error {
	seen := make(map[string]struct{}, len(rules))
	for i := range rules {
		if err := Validate(&rules[i]); err != nil {
			return err
		}
		if _, dup := seen[rules[i].Symptom]; dup {
			return fmt.Errorf("%w: duplicate symptom %q", ErrInvalidRule, rules[i].Symptom)
		}
		seen[rules[i].Symptom] = struct{}{}
	}
	return nil
}

func cloneRule(r triage.SymptomRule) triage.SymptomRule {
	r.FollowUpQuestions = append([]string(nil), r.FollowUpQuestions...)
	r.SeverityIndicators = append([]string(nil), r.SeverityIndicators...)
	r.EmergencyFlags = append([]string(nil), r.EmergencyFlags...)
	return r
}
