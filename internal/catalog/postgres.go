package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/wolfman30/symptom-intake/internal/triage"
)

// PostgresRepository stores rules in the symptom_rules table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps an open database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	if db == nil {
		panic("catalog: db cannot be nil")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListRules(ctx context.Context) ([]triage.SymptomRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symptom, follow_up_questions, severity_indicators, emergency_flags
		FROM symptom_rules
		WHERE active
		ORDER BY position ASC, symptom ASC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list rules: %w", err)
	}
	defer rows.Close()

	var out []triage.SymptomRule
	for rows.Next() {
		var rule triage.SymptomRule
		if err := rows.Scan(&rule.Symptom, pq.Array(&rule.FollowUpQuestions),
			pq.Array(&rule.SeverityIndicators), pq.Array(&rule.EmergencyFlags)); err != nil {
			return nil, fmt.Errorf("catalog: scan rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list rules: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) FindRule(ctx context.Context, symptom string) (*triage.SymptomRule, error) {
	var rule triage.SymptomRule
	err := r.db.QueryRowContext(ctx, `
		SELECT symptom, follow_up_questions, severity_indicators, emergency_flags
		FROM symptom_rules
		WHERE symptom = $1 AND active`, strings.ToLower(strings.TrimSpace(symptom))).Scan(
		&rule.Symptom, pq.Array(&rule.FollowUpQuestions),
		pq.Array(&rule.SeverityIndicators), pq.Array(&rule.EmergencyFlags))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: find rule: %w", err)
	}
	return &rule, nil
}

// UpsertRule inserts or replaces a rule. New rules are appended to the end
// of the catalog order; updates keep their position.
func (r *PostgresRepository) UpsertRule(ctx context.Context, rule triage.SymptomRule) error {
	if err := Validate(&rule); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO symptom_rules (symptom, position, follow_up_questions, severity_indicators, emergency_flags, active, updated_at)
		VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM symptom_rules), $2, $3, $4, TRUE, NOW())
		ON CONFLICT (symptom) DO UPDATE SET
		    follow_up_questions = EXCLUDED.follow_up_questions,
		    severity_indicators = EXCLUDED.severity_indicators,
		    emergency_flags = EXCLUDED.emergency_flags,
		    active = TRUE,
		    updated_at = NOW()`,
		rule.Symptom, pq.Array(rule.FollowUpQuestions), pq.Array(rule.SeverityIndicators), pq.Array(rule.EmergencyFlags))
	if err != nil {
		return fmt.Errorf("catalog: upsert rule: %w", err)
	}
	return nil
}
