package triage

// QuestionStep is the sequencer's answer for one turn.
type QuestionStep struct {
	Question string
	// Number is the 1-based position of Question within the capped sequence.
	Number int
	IsLast bool
	// Done signals that every allowed question has been asked.
	Done bool
}

// QuestionCap is min(configuredMax, len(questions)). A non-positive
// configuredMax means the rule's own question count is the only limit.
func QuestionCap(rule SymptomRule, configuredMax int) int {
	n := len(rule.FollowUpQuestions)
	if configuredMax > 0 && configuredMax < n {
		return configuredMax
	}
	return n
}

// NextQuestion returns the follow-up to ask after askedCount questions.
// Out-of-range cursors clamp to the nearest valid question.
func NextQuestion(rule SymptomRule, askedCount, configuredMax int) QuestionStep {
	limit := QuestionCap(rule, configuredMax)
	if askedCount >= limit {
		return QuestionStep{Done: true}
	}
	idx := askedCount
	if idx < 0 {
		idx = 0
	}
	if last := len(rule.FollowUpQuestions) - 1; idx > last {
		idx = last
	}
	return QuestionStep{
		Question: rule.FollowUpQuestions[idx],
		Number:   idx + 1,
		IsLast:   idx+1 >= limit,
	}
}
