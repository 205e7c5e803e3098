package pipeline

// BudgetPolicy is the output-token schedule for section generation. Attempt
// i runs with Budgets[i]; the schedule's length bounds the attempt count, so
// a truncated or unparseable response retries with the next, larger budget
// until the schedule runs out.
type BudgetPolicy struct {
	Budgets []int64
}

// DefaultBudgetPolicy returns the standard two-attempt schedule.
func DefaultBudgetPolicy() BudgetPolicy {
	return BudgetPolicy{Budgets: []int64{1024, 2048}}
}

// Attempts returns how many generation attempts the schedule allows.
func (p BudgetPolicy) Attempts() int {
	return len(p.Budgets)
}

// Budget returns the max output tokens for attempt i (zero-based). Out of
// range falls back to the last entry.
func (p BudgetPolicy) Budget(attempt int) int64 {
	if len(p.Budgets) == 0 {
		return 1024
	}
	if attempt >= len(p.Budgets) {
		attempt = len(p.Budgets) - 1
	}
	return p.Budgets[attempt]
}
