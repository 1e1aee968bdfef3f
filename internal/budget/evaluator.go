// Package budget derives the status of spending against configured limits.
package budget

import "glassbooks/internal/core"

// Status classifies spend against a limit.
type Status string

const (
	StatusNormal  Status = "normal"
	StatusWarning Status = "warning"
	StatusOver    Status = "over"
)

const warningNumerator, warningDenominator = 9, 10

// EvaluateCategory returns the status of category spend against its budget
// limit: Over at or beyond the limit, Warning from 90% of it. A non-positive
// limit means no budget is configured and always evaluates Normal.
func EvaluateCategory(spend, limit core.Money) Status {
	if limit.Cents <= 0 {
		return StatusNormal
	}
	if spend.Cents >= limit.Cents {
		return StatusOver
	}
	// 90% threshold in integer cents, no float comparison.
	if spend.Cents*warningDenominator >= limit.Cents*warningNumerator {
		return StatusWarning
	}
	return StatusNormal
}

// EvaluateProject returns Over only when spend strictly exceeds the project
// budget. The comparator intentionally differs from the category one (>= vs
// >); both behaviors are carried over as observed and should not be unified
// without a product decision.
func EvaluateProject(spend, budget core.Money) Status {
	if budget.Cents <= 0 {
		return StatusNormal
	}
	if spend.Cents > budget.Cents {
		return StatusOver
	}
	return StatusNormal
}
