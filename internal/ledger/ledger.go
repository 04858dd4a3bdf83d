// Package ledger holds the pure bookkeeping of a traversal record. Nothing here
// touches storage; the engine persists what these functions return.
package ledger

import (
	"lifeswap/internal/domain"
	"lifeswap/internal/scoring"
)

// Percentage is min(100, round(100*steps/total)). A zero denominator counts as
// fully complete.
func Percentage(steps, total int) int {
	if total <= 0 {
		return 100
	}
	if steps <= 0 {
		return 0
	}
	p := (200*steps + total) / (2 * total)
	if p > 100 {
		return 100
	}
	return p
}

// RecomputeAggregates derives points, elapsed time and percentage from the step
// history. It returns a new value and leaves l untouched.
func RecomputeAggregates(l domain.Ledger, p scoring.Policy) domain.Ledger {
	out := l
	out.PointsEarned = p.Score(l)
	out.TimeSpent = 0
	for _, s := range l.Steps {
		out.TimeSpent += s.ElapsedSeconds
	}
	out.StepCount = len(l.Steps)
	switch out.Outcome {
	case domain.OutcomeCompleted:
		out.CompletionPercentage = 100
	default:
		pct := Percentage(len(l.Steps), l.TotalScenarios)
		// exited ledgers keep what they had when sealed
		if pct < l.CompletionPercentage {
			pct = l.CompletionPercentage
		}
		out.CompletionPercentage = pct
	}
	return out
}

// Append records one step and moves the position. A step with no target leaves
// the position on the scenario it was taken from.
func Append(l domain.Ledger, step domain.LedgerStep) domain.Ledger {
	out := l
	step.LedgerID = l.ID
	step.Seq = len(l.Steps) + 1
	out.Steps = make([]domain.LedgerStep, len(l.Steps), len(l.Steps)+1)
	copy(out.Steps, l.Steps)
	out.Steps = append(out.Steps, step)
	if step.ToScenarioID != nil {
		to := *step.ToScenarioID
		out.CurrentScenarioID = &to
	} else {
		from := step.FromScenarioID
		out.CurrentScenarioID = &from
	}
	return out
}

// Seal closes the ledger with the given outcome. Completed ledgers report 100%.
func Seal(l domain.Ledger, outcome, at string) domain.Ledger {
	out := l
	out.Outcome = outcome
	out.IsCompleted = true
	ts := at
	out.CompletedAt = &ts
	if outcome == domain.OutcomeCompleted {
		out.CompletionPercentage = 100
	}
	return out
}

func Sealed(l domain.Ledger) bool { return l.IsCompleted }
