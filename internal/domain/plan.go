package domain

import "fmt"

// Step is one capability invocation inside a plan.
type Step struct {
	ID         int    `json:"id"`
	Capability string `json:"capability"`
	Task       string `json:"task"`
}

// Plan is an oracle-produced sequence of steps for one user query.
// It is produced once and consumed once.
type Plan struct {
	Name  string `json:"plan_name"`
	Steps []Step `json:"steps"`
}

// StepOutcome is the recorded result of executing one step.
// Corrected marks the outcome of a one-shot self-correction attempt; it is
// appended alongside the original failure, never substituted for it.
type StepOutcome struct {
	StepID    int
	Result    string
	Success   bool
	Corrected bool
}

// RunResult aggregates every step outcome of one query.
type RunResult struct {
	RunID    string
	Query    string
	PlanName string
	Outcomes []StepOutcome
}

// Failed reports how many outcomes did not succeed.
func (r RunResult) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Success {
			n++
		}
	}
	return n
}

// PlanningError signals that the oracle returned an invalid, empty, or
// unparseable plan. It is recovered by the orchestrator and surfaced as a
// single synthetic failed step.
type PlanningError struct {
	Reason string
	Raw    string // raw oracle output, for diagnostics
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %s", e.Reason)
}
