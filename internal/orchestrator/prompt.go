package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"lia/internal/domain"
)

const planExample = `{
  "plan_name": "backup and verify",
  "steps": [
    {"id": 1, "capability": "file", "task": "list the files in ~/Documents"},
    {"id": 2, "capability": "sys", "task": "check disk space"}
  ]
}`

// buildSystemPrompt assembles the planning prompt from the capability
// roster, live context, and retrieved past commands.
func buildSystemPrompt(roster, liveContext string, hints []domain.FeedbackRecord) string {
	var b strings.Builder
	b.WriteString("You are the planner of a local automation assistant. ")
	b.WriteString("Break the user request into a short sequence of steps, ")
	b.WriteString("each assigned to exactly one capability.\n\n")

	b.WriteString("Available capabilities:\n")
	b.WriteString(roster)
	b.WriteString("\n")

	if liveContext != "" {
		b.WriteString("Current system state:\n")
		b.WriteString(liveContext)
		b.WriteString("\n\n")
	}

	if len(hints) > 0 {
		b.WriteString("Commands that worked for similar requests on this machine:\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- query %q -> capability %s, command %q\n", h.Query, h.Capability, h.Command)
		}
		b.WriteString("\n")
	}

	b.WriteString("Rules:\n")
	b.WriteString("1. Steps run in order; later steps see the effects of earlier ones.\n")
	b.WriteString("2. Use only the capabilities listed above.\n")
	b.WriteString("3. Respond with JSON only, in this shape:\n")
	b.WriteString(planExample)
	return b.String()
}

// buildCorrectionPrompt asks for exactly one alternative step after a
// failure.
func buildCorrectionPrompt(roster string, step domain.Step, failure string) string {
	var b strings.Builder
	b.WriteString("A step of an automation plan failed. Propose exactly one alternative step.\n\n")
	b.WriteString("Available capabilities:\n")
	b.WriteString(roster)
	fmt.Fprintf(&b, "\nFailed step: capability %q, task %q\n", step.Capability, step.Task)
	fmt.Fprintf(&b, "Failure: %s\n\n", failure)
	b.WriteString("Respond with JSON only: {\"capability\": \"...\", \"task\": \"...\"}")
	return b.String()
}

// parsePlan turns raw oracle output into a validated plan. Any parse or
// shape failure comes back as a *domain.PlanningError value.
func parsePlan(raw string) (*domain.Plan, *domain.PlanningError) {
	cleaned := stripFences(raw)
	if strings.TrimSpace(cleaned) == "" {
		return nil, &domain.PlanningError{Reason: "oracle returned empty output", Raw: raw}
	}

	var plan domain.Plan
	if err := json.Unmarshal([]byte(cleaned), &plan); err != nil {
		return nil, &domain.PlanningError{Reason: "invalid JSON: " + err.Error(), Raw: raw}
	}
	if len(plan.Steps) == 0 {
		return nil, &domain.PlanningError{Reason: "plan has no steps", Raw: raw}
	}
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if strings.TrimSpace(step.Capability) == "" {
			return nil, &domain.PlanningError{Reason: fmt.Sprintf("step %d has no capability", i+1), Raw: raw}
		}
		if strings.TrimSpace(step.Task) == "" {
			return nil, &domain.PlanningError{Reason: fmt.Sprintf("step %d has no task", i+1), Raw: raw}
		}
		if step.ID == 0 {
			step.ID = i + 1
		}
	}
	if plan.Name == "" {
		plan.Name = "unnamed plan"
	}
	return &plan, nil
}

// stripFences removes a markdown code fence the oracle may wrap the JSON
// in.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	return s
}
