package orchestrator

import "lia/internal/domain"

// EventType identifies one stage of a streamed run.
type EventType string

const (
	EventPlanning  EventType = "planning"
	EventPlanned   EventType = "planned"
	EventExecuting EventType = "executing"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
	EventFinished  EventType = "finished"
)

// Event is one element of the forward-only stream emitted by RunStream.
// Fields are populated per type: Plan on planned, Step on executing,
// Outcome on completed/error, Result on finished.
type Event struct {
	Type    EventType
	Plan    *domain.Plan
	Step    *domain.Step
	Outcome *domain.StepOutcome
	Result  *domain.RunResult
}
