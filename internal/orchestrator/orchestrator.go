// Package orchestrator turns a user query into a plan via the planning
// oracle and executes the plan's steps through registered capabilities,
// isolating per-step failure and recording every outcome.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"lia/internal/audit"
	"lia/internal/capability"
	"lia/internal/domain"
	"lia/internal/feedback"
)

const (
	feedbackMinRating = 3
	feedbackHintCount = 2
)

// Config wires the orchestrator's collaborators. Planner, Registry,
// Feedback, and Audit are required; construction fails without them.
type Config struct {
	Planner  domain.Planner
	Registry *capability.Registry
	Feedback *feedback.Store
	Audit    *audit.Log
	Context  *ContextEngine // nil disables live context gathering
	Logger   *slog.Logger
}

type Orchestrator struct {
	planner  domain.Planner
	registry *capability.Registry
	feedback *feedback.Store
	audit    *audit.Log
	context  *ContextEngine
	logger   *slog.Logger
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Planner == nil {
		return nil, errors.New("orchestrator requires a planner")
	}
	if cfg.Registry == nil {
		return nil, errors.New("orchestrator requires a capability registry")
	}
	if cfg.Feedback == nil {
		return nil, errors.New("orchestrator requires a feedback store")
	}
	if cfg.Audit == nil {
		return nil, errors.New("orchestrator requires an audit log")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		planner:  cfg.Planner,
		registry: cfg.Registry,
		feedback: cfg.Feedback,
		audit:    cfg.Audit,
		context:  cfg.Context,
		logger:   cfg.Logger,
	}, nil
}

// Plan asks the oracle for a plan. Malformed oracle output comes back as
// a *domain.PlanningError, never a panic.
func (o *Orchestrator) Plan(ctx context.Context, query string) (*domain.Plan, error) {
	o.logger.Info("generating plan", "query", query)

	liveContext := ""
	if o.context != nil {
		liveContext = o.context.Gather(ctx, query)
	}
	hints := o.feedback.FindSimilar(ctx, query, feedbackMinRating, feedbackHintCount)

	systemPrompt := buildSystemPrompt(o.registry.Roster(), liveContext, hints)
	raw, err := o.planner.Complete(ctx, systemPrompt, "User request: "+query+"\n\nGenerate the plan JSON:")
	if err != nil {
		return nil, &domain.PlanningError{Reason: "oracle call failed: " + err.Error()}
	}

	plan, perr := parsePlan(raw)
	if perr != nil {
		o.logger.Error("plan parsing failed", "reason", perr.Reason)
		return nil, perr
	}
	o.logger.Info("plan generated", "name", plan.Name, "steps", len(plan.Steps))
	return plan, nil
}

// Run executes a query sequentially: step i's side effects are visible
// to step i+1. A planning failure becomes one synthetic failed step.
func (o *Orchestrator) Run(ctx context.Context, query string) domain.RunResult {
	result := domain.RunResult{RunID: uuid.NewString(), Query: query}

	plan, err := o.Plan(ctx, query)
	if err != nil {
		result.Outcomes = []domain.StepOutcome{planningFailure(err)}
		return result
	}
	result.PlanName = plan.Name

	for _, step := range plan.Steps {
		outcome := o.executeStep(ctx, query, step)
		result.Outcomes = append(result.Outcomes, outcome)
		if !outcome.Success {
			if corrected, ok := o.selfCorrect(ctx, query, step, outcome.Result); ok {
				result.Outcomes = append(result.Outcomes, corrected)
			}
		}
	}
	return result
}

// RunParallel executes all steps concurrently with no ordering guarantee
// among them; results are aggregated once every step finishes. Outcomes
// keep plan order. Self-correction is skipped: an alternative step could
// race the siblings it was meant to follow.
func (o *Orchestrator) RunParallel(ctx context.Context, query string) domain.RunResult {
	result := domain.RunResult{RunID: uuid.NewString(), Query: query}

	plan, err := o.Plan(ctx, query)
	if err != nil {
		result.Outcomes = []domain.StepOutcome{planningFailure(err)}
		return result
	}
	result.PlanName = plan.Name

	outcomes := make([]domain.StepOutcome, len(plan.Steps))
	var wg sync.WaitGroup
	for i, step := range plan.Steps {
		wg.Add(1)
		go func(i int, step domain.Step) {
			defer wg.Done()
			outcomes[i] = o.executeStep(ctx, query, step)
		}(i, step)
	}
	wg.Wait()

	result.Outcomes = outcomes
	return result
}

// RunStream executes a query and emits an ordered, forward-only event
// sequence. The channel is closed after the finished event; the sequence
// is not restartable.
func (o *Orchestrator) RunStream(ctx context.Context, query string) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		result := domain.RunResult{RunID: uuid.NewString(), Query: query}

		events <- Event{Type: EventPlanning}
		plan, err := o.Plan(ctx, query)
		if err != nil {
			outcome := planningFailure(err)
			result.Outcomes = []domain.StepOutcome{outcome}
			events <- Event{Type: EventError, Outcome: &outcome}
			events <- Event{Type: EventFinished, Result: &result}
			return
		}
		result.PlanName = plan.Name
		events <- Event{Type: EventPlanned, Plan: plan}

		for _, step := range plan.Steps {
			step := step
			events <- Event{Type: EventExecuting, Step: &step}
			outcome := o.executeStep(ctx, query, step)
			result.Outcomes = append(result.Outcomes, outcome)

			if outcome.Success {
				events <- Event{Type: EventCompleted, Outcome: &outcome}
				continue
			}
			events <- Event{Type: EventError, Outcome: &outcome}
			if corrected, ok := o.selfCorrect(ctx, query, step, outcome.Result); ok {
				result.Outcomes = append(result.Outcomes, corrected)
				if corrected.Success {
					events <- Event{Type: EventCompleted, Outcome: &corrected}
				} else {
					events <- Event{Type: EventError, Outcome: &corrected}
				}
			}
		}
		events <- Event{Type: EventFinished, Result: &result}
	}()
	return events
}

// ExecutePlan runs an already-built plan through the same per-step
// isolation path as generated plans. Workflows use this entrypoint.
func (o *Orchestrator) ExecutePlan(ctx context.Context, query string, plan *domain.Plan) []domain.StepOutcome {
	outcomes := make([]domain.StepOutcome, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		outcomes = append(outcomes, o.executeStep(ctx, query, step))
	}
	return outcomes
}

// executeStep dispatches one step and records its outcome. A capability
// panic is recovered here and converted into a failed outcome so the
// plan continues.
func (o *Orchestrator) executeStep(ctx context.Context, query string, step domain.Step) (outcome domain.StepOutcome) {
	outcome = domain.StepOutcome{StepID: step.ID}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("capability crashed", "capability", step.Capability, "panic", r)
			outcome.Success = false
			outcome.Result = fmt.Sprintf("capability %s crashed: %v", step.Capability, r)
		}
		o.persist(ctx, query, step, outcome)
	}()

	o.logger.Info("executing step", "id", step.ID, "capability", step.Capability, "task", step.Task)
	res := o.registry.Execute(ctx, step.Capability, step.Task)
	outcome.Success = res.Success
	outcome.Result = res.Message
	return outcome
}

// persist writes one outcome to the audit log and the feedback store.
// Persistence failures are logged, never propagated into the run.
func (o *Orchestrator) persist(ctx context.Context, query string, step domain.Step, outcome domain.StepOutcome) {
	status := "success"
	if !outcome.Success {
		status = "failure"
	}
	if err := o.audit.Append(ctx, domain.AuditEntry{
		Capability: step.Capability,
		Task:       step.Task,
		Result:     outcome.Result,
		Status:     status,
	}); err != nil {
		o.logger.Error("audit append failed", "err", err)
	}
	if err := o.feedback.Record(ctx, domain.FeedbackRecord{
		Query:      query,
		Capability: step.Capability,
		Command:    step.Task,
		Result:     outcome.Result,
		Success:    outcome.Success,
	}); err != nil {
		o.logger.Error("feedback record failed", "err", err)
	}
}

// selfCorrect issues exactly one follow-up oracle call for a failed step
// and executes the proposed alternative. The corrected outcome is
// appended alongside the original failure; this path never recurses.
func (o *Orchestrator) selfCorrect(ctx context.Context, query string, step domain.Step, failure string) (domain.StepOutcome, bool) {
	o.logger.Info("attempting self-correction", "step", step.ID)

	raw, err := o.planner.Complete(ctx, buildCorrectionPrompt(o.registry.Roster(), step, failure), "Propose the alternative step JSON:")
	if err != nil {
		o.logger.Warn("self-correction oracle call failed", "err", err)
		return domain.StepOutcome{}, false
	}

	var alt struct {
		Capability string `json:"capability"`
		Task       string `json:"task"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &alt); err != nil ||
		strings.TrimSpace(alt.Capability) == "" || strings.TrimSpace(alt.Task) == "" {
		o.logger.Warn("self-correction returned no usable step")
		return domain.StepOutcome{}, false
	}

	outcome := o.executeStep(ctx, query, domain.Step{
		ID:         step.ID,
		Capability: alt.Capability,
		Task:       alt.Task,
	})
	outcome.Corrected = true
	return outcome, true
}

func planningFailure(err error) domain.StepOutcome {
	return domain.StepOutcome{StepID: 0, Success: false, Result: err.Error()}
}
