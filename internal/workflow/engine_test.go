package workflow

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"lia/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingRunner captures the plan it was asked to execute.
type recordingRunner struct {
	query string
	plan  *domain.Plan
}

func (r *recordingRunner) ExecutePlan(_ context.Context, query string, plan *domain.Plan) []domain.StepOutcome {
	r.query = query
	r.plan = plan
	outcomes := make([]domain.StepOutcome, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		outcomes = append(outcomes, domain.StepOutcome{StepID: s.ID, Success: true, Result: "ok"})
	}
	return outcomes
}

func writeWorkflow(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestEngine(t *testing.T, runner Runner) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	e, err := NewEngine(Config{Dir: dir, Runner: runner, Logger: testLogger()})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e, dir
}

func TestList(t *testing.T) {
	e, dir := newTestEngine(t, &recordingRunner{})
	writeWorkflow(t, dir, "backup.yaml", "name: backup\nsteps: []\n")
	writeWorkflow(t, dir, "deploy.yml", "name: deploy\nsteps: []\n")
	writeWorkflow(t, dir, "notes.txt", "not a workflow")

	names, err := e.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 || names[0] != "backup" || names[1] != "deploy" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestRun_SubstitutesVariables(t *testing.T) {
	runner := &recordingRunner{}
	e, dir := newTestEngine(t, runner)
	writeWorkflow(t, dir, "greet.yaml", `
name: greet
steps:
  - id: 1
    capability: file
    task: "list files in {{target}}"
  - id: 2
    capability: sys
    task: "check disk"
`)

	outcomes, err := e.Run(context.Background(), "greet", map[string]string{"target": "/tmp/demo"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if runner.plan.Steps[0].Task != "list files in /tmp/demo" {
		t.Fatalf("variable not substituted: %q", runner.plan.Steps[0].Task)
	}
	if runner.query != "workflow:greet" {
		t.Fatalf("unexpected query label: %q", runner.query)
	}
}

func TestLoad_DefaultsIDsAndName(t *testing.T) {
	e, dir := newTestEngine(t, &recordingRunner{})
	writeWorkflow(t, dir, "anon.yaml", `
steps:
  - capability: sys
    task: check disk
  - capability: net
    task: ping google.com
`)

	plan, err := e.Load("anon", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if plan.Name != "anon" {
		t.Fatalf("name must default to the file name, got %q", plan.Name)
	}
	if plan.Steps[0].ID != 1 || plan.Steps[1].ID != 2 {
		t.Fatalf("ids not defaulted: %+v", plan.Steps)
	}
}

func TestLoad_Validation(t *testing.T) {
	e, dir := newTestEngine(t, &recordingRunner{})
	writeWorkflow(t, dir, "empty.yaml", "name: empty\nsteps: []\n")
	writeWorkflow(t, dir, "nocap.yaml", "steps:\n  - task: orphan task\n")

	if _, err := e.Load("empty", nil); err == nil {
		t.Fatal("empty workflow must fail to load")
	}
	if _, err := e.Load("nocap", nil); err == nil {
		t.Fatal("step without capability must fail to load")
	}
	if _, err := e.Load("missing", nil); err == nil {
		t.Fatal("unknown workflow must fail to load")
	}
}
