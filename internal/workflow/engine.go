// Package workflow executes predefined multi-step YAML workflows through
// the orchestrator's per-step isolation path.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"lia/internal/domain"
)

// Runner executes an already-built plan. The orchestrator satisfies this.
type Runner interface {
	ExecutePlan(ctx context.Context, query string, plan *domain.Plan) []domain.StepOutcome
}

// definition is the on-disk YAML shape of one workflow.
type definition struct {
	Name  string `yaml:"name"`
	Steps []struct {
		ID         int    `yaml:"id"`
		Capability string `yaml:"capability"`
		Task       string `yaml:"task"`
	} `yaml:"steps"`
}

// Engine loads workflows from a directory and runs them.
type Engine struct {
	dir    string
	runner Runner
	logger *slog.Logger
}

type Config struct {
	Dir    string
	Runner Runner
	Logger *slog.Logger
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("workflow engine requires a runner")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create workflows directory %s: %w", cfg.Dir, err)
	}
	return &Engine{dir: cfg.Dir, runner: cfg.Runner, logger: cfg.Logger}, nil
}

// List returns the available workflow names, sorted.
func (e *Engine) List() ([]string, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read workflows directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(name, ".yaml") {
			names = append(names, strings.TrimSuffix(name, ".yaml"))
		} else if strings.HasSuffix(name, ".yml") {
			names = append(names, strings.TrimSuffix(name, ".yml"))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Load reads one workflow and expands {{var}} placeholders in its tasks.
func (e *Engine) Load(name string, vars map[string]string) (*domain.Plan, error) {
	path, err := e.find(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read workflow %s: %w", name, err)
	}

	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("cannot parse workflow %s: %w", name, err)
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("workflow %s has no steps", name)
	}

	plan := &domain.Plan{Name: def.Name}
	if plan.Name == "" {
		plan.Name = name
	}
	for i, s := range def.Steps {
		if strings.TrimSpace(s.Capability) == "" {
			return nil, fmt.Errorf("workflow %s: step %d has no capability", name, i+1)
		}
		id := s.ID
		if id == 0 {
			id = i + 1
		}
		plan.Steps = append(plan.Steps, domain.Step{
			ID:         id,
			Capability: s.Capability,
			Task:       substitute(s.Task, vars),
		})
	}
	return plan, nil
}

// Run loads and executes one workflow.
func (e *Engine) Run(ctx context.Context, name string, vars map[string]string) ([]domain.StepOutcome, error) {
	plan, err := e.Load(name, vars)
	if err != nil {
		return nil, err
	}
	e.logger.Info("running workflow", "name", plan.Name, "steps", len(plan.Steps))
	return e.runner.ExecutePlan(ctx, "workflow:"+name, plan), nil
}

func (e *Engine) find(name string) (string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(e.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("workflow %s not found in %s", name, e.dir)
}

// substitute replaces {{var}} placeholders with their values.
func substitute(task string, vars map[string]string) string {
	for key, val := range vars {
		task = strings.ReplaceAll(task, "{{"+key+"}}", val)
	}
	return task
}
