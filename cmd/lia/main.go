package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"lia/internal/config"
	"lia/internal/domain"
	"lia/internal/orchestrator"
	"lia/internal/safety"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:     "lia",
		Short:   "lia: local automation assistant",
		Long:    "lia plans multi-step tasks with a local LLM and executes them through guarded capabilities.",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.lia/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(streamCmd())
	root.AddCommand(planCmd())
	root.AddCommand(rateCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(workflowCmd())
	root.AddCommand(statusCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config, safety rules, and workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			cfgPath := config.DefaultConfigPath()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := safety.SaveRules(cfg.Safety.RulesPath, safety.DefaultRules()); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Workflows.Dir, 0o755); err != nil {
				return err
			}
			if err := writeExampleWorkflow(cfg.Workflows.Dir); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "rules", cfg.Safety.RulesPath, "workflows", cfg.Workflows.Dir)
			return nil
		},
	}
}

func writeExampleWorkflow(dir string) error {
	path := filepath.Join(dir, "health-check.yaml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	example := `name: health check
steps:
  - id: 1
    capability: sys
    task: run a full system health check
  - id: 2
    capability: net
    task: check internet connectivity
`
	return os.WriteFile(path, []byte(example), 0o644)
}

func runCmd() *cobra.Command {
	var parallel bool
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Plan and execute a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := buildServices(loadConfig(logger))
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			var result domain.RunResult
			if parallel {
				result = svc.orch.RunParallel(ctx, query)
			} else {
				result = svc.orch.Run(ctx, query)
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&parallel, "parallel", false, "execute steps concurrently (no ordering guarantee)")
	return cmd
}

func streamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream <query>",
		Short: "Plan and execute a query, streaming progress",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := buildServices(loadConfig(logger))
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			for ev := range svc.orch.RunStream(ctx, query) {
				printEvent(ev)
			}
			return nil
		},
	}
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <query>",
		Short: "Generate a plan without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := buildServices(loadConfig(logger))
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			plan, err := svc.orch.Plan(ctx, query)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func rateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rate <1-5>",
		Short: "Rate the most recently executed command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rating, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("rating must be a number: %w", err)
			}
			svc, err := buildServices(loadConfig(logger))
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			if err := svc.store.RateLast(context.Background(), rating); err != nil {
				return err
			}
			fmt.Println("rated last command")
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent command history and rating stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(loadConfig(logger))
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())
			ctx := context.Background()

			records, err := svc.store.History(ctx, limit)
			if err != nil {
				return err
			}
			for _, r := range records {
				status := "ok"
				if !r.Success {
					status = "failed"
				}
				fmt.Printf("%s  [%s/%s]  rating=%d  %s\n",
					r.Timestamp.Format("2006-01-02 15:04"), r.Capability, status, r.Rating, r.Query)
			}

			stats, err := svc.store.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("\n%d commands recorded, avg rating %.2f (%d positive, %d negative)\n",
				stats.Total, stats.AvgRating, stats.Positive, stats.Negative)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of rows to show")
	return cmd
}

func auditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the most recent audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(loadConfig(logger))
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			entries, err := svc.audit.Recent(context.Background(), limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s  [%s/%s]  %s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.Capability, e.Status, e.Task)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of rows to show")
	return cmd
}

func workflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "List and run predefined workflows",
	}
	cmd.AddCommand(workflowListCmd())
	cmd.AddCommand(workflowRunCmd())
	return cmd
}

func workflowListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(loadConfig(logger))
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			names, err := svc.workflows.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("no workflows defined")
				return nil
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func workflowRunCmd() *cobra.Command {
	var rawVars []string
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Run a predefined workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vars := make(map[string]string, len(rawVars))
			for _, raw := range rawVars {
				key, val, ok := strings.Cut(raw, "=")
				if !ok {
					return fmt.Errorf("invalid --var %q, want key=value", raw)
				}
				vars[key] = val
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := buildServices(loadConfig(logger))
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())

			outcomes, err := svc.workflows.Run(ctx, args[0], vars)
			if err != nil {
				return err
			}
			for _, o := range outcomes {
				printOutcome(o)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&rawVars, "var", nil, "workflow variable, key=value (repeatable)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and collaborator health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(logger)
			svc, err := buildServices(cfg)
			if err != nil {
				return err
			}
			defer svc.Close(context.Background())
			ctx := context.Background()

			fmt.Printf("oracle: %s (%s)\n", svc.planner.Name(), cfg.Oracle.Model)
			if err := svc.planner.Healthy(ctx); err != nil {
				fmt.Printf("oracle health: %v\n", err)
			} else {
				fmt.Println("oracle health: ok")
			}
			fmt.Printf("sandbox: enabled=%v active=%v\n", cfg.Execution.Sandbox, svc.sandbox.Active())
			fmt.Printf("default verdict: %s\n", cfg.Safety.DefaultVerdict)

			stats, err := svc.store.Stats(ctx)
			if err == nil {
				fmt.Printf("feedback: %d commands recorded\n", stats.Total)
			}
			scope, err := json.MarshalIndent(svc.scope.Status(), "", "  ")
			if err == nil {
				fmt.Printf("permissions: %s\n", scope)
			}
			return nil
		},
	}
}

func printResult(result domain.RunResult) {
	fmt.Printf("plan: %s (run %s)\n", result.PlanName, result.RunID)
	for _, o := range result.Outcomes {
		printOutcome(o)
	}
	if n := result.Failed(); n > 0 {
		fmt.Printf("%d step(s) failed\n", n)
	}
}

func printOutcome(o domain.StepOutcome) {
	status := "ok"
	if !o.Success {
		status = "FAILED"
	}
	label := fmt.Sprintf("step %d", o.StepID)
	if o.Corrected {
		label += " (corrected)"
	}
	fmt.Printf("[%s] %s: %s\n", status, label, o.Result)
}

func printEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventPlanning:
		fmt.Println("planning...")
	case orchestrator.EventPlanned:
		fmt.Printf("plan: %s (%d steps)\n", ev.Plan.Name, len(ev.Plan.Steps))
	case orchestrator.EventExecuting:
		fmt.Printf("step %d [%s]: %s\n", ev.Step.ID, ev.Step.Capability, ev.Step.Task)
	case orchestrator.EventCompleted, orchestrator.EventError:
		printOutcome(*ev.Outcome)
	case orchestrator.EventFinished:
		if n := ev.Result.Failed(); n > 0 {
			fmt.Printf("finished, %d step(s) failed\n", n)
		} else {
			fmt.Println("finished")
		}
	}
}
