package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"lia/internal/audit"
	"lia/internal/capability"
	"lia/internal/config"
	"lia/internal/domain"
	"lia/internal/execution"
	"lia/internal/feedback"
	"lia/internal/oracle"
	"lia/internal/orchestrator"
	"lia/internal/permission"
	"lia/internal/safety"
	"lia/internal/workflow"
)

// services holds every wired collaborator for one CLI invocation.
type services struct {
	cfg        *config.Config
	logger     *slog.Logger
	classifier *safety.Classifier
	watcher    *safety.Watcher
	scope      *permission.Scope
	engine     *execution.Engine
	planner    domain.Planner
	store      *feedback.Store
	audit      *audit.Log
	orch       *orchestrator.Orchestrator
	workflows  *workflow.Engine
	sandbox    *execution.Sandbox
}

// loadConfig reads the config file or falls back to defaults.
func loadConfig(logger *slog.Logger) *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildServices wires the full stack from config. Store construction
// failures are fatal; optional collaborators (rules watcher, vector
// index) degrade with a warning.
func buildServices(cfg *config.Config) (*services, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.General.LogLevel),
	}))

	defaultVerdict := domain.RiskSafe
	if cfg.Safety.DefaultVerdict == "block" {
		defaultVerdict = domain.RiskBlocked
	}
	classifier, err := safety.NewClassifier(safety.Config{
		RulesPath:      cfg.Safety.RulesPath,
		DefaultVerdict: defaultVerdict,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("safety classifier: %w", err)
	}

	var watcher *safety.Watcher
	if cfg.Safety.WatchRules && cfg.Safety.RulesPath != "" {
		watcher, err = safety.NewWatcher(classifier, cfg.Safety.RulesPath, logger)
		if err != nil {
			logger.Warn("rules hot-reload disabled", "err", err)
			watcher = nil
		}
	}

	rights := make(map[string][]domain.Operation, len(cfg.Permissions.Capabilities))
	for name, ops := range cfg.Permissions.Capabilities {
		for _, op := range ops {
			rights[name] = append(rights[name], domain.Operation(op))
		}
	}
	scope := permission.NewScope(permission.Config{
		AllowedPaths: cfg.Permissions.AllowedPaths,
		Capabilities: rights,
		Connections:  cfg.Permissions.Connections,
		Logger:       logger,
	})

	sandbox := execution.NewSandbox(cfg.Execution.Sandbox, logger)
	engine, err := execution.NewEngine(execution.Config{
		Classifier: classifier,
		Sandbox:    sandbox,
		Shell:      cfg.Execution.Shell,
		Timeout:    time.Duration(cfg.Execution.TimeoutSeconds) * time.Second,
		MaxOutput:  cfg.Execution.MaxOutputBytes,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("execution engine: %w", err)
	}

	planner, err := oracle.NewPlanner(cfg.Oracle, logger)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	var vectors *feedback.VectorIndex
	if embedder := oracle.NewEmbedderFromConfig(cfg.Embedding, logger); embedder != nil {
		vectors, err = feedback.NewVectorIndex(cfg.Feedback.VectorPath, embedder.Embed, logger)
		if err != nil {
			logger.Warn("vector index unavailable, keyword search only", "err", err)
			vectors = nil
		}
	}

	store, err := feedback.NewStore(feedback.Config{
		DBPath:  cfg.Feedback.DBPath,
		Vectors: vectors,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("feedback store: %w", err)
	}

	auditLog, err := audit.NewLog(cfg.Audit.DBPath, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("audit log: %w", err)
	}

	registry := capability.NewRegistry(logger)
	caps := []domain.Capability{
		capability.NewFile(capability.FileConfig{Scope: scope, Logger: logger}),
		capability.NewSys(capability.SysConfig{Engine: engine, Scope: scope, Logger: logger}),
		capability.NewGit(capability.GitConfig{Engine: engine, Scope: scope, Logger: logger}),
		capability.NewDocker(capability.DockerConfig{Engine: engine, Scope: scope, Logger: logger}),
		capability.NewPackage(capability.PackageConfig{Engine: engine, Scope: scope, Logger: logger}),
		capability.NewNet(capability.NetConfig{Engine: engine, Scope: scope, Logger: logger}),
	}
	for _, c := range caps {
		if err := registry.Register(c); err != nil {
			store.Close()
			auditLog.Close()
			return nil, fmt.Errorf("register capability: %w", err)
		}
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Planner:  planner,
		Registry: registry,
		Feedback: store,
		Audit:    auditLog,
		Context:  orchestrator.NewContextEngine(engine, logger),
		Logger:   logger,
	})
	if err != nil {
		store.Close()
		auditLog.Close()
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	workflows, err := workflow.NewEngine(workflow.Config{
		Dir:    cfg.Workflows.Dir,
		Runner: orch,
		Logger: logger,
	})
	if err != nil {
		store.Close()
		auditLog.Close()
		return nil, fmt.Errorf("workflow engine: %w", err)
	}

	return &services{
		cfg:        cfg,
		logger:     logger,
		classifier: classifier,
		watcher:    watcher,
		scope:      scope,
		engine:     engine,
		planner:    planner,
		store:      store,
		audit:      auditLog,
		orch:       orch,
		workflows:  workflows,
		sandbox:    sandbox,
	}, nil
}

// Close terminates in-flight processes and flushes the stores.
func (s *services) Close(ctx context.Context) {
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.logger.Warn("rules watcher close failed", "err", err)
		}
	}
	s.engine.Shutdown(ctx)
	if err := s.store.Close(); err != nil {
		s.logger.Warn("feedback store close failed", "err", err)
	}
	if err := s.audit.Close(); err != nil {
		s.logger.Warn("audit log close failed", "err", err)
	}
}
