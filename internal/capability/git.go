package capability

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"lia/internal/domain"
	"lia/internal/execution"
	"lia/internal/permission"
)

const gitTimeout = 15 * time.Second

// Git provides version-control operations through the execution engine.
type Git struct {
	engine *execution.Engine
	scope  *permission.Scope
	logger *slog.Logger
	tools  []tool
}

type GitConfig struct {
	Engine *execution.Engine
	Scope  *permission.Scope
	Logger *slog.Logger
}

func NewGit(cfg GitConfig) *Git {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	g := &Git{engine: cfg.Engine, scope: cfg.Scope, logger: cfg.Logger}
	g.tools = []tool{
		{name: "git_status", desc: "shows working tree status",
			keywords: []string{"status", "changes", "modified", "staged"},
			run:      g.status},
		{name: "git_commit", desc: "stages everything and commits with a message",
			keywords: []string{"commit"},
			run:      g.commit},
		{name: "git_log", desc: "shows recent commit history",
			keywords: []string{"log", "history", "recent commits"},
			run:      g.log},
		{name: "git_diff", desc: "shows uncommitted changes",
			keywords: []string{"diff", "what changed"},
			run:      g.diff},
		{name: "git_branch", desc: "lists branches",
			keywords: []string{"branch", "branches"},
			run:      g.branch},
		{name: "pr_list", desc: "lists open pull requests via the gh CLI",
			keywords: []string{"pull request", "pr", "merge request"},
			run:      g.prList},
	}
	return g
}

func (g *Git) Name() string { return "git" }

func (g *Git) Description() string {
	return "git status, commits, log, diff, branches, pull requests"
}

func (g *Git) Execute(ctx context.Context, task string) domain.CapabilityResult {
	g.logger.Info("git capability executing", "task", task)
	t := matchTool(task, g.tools)
	if t == nil {
		return noMatch(g.Name(), task, g.tools)
	}
	return t.run(ctx, task)
}

func (g *Git) run(ctx context.Context, command string) domain.CapabilityResult {
	return resultFromExec(g.engine.Run(ctx, execution.Request{
		Command: command,
		Shell:   true,
		Timeout: gitTimeout,
	}))
}

func (g *Git) status(ctx context.Context, _ string) domain.CapabilityResult {
	res := g.run(ctx, "git status --short")
	if res.Success && res.Message == "done" {
		return domain.Ok("working tree clean")
	}
	return res
}

func (g *Git) commit(ctx context.Context, task string) domain.CapabilityResult {
	if !g.scope.CheckCapability(g.Name(), domain.OpWrite) {
		return domain.Fail("git capability has no write permission")
	}
	message := extractArg(task, `(?:message|msg|with)\s+['"](.+?)['"]`, "")
	if message == "" {
		message = extractArg(task, `commit\s+(.+)`, "checkpoint")
	}

	if stage := g.run(ctx, "git add ."); !stage.Success {
		return stage
	}
	res := g.run(ctx, "git commit -m "+shQuote(message))
	if !res.Success && strings.Contains(strings.ToLower(res.Message), "nothing to commit") {
		return domain.Ok("nothing to commit, working tree clean")
	}
	if res.Success {
		return domain.Ok("committed: " + message)
	}
	return res
}

func (g *Git) log(ctx context.Context, _ string) domain.CapabilityResult {
	return g.run(ctx, "git log --oneline -n 10")
}

func (g *Git) diff(ctx context.Context, _ string) domain.CapabilityResult {
	res := g.run(ctx, "git diff --stat")
	if res.Success && res.Message == "done" {
		return domain.Ok("no uncommitted changes")
	}
	return res
}

func (g *Git) branch(ctx context.Context, _ string) domain.CapabilityResult {
	return g.run(ctx, "git branch -a")
}

func (g *Git) prList(ctx context.Context, _ string) domain.CapabilityResult {
	res := g.run(ctx, "gh pr list")
	if !res.Success && strings.Contains(res.Message, "not found") {
		return domain.Fail("GitHub CLI (gh) not found; install it from https://cli.github.com")
	}
	if res.Success && res.Message == "done" {
		return domain.Ok("no open pull requests")
	}
	return res
}
