package capability

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"lia/internal/domain"
	"lia/internal/execution"
	"lia/internal/permission"
)

const pkgTimeout = 120 * time.Second

// Package provides software installation and system updates through the
// execution engine.
type Package struct {
	engine *execution.Engine
	scope  *permission.Scope
	logger *slog.Logger
	tools  []tool
}

type PackageConfig struct {
	Engine *execution.Engine
	Scope  *permission.Scope
	Logger *slog.Logger
}

func NewPackage(cfg PackageConfig) *Package {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Package{engine: cfg.Engine, scope: cfg.Scope, logger: cfg.Logger}
	p.tools = []tool{
		{name: "install_pip", desc: "installs a Python package via pip",
			keywords: []string{"pip", "python package"},
			run:      p.installPip},
		{name: "install_npm", desc: "installs a Node package via npm",
			keywords: []string{"npm", "node package"},
			run:      p.installNpm},
		{name: "update_system", desc: "updates system packages",
			keywords: []string{"update", "upgrade", "system packages"},
			run:      p.updateSystem},
	}
	return p
}

func (p *Package) Name() string { return "package" }

func (p *Package) Description() string {
	return "pip/npm installs, system package updates"
}

func (p *Package) Execute(ctx context.Context, task string) domain.CapabilityResult {
	p.logger.Info("package capability executing", "task", task)
	if !p.scope.CheckCapability(p.Name(), domain.OpExecute) {
		return domain.Fail("package capability has no execute permission")
	}
	t := matchTool(task, p.tools)
	if t == nil {
		return noMatch(p.Name(), task, p.tools)
	}
	return t.run(ctx, task)
}

func (p *Package) run(ctx context.Context, command string) domain.CapabilityResult {
	return resultFromExec(p.engine.Run(ctx, execution.Request{
		Command: command,
		Shell:   true,
		Timeout: pkgTimeout,
	}))
}

func packageName(task string) string {
	name := extractArg(task, `(?:install|add)\s+(?:package\s+)?["']?([a-zA-Z0-9@._/-]+)["']?`, "")
	switch strings.ToLower(name) {
	case "pip", "npm", "python", "node", "package":
		return extractArg(task, `(?:pip|npm)\s+(?:package\s+)?["']?([a-zA-Z0-9@._/-]+)["']?`, "")
	}
	return name
}

func (p *Package) installPip(ctx context.Context, task string) domain.CapabilityResult {
	name := packageName(task)
	if name == "" {
		return domain.Fail("cannot determine package name")
	}
	res := p.run(ctx, "pip install "+shQuote(name))
	if res.Success {
		return domain.Ok("installed " + name)
	}
	return res
}

func (p *Package) installNpm(ctx context.Context, task string) domain.CapabilityResult {
	name := packageName(task)
	if name == "" {
		return domain.Fail("cannot determine package name")
	}
	res := p.run(ctx, "npm install -g "+shQuote(name))
	if res.Success {
		return domain.Ok("installed " + name)
	}
	return res
}

func (p *Package) updateSystem(ctx context.Context, _ string) domain.CapabilityResult {
	if runtime.GOOS == "windows" {
		return domain.Fail("system updates via package manager are not supported on Windows")
	}
	if res := p.run(ctx, "sudo apt update"); res.Success {
		return domain.Ok("system packages updated (apt)")
	}
	if res := p.run(ctx, "sudo yum update -y"); res.Success {
		return domain.Ok("system packages updated (yum)")
	}
	return domain.Fail("no supported package manager responded (tried apt, yum)")
}
