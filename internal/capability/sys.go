package capability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"lia/internal/domain"
	"lia/internal/execution"
	"lia/internal/permission"
)

const sysTimeout = 15 * time.Second

// Sys provides host inspection and service control through the execution
// engine.
type Sys struct {
	engine *execution.Engine
	scope  *permission.Scope
	logger *slog.Logger
	tools  []tool
}

type SysConfig struct {
	Engine *execution.Engine
	Scope  *permission.Scope
	Logger *slog.Logger
}

func NewSys(cfg SysConfig) *Sys {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Sys{engine: cfg.Engine, scope: cfg.Scope, logger: cfg.Logger}
	s.tools = []tool{
		{name: "check_cpu", desc: "shows CPU load",
			keywords: []string{"cpu", "processor", "load"},
			run:      s.checkCPU},
		{name: "check_ram", desc: "shows memory usage",
			keywords: []string{"ram", "memory usage", "memory"},
			run:      s.checkRAM},
		{name: "check_disk", desc: "shows disk usage",
			keywords: []string{"disk", "storage", "space"},
			run:      s.checkDisk},
		{name: "system_health", desc: "full system health summary",
			keywords: []string{"health", "system status", "overview", "check system", "system info"},
			run:      s.systemHealth},
		{name: "list_processes", desc: "lists top processes by CPU",
			keywords: []string{"process", "top", "running", "what's running", "task manager"},
			run:      s.listProcesses},
		{name: "manage_service", desc: "start/stop/status for system services",
			keywords: []string{"service", "systemctl", "restart", "start service", "stop service"},
			run:      s.manageService},
	}
	return s
}

func (s *Sys) Name() string { return "sys" }

func (s *Sys) Description() string {
	return "CPU, memory, disk, process listing, service control, health checks"
}

func (s *Sys) Execute(ctx context.Context, task string) domain.CapabilityResult {
	s.logger.Info("sys capability executing", "task", task)
	t := matchTool(task, s.tools)
	if t == nil {
		return noMatch(s.Name(), task, s.tools)
	}
	return t.run(ctx, task)
}

func (s *Sys) sh(ctx context.Context, command string) domain.CapabilityResult {
	return resultFromExec(s.engine.Run(ctx, execution.Request{
		Command: command,
		Shell:   true,
		Timeout: sysTimeout,
	}))
}

func (s *Sys) checkCPU(ctx context.Context, _ string) domain.CapabilityResult {
	res := s.sh(ctx, "uptime")
	if !res.Success {
		return res
	}
	return domain.Ok(fmt.Sprintf("%s\ncores: %d", res.Message, runtime.NumCPU()))
}

func (s *Sys) checkRAM(ctx context.Context, _ string) domain.CapabilityResult {
	if runtime.GOOS == "darwin" {
		return s.sh(ctx, "vm_stat")
	}
	return s.sh(ctx, "free -m")
}

func (s *Sys) checkDisk(ctx context.Context, _ string) domain.CapabilityResult {
	return s.sh(ctx, "df -h")
}

func (s *Sys) systemHealth(ctx context.Context, task string) domain.CapabilityResult {
	hostname, _ := os.Hostname()
	sections := []string{
		fmt.Sprintf("host: %s (%s/%s)", hostname, runtime.GOOS, runtime.GOARCH),
	}
	for _, part := range []func(context.Context, string) domain.CapabilityResult{s.checkCPU, s.checkRAM, s.checkDisk} {
		if res := part(ctx, task); res.Success {
			sections = append(sections, res.Message)
		}
	}
	return domain.Ok(strings.Join(sections, "\n---\n"))
}

func (s *Sys) listProcesses(ctx context.Context, _ string) domain.CapabilityResult {
	return s.sh(ctx, "ps aux --sort=-%cpu 2>/dev/null | head -n 11 || ps aux | head -n 11")
}

func (s *Sys) manageService(ctx context.Context, task string) domain.CapabilityResult {
	if !s.scope.CheckCapability(s.Name(), domain.OpExecute) {
		return domain.Fail("sys capability has no execute permission")
	}
	action := "status"
	for _, a := range []string{"restart", "start", "stop", "status"} {
		if strings.Contains(strings.ToLower(task), a) {
			action = a
			break
		}
	}
	name := extractArg(task, `(?:service|systemctl|restart|start|stop|status)\s+(?:the\s+)?["']?([a-zA-Z0-9._@-]+)["']?`, "")
	if name == "" || name == action {
		return domain.Fail("cannot determine service name")
	}
	return s.sh(ctx, fmt.Sprintf("systemctl %s %s", action, shQuote(name)))
}
