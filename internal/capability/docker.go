package capability

import (
	"context"
	"log/slog"
	"time"

	"lia/internal/domain"
	"lia/internal/execution"
	"lia/internal/permission"
)

const dockerTimeout = 60 * time.Second

// Docker provides container management through the execution engine.
type Docker struct {
	engine *execution.Engine
	scope  *permission.Scope
	logger *slog.Logger
	tools  []tool
}

type DockerConfig struct {
	Engine *execution.Engine
	Scope  *permission.Scope
	Logger *slog.Logger
}

func NewDocker(cfg DockerConfig) *Docker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	d := &Docker{engine: cfg.Engine, scope: cfg.Scope, logger: cfg.Logger}
	d.tools = []tool{
		{name: "list_containers", desc: "lists containers",
			keywords: []string{"list", "ps", "containers", "running", "show"},
			run:      d.listContainers},
		{name: "start_container", desc: "starts a container",
			keywords: []string{"start", "launch", "run container"},
			run:      d.startContainer},
		{name: "stop_container", desc: "stops a container",
			keywords: []string{"stop", "halt", "kill container"},
			run:      d.stopContainer},
		{name: "compose_up", desc: "brings a compose project up",
			keywords: []string{"compose", "docker-compose", "stack"},
			run:      d.composeUp},
	}
	return d
}

func (d *Docker) Name() string { return "docker" }

func (d *Docker) Description() string {
	return "container listing, start/stop, compose up"
}

func (d *Docker) Execute(ctx context.Context, task string) domain.CapabilityResult {
	d.logger.Info("docker capability executing", "task", task)
	if !d.scope.CheckCapability(d.Name(), domain.OpExecute) {
		return domain.Fail("docker capability has no execute permission")
	}
	t := matchTool(task, d.tools)
	if t == nil {
		return noMatch(d.Name(), task, d.tools)
	}
	return t.run(ctx, task)
}

func (d *Docker) run(ctx context.Context, command string) domain.CapabilityResult {
	return resultFromExec(d.engine.Run(ctx, execution.Request{
		Command: command,
		Shell:   true,
		Timeout: dockerTimeout,
	}))
}

func (d *Docker) listContainers(ctx context.Context, _ string) domain.CapabilityResult {
	return d.run(ctx, "docker ps -a")
}

func (d *Docker) startContainer(ctx context.Context, task string) domain.CapabilityResult {
	name := extractArg(task, `(?:start|launch)\s+(?:container\s+)?["']?([a-zA-Z0-9._-]+)["']?`, "")
	if name == "" {
		return domain.Fail("cannot determine container name")
	}
	res := d.run(ctx, "docker start "+shQuote(name))
	if res.Success {
		return domain.Ok("started " + name)
	}
	return res
}

func (d *Docker) stopContainer(ctx context.Context, task string) domain.CapabilityResult {
	name := extractArg(task, `(?:stop|halt)\s+(?:container\s+)?["']?([a-zA-Z0-9._-]+)["']?`, "")
	if name == "" {
		return domain.Fail("cannot determine container name")
	}
	res := d.run(ctx, "docker stop "+shQuote(name))
	if res.Success {
		return domain.Ok("stopped " + name)
	}
	return res
}

func (d *Docker) composeUp(ctx context.Context, _ string) domain.CapabilityResult {
	res := d.run(ctx, "docker-compose up -d")
	if res.Success {
		return domain.Ok("compose project started")
	}
	return res
}
