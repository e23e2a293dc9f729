package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"lia/internal/execution"
)

const (
	contextCmdTimeout = 5 * time.Second
	cwdListingCap     = 15
)

var (
	performanceKeywords = []string{
		"slow", "lag", "freeze", "memory", "ram", "cpu", "disk", "space",
		"performance", "speed", "hanging", "kill process", "top", "resource",
	}
	gitKeywords = []string{
		"git", "commit", "push", "pull", "branch", "merge", "pr", "diff", "stash",
	}
	networkKeywords = []string{
		"network", "internet", "ping", "dns", "connect", "wifi", "port", "curl",
	}
	dockerKeywords = []string{"docker", "container", "compose", "image"}
)

// ContextEngine gathers live system state for the planning prompt, so the
// oracle works from real filenames and real machine state instead of
// guessing. OS and working-directory context are always included; the
// rest is gated on query keywords.
type ContextEngine struct {
	engine *execution.Engine
	logger *slog.Logger
}

func NewContextEngine(engine *execution.Engine, logger *slog.Logger) *ContextEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextEngine{engine: engine, logger: logger}
}

// Gather returns a compact context block for the query.
func (c *ContextEngine) Gather(ctx context.Context, query string) string {
	parts := []string{c.osContext(), c.cwdContext()}

	if matchesAny(query, performanceKeywords) {
		parts = append(parts, c.resourceContext(ctx))
	}
	if matchesAny(query, gitKeywords) {
		parts = append(parts, c.gitContext(ctx))
	}
	if matchesAny(query, networkKeywords) {
		parts = append(parts, c.networkContext())
	}
	if matchesAny(query, dockerKeywords) {
		parts = append(parts, c.dockerContext(ctx))
	}

	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

func matchesAny(query string, keywords []string) bool {
	lower := strings.ToLower(query)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (c *ContextEngine) osContext() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("[OS] %s/%s on %s", runtime.GOOS, runtime.GOARCH, hostname)
}

func (c *ContextEngine) cwdContext() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	entries, err := os.ReadDir(cwd)
	if err != nil {
		return "[CWD] " + cwd
	}

	var dirs, files []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		} else {
			files = append(files, e.Name())
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)
	if len(dirs) > cwdListingCap {
		dirs = dirs[:cwdListingCap]
	}
	if len(files) > cwdListingCap {
		files = files[:cwdListingCap]
	}
	return fmt.Sprintf("[CWD] %s\n[Dirs] %s\n[Files] %s",
		cwd, joinOrNone(dirs), joinOrNone(files))
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func (c *ContextEngine) resourceContext(ctx context.Context) string {
	if c.engine == nil {
		return ""
	}
	res := c.engine.Run(ctx, execution.Request{
		Command: "uptime && free -m 2>/dev/null | head -n 2",
		Shell:   true,
		Timeout: contextCmdTimeout,
	})
	if !res.Success {
		return ""
	}
	return "[System]\n" + strings.TrimSpace(res.Stdout)
}

func (c *ContextEngine) gitContext(ctx context.Context) string {
	if c.engine == nil {
		return ""
	}
	branch := c.engine.Run(ctx, execution.Request{
		Command: "git branch --show-current", Shell: true, Timeout: contextCmdTimeout,
	})
	if !branch.Success {
		return "[Git] not a git repository"
	}
	status := c.engine.Run(ctx, execution.Request{
		Command: "git status --short", Shell: true, Timeout: contextCmdTimeout,
	})
	changed := 0
	if status.Success {
		if s := strings.TrimSpace(status.Stdout); s != "" {
			changed = len(strings.Split(s, "\n"))
		}
	}
	return fmt.Sprintf("[Git] branch: %s | %d changed files",
		strings.TrimSpace(branch.Stdout), changed)
}

func (c *ContextEngine) networkContext() string {
	conn, err := net.DialTimeout("tcp", "8.8.8.8:53", 2*time.Second)
	if err != nil {
		return "[Network] internet: disconnected"
	}
	conn.Close()
	return "[Network] internet: connected"
}

func (c *ContextEngine) dockerContext(ctx context.Context) string {
	if c.engine == nil {
		return ""
	}
	res := c.engine.Run(ctx, execution.Request{
		Command: `docker ps --format '{{.Names}}: {{.Status}}'`,
		Shell:   true,
		Timeout: contextCmdTimeout,
	})
	if !res.Success || strings.TrimSpace(res.Stdout) == "" {
		return "[Docker] no containers running (or docker not installed)"
	}
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) > 5 {
		lines = lines[:5]
	}
	return "[Docker] running: " + strings.Join(lines, ", ")
}
