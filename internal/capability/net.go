package capability

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sort"
	"strings"
	"time"

	"lia/internal/domain"
	"lia/internal/execution"
	"lia/internal/permission"
)

const (
	netTimeout      = 15 * time.Second
	portDialTimeout = 500 * time.Millisecond
)

// commonPorts is the fixed scan list for the fallback port check.
var commonPorts = map[int]string{
	22: "SSH", 80: "HTTP", 443: "HTTPS", 3000: "Dev",
	3306: "MySQL", 5432: "PostgreSQL", 5000: "Flask",
	8000: "Django", 8080: "Proxy", 8443: "Alt-HTTPS",
	27017: "MongoDB", 6379: "Redis", 9200: "Elasticsearch",
}

// Net provides connectivity diagnostics. Ping shells out; DNS, the
// connectivity probe, and the port check use the dialer directly.
type Net struct {
	engine *execution.Engine
	scope  *permission.Scope
	logger *slog.Logger
	tools  []tool
}

type NetConfig struct {
	Engine *execution.Engine
	Scope  *permission.Scope
	Logger *slog.Logger
}

func NewNet(cfg NetConfig) *Net {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	n := &Net{engine: cfg.Engine, scope: cfg.Scope, logger: cfg.Logger}
	n.tools = []tool{
		{name: "ping_host", desc: "pings a host",
			keywords: []string{"ping"},
			run:      n.pingHost},
		{name: "check_ports", desc: "checks common ports on a target",
			keywords: []string{"port", "scan", "nmap"},
			run:      n.checkPorts},
		{name: "check_connectivity", desc: "quick internet check",
			keywords: []string{"internet", "online", "connected", "connectivity"},
			run:      n.checkConnectivity},
		{name: "dns_lookup", desc: "resolves a hostname to an IP",
			keywords: []string{"dns", "resolve", "lookup", "ip of"},
			run:      n.dnsLookup},
	}
	return n
}

func (n *Net) Name() string { return "net" }

func (n *Net) Description() string {
	return "ping, DNS lookup, connectivity check, common-port check"
}

func (n *Net) Execute(ctx context.Context, task string) domain.CapabilityResult {
	n.logger.Info("net capability executing", "task", task)
	t := matchTool(task, n.tools)
	if t == nil {
		return noMatch(n.Name(), task, n.tools)
	}
	return t.run(ctx, task)
}

func (n *Net) pingHost(ctx context.Context, task string) domain.CapabilityResult {
	host := extractArg(task, `ping\s+(\S+)`, "google.com")
	countFlag := "-c"
	if runtime.GOOS == "windows" {
		countFlag = "-n"
	}
	res := n.engine.Run(ctx, execution.Request{
		Command: fmt.Sprintf("ping %s 4 %s", countFlag, shQuote(host)),
		Shell:   true,
		Timeout: netTimeout,
	})
	if res.TimedOut {
		return domain.Fail(fmt.Sprintf("ping to %s timed out", host))
	}
	if !res.Success {
		return domain.Fail(fmt.Sprintf("cannot reach %s: %s", host, strings.TrimSpace(res.Stderr)))
	}
	return domain.Ok(fmt.Sprintf("%s\n(%dms total)", strings.TrimSpace(res.Stdout), res.DurationMS))
}

func (n *Net) checkPorts(ctx context.Context, task string) domain.CapabilityResult {
	target := extractArg(task, `(?:scan|ports?\s+(?:on|for)?)\s+(\S+)`, "localhost")

	ports := make([]int, 0, len(commonPorts))
	for p := range commonPorts {
		ports = append(ports, p)
	}
	sort.Ints(ports)

	var dialer net.Dialer
	var open []string
	for _, port := range ports {
		if ctx.Err() != nil {
			return domain.Fail("port check cancelled")
		}
		dialCtx, cancel := context.WithTimeout(ctx, portDialTimeout)
		conn, err := dialer.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", target, port))
		cancel()
		if err != nil {
			continue
		}
		conn.Close()
		open = append(open, fmt.Sprintf("  %-6d %s", port, commonPorts[port]))
	}

	if len(open) == 0 {
		return domain.Ok(fmt.Sprintf("no common ports open on %s", target))
	}
	return domain.Ok(fmt.Sprintf("open ports on %s:\n%s", target, strings.Join(open, "\n")))
}

func (n *Net) checkConnectivity(ctx context.Context, _ string) domain.CapabilityResult {
	var dialer net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	conn, err := dialer.DialContext(dialCtx, "tcp", "8.8.8.8:53")
	if err != nil {
		return domain.Fail("internet: disconnected (check your network connection or firewall)")
	}
	conn.Close()
	return domain.Ok("internet: connected")
}

func (n *Net) dnsLookup(ctx context.Context, task string) domain.CapabilityResult {
	hostname := extractArg(task, `(?:dns|resolve|lookup|ip\s+of)\s+(\S+)`, "google.com")
	addrs, err := net.DefaultResolver.LookupHost(ctx, hostname)
	if err != nil || len(addrs) == 0 {
		return domain.Fail("cannot resolve: " + hostname)
	}
	return domain.Ok(fmt.Sprintf("%s -> %s", hostname, addrs[0]))
}
