// Package capability holds the executable surface of the assistant. Each
// capability owns a small table of tools, matches tasks to tools by
// keyword, and shells out through the execution engine where a real
// process is needed.
package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"lia/internal/domain"
)

// Registry holds all available capabilities and dispatches tasks to them.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]domain.Capability
	logger       *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		capabilities: make(map[string]domain.Capability),
		logger:       logger,
	}
}

// Register adds a capability. Names must be non-empty and unique; a
// violation here is a programming error, surfaced at startup.
func (r *Registry) Register(c domain.Capability) error {
	name := c.Name()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("capability with empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.capabilities[name]; exists {
		return fmt.Errorf("capability %q already registered", name)
	}
	r.capabilities[name] = c
	r.logger.Debug("registered capability", "name", name)
	return nil
}

func (r *Registry) Get(name string) domain.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capabilities[name]
}

// Execute dispatches a task to the named capability. Unknown names come
// back as a failed result, not an error, so a bad plan step never stops
// the run.
func (r *Registry) Execute(ctx context.Context, name, task string) domain.CapabilityResult {
	c := r.Get(name)
	if c == nil {
		return domain.Fail(fmt.Sprintf("unknown capability: %s (available: %s)", name, strings.Join(r.Names(), ", ")))
	}
	return c.Execute(ctx, task)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.capabilities))
	for n := range r.capabilities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Roster returns one line per capability, used to build the planning
// prompt.
func (r *Registry) Roster() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.capabilities))
	for n := range r.capabilities {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "- %s: %s\n", n, r.capabilities[n].Description())
	}
	return b.String()
}
