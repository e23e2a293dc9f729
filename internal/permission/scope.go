// Package permission resolves filesystem and capability access decisions
// against a whitelist, a fixed OS blacklist, and per-capability operation
// rights. Classification always happens on the resolved real path so
// symlink and ".." traversal cannot escape the scope.
package permission

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"lia/internal/domain"
)

// Config configures the permission scope.
type Config struct {
	AllowedPaths []string
	// Capabilities maps a capability name to its allowed operations.
	Capabilities map[string][]domain.Operation
	// Connections are named third-party integrations with a kill switch.
	Connections map[string]bool
	Logger      *slog.Logger
}

// Scope is the permission/ACL layer. Decisions are deterministic for a
// fixed (path, operation, active scope) triple and cached; any mutation of
// the whitelist invalidates the cache. Safe for concurrent use.
type Scope struct {
	logger *slog.Logger

	mu          sync.RWMutex
	allowed     []string // resolved absolute prefixes, innermost scope
	stack       [][]string
	blocked     []string // fixed per OS, immutable
	rights      map[string]map[domain.Operation]bool
	connections map[string]bool
	cache       map[string]bool
}

func NewScope(cfg Config) *Scope {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Scope{
		logger:      cfg.Logger,
		rights:      make(map[string]map[domain.Operation]bool),
		connections: make(map[string]bool),
		cache:       make(map[string]bool),
	}
	// Canonicalize the blacklist so symlinked system dirs (macOS /etc ->
	// /private/etc) still match resolved paths.
	for _, b := range systemBlockedPaths() {
		if resolved, err := resolveReal(b); err == nil {
			s.blocked = append(s.blocked, resolved)
		} else {
			s.blocked = append(s.blocked, b)
		}
	}
	for _, p := range cfg.AllowedPaths {
		if resolved, err := resolveReal(p); err == nil {
			s.allowed = append(s.allowed, resolved)
		} else {
			s.logger.Warn("skipping unresolvable allowed path", "path", p, "err", err)
		}
	}
	for name, ops := range cfg.Capabilities {
		set := make(map[domain.Operation]bool, len(ops))
		for _, op := range ops {
			set[op] = true
		}
		s.rights[name] = set
	}
	for name, enabled := range cfg.Connections {
		s.connections[name] = enabled
	}
	s.logger.Info("permission scope ready",
		"allowed_paths", len(s.allowed),
		"blocked_paths", len(s.blocked),
	)
	return s
}

// systemBlockedPaths returns the OS paths that are never accessible,
// regardless of the whitelist. Hardcoded, not configurable.
func systemBlockedPaths() []string {
	if runtime.GOOS == "windows" {
		return []string{
			`C:\Windows`,
			`C:\Program Files`,
			`C:\Program Files (x86)`,
		}
	}
	return []string{
		"/etc", "/boot", "/root", "/var/log", "/usr/sbin",
		"/proc", "/sys", "/dev",
	}
}

// Resolve expands "~", makes the path absolute, and resolves symlinks and
// ".." segments to the canonical real path. For paths that do not exist
// yet, the longest existing ancestor is resolved and the remainder joined.
func (s *Scope) Resolve(path string) (string, error) {
	return resolveReal(path)
}

func resolveReal(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	// EvalSymlinks fails on non-existent targets; resolve the longest
	// existing ancestor and re-attach the rest.
	remainder := ""
	probe := abs
	for {
		resolved, err := filepath.EvalSymlinks(probe)
		if err == nil {
			return filepath.Clean(filepath.Join(resolved, remainder)), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return "", err
		}
		remainder = filepath.Join(filepath.Base(probe), remainder)
		probe = parent
	}
}

// IsAllowed reports whether the resolved path may be touched with the given
// operation. Blacklisted system prefixes always deny; otherwise at least
// one whitelist prefix must cover the path. Unresolvable paths fail closed.
func (s *Scope) IsAllowed(path string, op domain.Operation) bool {
	resolved, err := resolveReal(path)
	if err != nil {
		s.logger.Warn("permission denied: unresolvable path", "path", path, "err", err)
		return false
	}

	key := resolved + "\x00" + string(op)

	s.mu.RLock()
	if cached, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return cached
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache[key]; ok {
		return cached
	}

	allowed := s.decide(resolved)
	s.cache[key] = allowed
	if !allowed {
		s.logger.Warn("permission denied", "path", resolved, "op", op,
			"hint", "add the path to permissions.allowedPaths")
	}
	return allowed
}

func (s *Scope) decide(resolved string) bool {
	for _, b := range s.blocked {
		if hasPathPrefix(resolved, b) {
			return false
		}
	}
	for _, a := range s.allowed {
		if hasPathPrefix(resolved, a) {
			return true
		}
	}
	return false
}

func hasPathPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// CheckCapability reports whether a named capability holds an operation
// right. Unknown capabilities hold no rights.
func (s *Scope) CheckCapability(name string, op domain.Operation) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rights[name][op] {
		return true
	}
	s.logger.Warn("capability operation denied", "capability", name, "op", op)
	return false
}

// AddPath whitelists a path at runtime and invalidates the decision cache.
func (s *Scope) AddPath(path string) error {
	resolved, err := resolveReal(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.allowed {
		if a == resolved {
			return nil
		}
	}
	s.allowed = append(s.allowed, resolved)
	s.cache = make(map[string]bool)
	s.logger.Info("path whitelisted", "path", resolved)
	return nil
}

// With runs fn under a temporary scope that narrows the whitelist to the
// given paths. The previous scope is restored when fn returns, including
// when it panics.
func (s *Scope) With(paths []string, fn func() error) error {
	s.push(paths)
	defer s.pop()
	return fn()
}

func (s *Scope) push(paths []string) {
	resolved := make([]string, 0, len(paths))
	for _, p := range paths {
		if r, err := resolveReal(p); err == nil {
			resolved = append(resolved, r)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = append(s.stack, s.allowed)
	s.allowed = resolved
	s.cache = make(map[string]bool)
}

func (s *Scope) pop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return
	}
	s.allowed = s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	s.cache = make(map[string]bool)
}

// ConnectionActive reports whether a named third-party connection is on.
func (s *Scope) ConnectionActive(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connections[name]
}

// SetConnection toggles a named connection at runtime.
func (s *Scope) SetConnection(name string, enabled bool) {
	s.mu.Lock()
	s.connections[name] = enabled
	s.mu.Unlock()
	s.logger.Info("connection toggled", "connection", name, "enabled", enabled)
}

// Status returns a snapshot of the current scope for display.
func (s *Scope) Status() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rights := make(map[string][]string, len(s.rights))
	for name, ops := range s.rights {
		for op := range ops {
			rights[name] = append(rights[name], string(op))
		}
	}
	conns := make(map[string]bool, len(s.connections))
	for k, v := range s.connections {
		conns[k] = v
	}
	return map[string]any{
		"allowed_paths": append([]string(nil), s.allowed...),
		"blocked_paths": append([]string(nil), s.blocked...),
		"capabilities":  rights,
		"connections":   conns,
	}
}
