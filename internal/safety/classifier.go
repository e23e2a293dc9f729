// Package safety vets command strings before execution. Every command the
// oracle produces passes through the classifier before a process is spawned.
package safety

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"lia/internal/domain"
)

// Config configures the risk classifier.
type Config struct {
	// RulesPath points at an optional YAML rules file. Built-in defaults are
	// used when the file is missing or empty.
	RulesPath string
	// DefaultVerdict is applied when no pattern matches: RiskSafe (fail-open)
	// or RiskBlocked (fail-closed, require explicit rules).
	DefaultVerdict domain.RiskLevel
	Logger         *slog.Logger
}

// Classifier classifies commands as SAFE, HIGH_RISK, or BLOCKED by matching
// ordered regex lists, blocked patterns first. First match wins. Safe for
// concurrent use; Reload swaps the rule set atomically.
type Classifier struct {
	rulesPath      string
	defaultVerdict domain.RiskLevel
	logger         *slog.Logger

	mu       sync.RWMutex
	blocked  []compiledRule
	highRisk []compiledRule
	dryRuns  []DryRunRule
}

type compiledRule struct {
	re      *regexp.Regexp
	message string
}

func NewClassifier(cfg Config) (*Classifier, error) {
	if cfg.DefaultVerdict == "" {
		cfg.DefaultVerdict = domain.RiskSafe
	}
	if cfg.DefaultVerdict != domain.RiskSafe && cfg.DefaultVerdict != domain.RiskBlocked {
		return nil, fmt.Errorf("invalid default verdict: %s", cfg.DefaultVerdict)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Classifier{
		rulesPath:      cfg.RulesPath,
		defaultVerdict: cfg.DefaultVerdict,
		logger:         cfg.Logger,
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the rules file and swaps in the compiled rule set.
// Called at construction and by the rules watcher on file change.
func (c *Classifier) Reload() error {
	doc, err := loadRules(c.rulesPath)
	if err != nil {
		return err
	}

	blocked, err := compileRules(doc.Rules.Blocked)
	if err != nil {
		return fmt.Errorf("blocked rules: %w", err)
	}
	highRisk, err := compileRules(doc.Rules.HighRisk)
	if err != nil {
		return fmt.Errorf("high_risk rules: %w", err)
	}

	c.mu.Lock()
	c.blocked = blocked
	c.highRisk = highRisk
	c.dryRuns = doc.Rules.DryRuns
	c.mu.Unlock()

	c.logger.Debug("safety rules loaded",
		"blocked", len(blocked),
		"high_risk", len(highRisk),
		"dry_runs", len(doc.Rules.DryRuns),
	)
	return nil
}

func compileRules(rules []Rule) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(`(?i)` + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", r.Pattern, err)
		}
		compiled = append(compiled, compiledRule{re: re, message: r.Message})
	}
	return compiled, nil
}

// Validate classifies a command string. It is a pure check: it cannot fail
// and never touches the filesystem or process table.
func (c *Classifier) Validate(command string) domain.CommandAssessment {
	command = strings.TrimSpace(command)

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, rule := range c.blocked {
		if rule.re.MatchString(command) {
			c.logger.Warn("safety block", "command", command, "rule", rule.re.String())
			return domain.CommandAssessment{
				Command:        command,
				Level:          domain.RiskBlocked,
				Reason:         fmt.Sprintf("catastrophic command: %s", rule.message),
				AllowExecution: false,
			}
		}
	}

	for _, rule := range c.highRisk {
		if rule.re.MatchString(command) {
			c.logger.Warn("high risk command", "command", command, "rule", rule.re.String())
			return domain.CommandAssessment{
				Command:        command,
				Level:          domain.RiskHigh,
				Reason:         fmt.Sprintf("destructive command: %s", rule.message),
				DryRunCommand:  c.dryRunLocked(command),
				AllowExecution: true,
			}
		}
	}

	if c.defaultVerdict == domain.RiskBlocked {
		return domain.CommandAssessment{
			Command:        command,
			Level:          domain.RiskBlocked,
			Reason:         "no allow rule matched (default-deny policy)",
			AllowExecution: false,
		}
	}

	return domain.CommandAssessment{
		Command:        command,
		Level:          domain.RiskSafe,
		Reason:         "command appears safe",
		DryRunCommand:  c.dryRunLocked(command),
		AllowExecution: true,
	}
}

// DryRun returns the command rewritten with a dry-run flag when its leading
// token(s) appear in the dry-run table and the flag is not already present.
// Returns "" when no rewrite applies.
func (c *Classifier) DryRun(command string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dryRunLocked(command)
}

func (c *Classifier) dryRunLocked(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	for _, dr := range c.dryRuns {
		prefix := strings.Fields(dr.Prefix)
		if len(prefix) == 0 || dr.Flag == "" || len(fields) < len(prefix) {
			continue
		}
		match := true
		for i, tok := range prefix {
			if !strings.EqualFold(fields[i], tok) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		for _, f := range fields {
			if f == dr.Flag {
				return "" // already a dry run
			}
		}
		rewritten := make([]string, 0, len(fields)+1)
		rewritten = append(rewritten, fields[:len(prefix)]...)
		rewritten = append(rewritten, dr.Flag)
		rewritten = append(rewritten, fields[len(prefix):]...)
		return strings.Join(rewritten, " ")
	}
	return ""
}
