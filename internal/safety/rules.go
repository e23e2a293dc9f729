package safety

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Rule is one regex rule in the safety rules file. Matching is
// case-insensitive against the full command string.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Message string `yaml:"message"`
}

// DryRunRule maps a command prefix (possibly multi-word, e.g. "git push")
// to the flag that turns it into a dry run.
type DryRunRule struct {
	Prefix string `yaml:"prefix"`
	Flag   string `yaml:"flag"`
}

// RulesFile is the YAML schema root of the safety rules file.
type RulesFile struct {
	Rules struct {
		Blocked  []Rule       `yaml:"blocked"`
		HighRisk []Rule       `yaml:"high_risk"`
		DryRuns  []DryRunRule `yaml:"dry_runs"`
	} `yaml:"rules"`
}

func loadRules(path string) (RulesFile, error) {
	var doc RulesFile
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return RulesFile{}, err
			}
		}
	}
	// Missing file or missing sections fall back to the built-in defaults.
	if len(doc.Rules.Blocked) == 0 {
		doc.Rules.Blocked = defaultBlocked()
	}
	if len(doc.Rules.HighRisk) == 0 {
		doc.Rules.HighRisk = defaultHighRisk()
	}
	if len(doc.Rules.DryRuns) == 0 {
		doc.Rules.DryRuns = defaultDryRuns()
	}
	return doc, nil
}

// SaveRules writes a rules file, used by `lia init` to seed the defaults.
func SaveRules(path string, doc RulesFile) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultRules returns the built-in rule set.
func DefaultRules() RulesFile {
	var doc RulesFile
	doc.Rules.Blocked = defaultBlocked()
	doc.Rules.HighRisk = defaultHighRisk()
	doc.Rules.DryRuns = defaultDryRuns()
	return doc
}

// Catastrophic, irreversible operations. Never executed.
func defaultBlocked() []Rule {
	return []Rule{
		{Pattern: `rm\s+-rf\s+/\s*$`, Message: "deleting the root directory"},
		{Pattern: `rm\s+-rf\s+/\*`, Message: "deleting everything under root"},
		{Pattern: `rm\s+-rf\s+~\s*$`, Message: "deleting the home directory"},
		{Pattern: `rm\s+-rf\s+\.\s*$`, Message: "deleting the current directory"},
		{Pattern: `del\s+/s\s+/q\s+C:\\`, Message: "recursive delete of the system drive"},
		{Pattern: `format\s+[A-Z]:`, Message: "formatting a drive"},
		{Pattern: `mkfs\.`, Message: "formatting a filesystem"},
		{Pattern: `dd\s+if=.*of=/dev/sd`, Message: "raw write to a disk device"},
		{Pattern: `>\s*/dev/sda`, Message: "redirect to a raw disk"},
		{Pattern: `chmod\s+-R\s+777\s+/`, Message: "world-writable permissions from root"},
		{Pattern: `chown\s+-R\s+.*\s+/\s*$`, Message: "recursive ownership change from root"},
		{Pattern: `:\(\)\{ :\|:& \};:`, Message: "fork bomb"},
	}
}

// Destructive but sometimes legitimate. Allowed, flagged for confirmation.
func defaultHighRisk() []Rule {
	return []Rule{
		{Pattern: `rm\s+-rf`, Message: "recursive force delete"},
		{Pattern: `rm\s+-r`, Message: "recursive delete"},
		{Pattern: `rmdir\s+/s`, Message: "recursive delete"},
		{Pattern: `sudo\s+rm`, Message: "privileged delete"},
		{Pattern: `kill\s+-9`, Message: "force kill"},
		{Pattern: `pkill`, Message: "process kill by name"},
		{Pattern: `shutdown`, Message: "system shutdown"},
		{Pattern: `reboot`, Message: "system reboot"},
		{Pattern: `systemctl\s+stop`, Message: "stopping a service"},
		{Pattern: `iptables\s+-F`, Message: "flushing firewall rules"},
		{Pattern: `docker\s+system\s+prune`, Message: "docker cleanup"},
		{Pattern: `git\s+push\s+--force`, Message: "force push"},
		{Pattern: `git\s+reset\s+--hard`, Message: "hard reset"},
		{Pattern: `DROP\s+TABLE`, Message: "dropping a table"},
		{Pattern: `DELETE\s+FROM`, Message: "SQL delete"},
		{Pattern: `TRUNCATE`, Message: "SQL truncate"},
		{Pattern: `pip\s+uninstall`, Message: "package removal"},
		{Pattern: `npm\s+uninstall\s+-g`, Message: "global package removal"},
	}
}

func defaultDryRuns() []DryRunRule {
	return []DryRunRule{
		{Prefix: "git push", Flag: "--dry-run"},
		{Prefix: "git clean", Flag: "--dry-run"},
		{Prefix: "docker-compose up", Flag: "--no-start"},
		{Prefix: "rsync", Flag: "--dry-run"},
		{Prefix: "apt", Flag: "--simulate"},
		{Prefix: "apt-get", Flag: "--simulate"},
		{Prefix: "dnf", Flag: "--assumeno"},
		{Prefix: "pip", Flag: "--dry-run"},
	}
}
