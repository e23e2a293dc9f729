package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for LIA.
type Config struct {
	General     GeneralConfig     `json:"general"`
	Oracle      OracleConfig      `json:"oracle"`
	Embedding   EmbeddingConfig   `json:"embedding"`
	Safety      SafetyConfig      `json:"safety"`
	Permissions PermissionsConfig `json:"permissions"`
	Execution   ExecutionConfig   `json:"execution"`
	Feedback    FeedbackConfig    `json:"feedback"`
	Audit       AuditConfig       `json:"audit"`
	Workflows   WorkflowsConfig   `json:"workflows"`
}

type GeneralConfig struct {
	Workspace string `json:"workspace"`
	LogLevel  string `json:"logLevel"`
}

// OracleConfig configures the planning oracle (an LLM endpoint).
type OracleConfig struct {
	Provider string `json:"provider"` // "ollama" | "openai"
	APIBase  string `json:"apiBase,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Model    string `json:"model,omitempty"`
}

// EmbeddingConfig configures the optional embedding collaborator used for
// similarity retrieval. When disabled, feedback search falls back to
// keyword matching.
type EmbeddingConfig struct {
	Enabled bool   `json:"enabled"`
	APIBase string `json:"apiBase,omitempty"`
	Model   string `json:"model,omitempty"`
}

type SafetyConfig struct {
	RulesPath      string `json:"rulesPath,omitempty"` // YAML rules file, defaults used when missing
	DefaultVerdict string `json:"defaultVerdict"`      // "safe" | "block" for unmatched commands
	WatchRules     bool   `json:"watchRules"`          // hot-reload the rules file on change
}

type PermissionsConfig struct {
	AllowedPaths []string        `json:"allowedPaths"`
	Capabilities map[string][]string `json:"capabilities,omitempty"` // name -> operations
	Connections  map[string]bool `json:"connections,omitempty"`
}

type ExecutionConfig struct {
	TimeoutSeconds int    `json:"timeoutSeconds"`
	Shell          string `json:"shell,omitempty"`
	Sandbox        bool   `json:"sandbox"`
	MaxOutputBytes int    `json:"maxOutputBytes"`
}

type FeedbackConfig struct {
	DBPath     string `json:"dbPath"`
	VectorPath string `json:"vectorPath"`
}

type AuditConfig struct {
	DBPath string `json:"dbPath"`
}

type WorkflowsConfig struct {
	Dir string `json:"dir"`
}

// DefaultConfigDir returns the default config directory (~/.lia).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lia"
	}
	return filepath.Join(home, ".lia")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Workspace = expandPath(cfg.General.Workspace)
	cfg.Safety.RulesPath = expandPath(cfg.Safety.RulesPath)
	cfg.Feedback.DBPath = expandPath(cfg.Feedback.DBPath)
	cfg.Feedback.VectorPath = expandPath(cfg.Feedback.VectorPath)
	cfg.Audit.DBPath = expandPath(cfg.Audit.DBPath)
	cfg.Workflows.Dir = expandPath(cfg.Workflows.Dir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.Oracle.Provider {
	case "", "ollama", "openai":
	default:
		errs = append(errs, fmt.Sprintf("oracle.provider %q is not supported", cfg.Oracle.Provider))
	}
	switch cfg.Safety.DefaultVerdict {
	case "", "safe", "block":
	default:
		errs = append(errs, "safety.defaultVerdict must be \"safe\" or \"block\"")
	}
	if cfg.Execution.TimeoutSeconds < 1 || cfg.Execution.TimeoutSeconds > 3600 {
		errs = append(errs, "execution.timeoutSeconds must be between 1 and 3600")
	}
	for name, ops := range cfg.Permissions.Capabilities {
		for _, op := range ops {
			switch op {
			case "read", "write", "execute", "delete":
			default:
				errs = append(errs, fmt.Sprintf("permissions.capabilities.%s: unknown operation %q", name, op))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
