package config

import "path/filepath"

func Defaults() *Config {
	dir := DefaultConfigDir()
	return &Config{
		General: GeneralConfig{
			Workspace: "~/.lia/workspace",
			LogLevel:  "info",
		},
		Oracle: OracleConfig{
			Provider: "ollama",
			APIBase:  "http://localhost:11434",
			Model:    "llama3.1:8b",
		},
		Embedding: EmbeddingConfig{
			Enabled: false,
			APIBase: "http://localhost:11434",
			Model:   "nomic-embed-text",
		},
		Safety: SafetyConfig{
			RulesPath:      filepath.Join(dir, "safety.yaml"),
			DefaultVerdict: "safe",
			WatchRules:     true,
		},
		Permissions: PermissionsConfig{
			AllowedPaths: []string{"~/Documents", "~/Downloads", "~/Desktop", "."},
			Capabilities: map[string][]string{
				"file":    {"read", "write", "execute"},
				"sys":     {"read", "execute"},
				"git":     {"read", "write", "execute"},
				"net":     {"execute"},
				"docker":  {"execute"},
				"package": {"execute"},
			},
			Connections: map[string]bool{
				"gmail":      false,
				"calendar":   false,
				"custom_api": false,
			},
		},
		Execution: ExecutionConfig{
			TimeoutSeconds: 30,
			Sandbox:        false,
			MaxOutputBytes: 65536,
		},
		Feedback: FeedbackConfig{
			DBPath:     filepath.Join(dir, "feedback.db"),
			VectorPath: filepath.Join(dir, "vectors"),
		},
		Audit: AuditConfig{
			DBPath: filepath.Join(dir, "audit.db"),
		},
		Workflows: WorkflowsConfig{
			Dir: filepath.Join(dir, "workflows"),
		},
	}
}
