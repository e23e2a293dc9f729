package domain

// RiskLevel classifies how dangerous a command string is.
type RiskLevel string

const (
	RiskSafe    RiskLevel = "SAFE"
	RiskHigh    RiskLevel = "HIGH_RISK"
	RiskBlocked RiskLevel = "BLOCKED"
)

// CommandAssessment is the verdict produced for one command string before
// any process is spawned. A BLOCKED assessment must never reach the spawner.
type CommandAssessment struct {
	Command        string
	Level          RiskLevel
	Reason         string
	DryRunCommand  string // rewritten command with a dry-run flag, "" when unsupported
	AllowExecution bool
}
