package execution

import (
	"log/slog"
	"os/exec"
)

// Sandbox wraps a command with a firejail prefix that restricts filesystem
// and network access. When firejail is not installed the wrap is a no-op.
type Sandbox struct {
	enabled   bool
	available bool
	logger    *slog.Logger
}

func NewSandbox(enabled bool, logger *slog.Logger) *Sandbox {
	if logger == nil {
		logger = slog.Default()
	}
	_, err := exec.LookPath("firejail")
	s := &Sandbox{
		enabled:   enabled,
		available: err == nil,
		logger:    logger,
	}
	if enabled && !s.available {
		logger.Warn("sandbox enabled but firejail is not installed; commands run unwrapped")
	}
	return s
}

// Active reports whether wrapping will actually happen.
func (s *Sandbox) Active() bool {
	return s != nil && s.enabled && s.available
}

func (s *Sandbox) Wrap(argv []string) []string {
	if !s.Active() {
		return argv
	}
	s.logger.Debug("sandboxing command", "argv", argv)
	return append([]string{"firejail", "--quiet", "--noprofile"}, argv...)
}
