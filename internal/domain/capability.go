package domain

import "context"

// CapabilityResult is the explicit outcome of one capability task.
type CapabilityResult struct {
	Success bool
	Message string
}

// Ok builds a successful capability result.
func Ok(message string) CapabilityResult {
	return CapabilityResult{Success: true, Message: message}
}

// Fail builds a failed capability result with a short reason and, where
// useful, a remediation hint folded into the message.
func Fail(message string) CapabilityResult {
	return CapabilityResult{Success: false, Message: message}
}

// Capability is a registered tool the orchestrator dispatches plan steps to.
// Implementations must not panic; a panic is caught at the orchestrator
// boundary and converted into a failed step outcome.
type Capability interface {
	Name() string
	Description() string
	Execute(ctx context.Context, task string) CapabilityResult
}
