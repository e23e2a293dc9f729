package domain

// ExecutionResult is the outcome of one process run. Failures are data,
// never errors: a non-zero exit is a completed run with Success=false.
type ExecutionResult struct {
	Success    bool
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMS int64
	TimedOut   bool
}
