// Package execution runs external processes asynchronously with timeout,
// cancellation, and optional sandbox wrapping. Every command is vetted by
// the safety classifier before a process is spawned.
package execution

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"context"

	"lia/internal/domain"
	"lia/internal/safety"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxOutput = 65536
	killGrace        = 2 * time.Second
)

// Request describes one process run. Every command carries an explicit
// timeout; Env is merged over the host environment, not replacing it.
type Request struct {
	Command string
	Timeout time.Duration // falls back to the engine default when <= 0
	Dir     string
	Env     map[string]string
	Shell   bool // run via the shell (pipes, redirects); otherwise argv split
}

// Config configures the execution engine.
type Config struct {
	Classifier *safety.Classifier
	Sandbox    *Sandbox
	Shell      string        // defaults to $SHELL, then /bin/sh
	Timeout    time.Duration // default per-command timeout
	MaxOutput  int
	Logger     *slog.Logger
}

// Engine spawns and tracks external processes. Each Run owns its process;
// the active-process registry is the only shared state and is mutex-
// guarded. Safe to call concurrently.
type Engine struct {
	classifier *safety.Classifier
	sandbox    *Sandbox
	shell      string
	timeout    time.Duration
	maxOutput  int
	logger     *slog.Logger

	mu     sync.Mutex
	active map[int]*os.Process
	closed bool
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Classifier == nil {
		return nil, errors.New("execution engine requires a safety classifier")
	}
	if cfg.Shell == "" {
		cfg.Shell = os.Getenv("SHELL")
	}
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = defaultMaxOutput
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		classifier: cfg.Classifier,
		sandbox:    cfg.Sandbox,
		shell:      cfg.Shell,
		timeout:    cfg.Timeout,
		maxOutput:  cfg.MaxOutput,
		logger:     cfg.Logger,
		active:     make(map[int]*os.Process),
	}, nil
}

// Run executes one command. Failures come back as data: safety blocks,
// missing executables, permission errors, timeouts, and non-zero exits all
// produce an ExecutionResult, never an error.
func (e *Engine) Run(ctx context.Context, req Request) domain.ExecutionResult {
	command := strings.TrimSpace(req.Command)
	if command == "" {
		return failure("empty command")
	}

	// Safety gate. Classification happens strictly before any spawn.
	assessment := e.classifier.Validate(command)
	if !assessment.AllowExecution {
		e.logger.Warn("execution refused", "command", command, "reason", assessment.Reason)
		return failure("SAFETY BLOCK: " + assessment.Reason)
	}

	var argv []string
	if req.Shell {
		argv = []string{e.shell, "-c", command}
	} else {
		argv = splitArgs(command)
	}
	if e.sandbox != nil {
		// Wrap is a no-op unless the sandbox is enabled and firejail exists.
		argv = e.sandbox.Wrap(argv)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = mergeEnv(req.Env)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcAttr(cmd)

	start := time.Now()
	if err := e.start(cmd); err != nil {
		switch {
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
			return failure(fmt.Sprintf("executable not found: %s (install it or check PATH)", argv[0]))
		case errors.Is(err, fs.ErrPermission):
			return failure(fmt.Sprintf("permission denied executing %s", argv[0]))
		default:
			return failure(err.Error())
		}
	}
	proc := cmd.Process
	defer e.unregister(proc.Pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-timer.C:
		e.logger.Warn("command timed out", "command", command, "timeout", timeout)
		e.terminate(proc, done)
		timedOut = true
	case <-ctx.Done():
		e.terminate(proc, done)
		waitErr = ctx.Err()
	}

	result := domain.ExecutionResult{
		Stdout:     truncate(stdout.String(), e.maxOutput),
		Stderr:     truncate(stderr.String(), e.maxOutput),
		DurationMS: time.Since(start).Milliseconds(),
		TimedOut:   timedOut,
	}
	switch {
	case timedOut:
		result.ExitCode = -1
		// Keep whatever the process wrote before it was killed.
		if result.Stderr != "" {
			result.Stderr += "\n"
		}
		result.Stderr += fmt.Sprintf("TIMEOUT (%s)", timeout)
	case waitErr == nil:
		result.Success = true
		result.ExitCode = 0
	default:
		result.ExitCode = exitCode(cmd, waitErr)
		if result.Stderr == "" {
			result.Stderr = waitErr.Error()
		}
	}
	return result
}

// start refuses new processes once shutdown has begun. The closed-check,
// spawn, and registration happen under one lock so a racing Shutdown
// either refuses the run or sees its process in the registry snapshot.
func (e *Engine) start(cmd *exec.Cmd) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("engine is shutting down")
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	e.active[cmd.Process.Pid] = cmd.Process
	return nil
}

// terminate stops a process tree: graceful signal first, forceful kill
// after a bounded wait. Drains done so the Wait goroutine always finishes.
func (e *Engine) terminate(proc *os.Process, done <-chan error) {
	_ = terminateTree(proc)
	select {
	case <-done:
		return
	case <-time.After(killGrace):
	}
	_ = killTree(proc)
	<-done
}

func (e *Engine) unregister(pid int) {
	e.mu.Lock()
	delete(e.active, pid)
	e.mu.Unlock()
}

// ActiveCount reports how many spawned processes are still running.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Shutdown terminates every tracked process: graceful terminate, then a
// forceful kill after a bounded wait. New Run calls fail once it begins.
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.Lock()
	e.closed = true
	procs := make([]*os.Process, 0, len(e.active))
	for _, p := range e.active {
		procs = append(procs, p)
	}
	e.mu.Unlock()

	if len(procs) > 0 {
		e.logger.Info("terminating active processes", "count", len(procs))
	}
	for _, p := range procs {
		_ = terminateTree(p)
	}

	deadline := time.NewTimer(killGrace)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for e.ActiveCount() > 0 {
		select {
		case <-ticker.C:
		case <-deadline.C:
			for _, p := range procs {
				_ = killTree(p)
			}
			return
		case <-ctx.Done():
			for _, p := range procs {
				_ = killTree(p)
			}
			return
		}
	}
}

// splitArgs splits a command string into argv, honoring single- and
// double-quoted arguments. No escape processing; commands needing more
// shell syntax should set Request.Shell.
func splitArgs(command string) []string {
	var args []string
	var cur strings.Builder
	var quote rune
	inToken := false
	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n':
			if inToken {
				args = append(args, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if inToken {
		args = append(args, cur.String())
	}
	return args
}

func mergeEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (output truncated)"
}

func failure(reason string) domain.ExecutionResult {
	return domain.ExecutionResult{
		Success:  false,
		Stderr:   reason,
		ExitCode: -1,
	}
}
