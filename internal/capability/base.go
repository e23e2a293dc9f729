package capability

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"lia/internal/domain"
)

// tool is one entry in a capability's dispatch table.
type tool struct {
	name     string
	desc     string
	keywords []string
	run      func(ctx context.Context, task string) domain.CapabilityResult
}

// matchTool scores each tool by how many of its keywords appear in the
// task and returns the best match. A nil return means nothing matched.
func matchTool(task string, tools []tool) *tool {
	lower := strings.ToLower(task)
	var best *tool
	bestScore := 0
	for i := range tools {
		score := 0
		for _, kw := range tools[i].keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = &tools[i]
		}
	}
	return best
}

// noMatch builds the failure result for a task no tool recognizes.
func noMatch(capName, task string, tools []tool) domain.CapabilityResult {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.name
	}
	return domain.Fail(fmt.Sprintf("%s: no tool matches %q (tools: %s)", capName, task, strings.Join(names, ", ")))
}

// extractArg pulls the first submatch of the pattern out of the task, or
// returns the fallback.
func extractArg(task, pattern, fallback string) string {
	re := regexp.MustCompile("(?i)" + pattern)
	if m := re.FindStringSubmatch(task); len(m) > 1 {
		return strings.Trim(strings.TrimSpace(m[1]), `"'`)
	}
	return fallback
}

// shQuote single-quotes a string for safe interpolation into a shell
// command line.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// resultFromExec maps an execution result onto the capability boundary.
func resultFromExec(res domain.ExecutionResult) domain.CapabilityResult {
	if res.Success {
		out := strings.TrimSpace(res.Stdout)
		if out == "" {
			out = "done"
		}
		return domain.Ok(out)
	}
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("command failed with exit code %d", res.ExitCode)
	}
	return domain.Fail(msg)
}
