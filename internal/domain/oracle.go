package domain

import "context"

// Planner is the external planning oracle, an LLM endpoint treated as a
// black box: it receives a system prompt plus the user query and returns
// raw text that should contain a JSON plan.
type Planner interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Healthy(ctx context.Context) error
}
