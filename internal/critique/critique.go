// Package critique implements the outline-quality validation pass
// referenced by §4.2 ("critique templates live under a separate root")
// and driven by §4.13 step 2d: a dedicated prompt asks the model to list
// problems with a draft outline; an "ISSUES:"-prefixed response signals
// that regeneration is needed.
package critique

import (
	"context"
	"fmt"
	"strings"

	"github.com/narrativeforge/loomwright/internal/executor"
	"github.com/narrativeforge/loomwright/internal/provider"
)

const issuesPrefix = "ISSUES:"

// Checker runs the critique prompt against its own prompt registry root,
// separate from the main generation prompts.
type Checker struct {
	Exec  *executor.Executor
	Model provider.ModelConfig
}

// New builds a Checker. exec's Prompts registry should be rooted at the
// critique template directory, distinct from the generation registry.
func New(exec *executor.Executor, model provider.ModelConfig) *Checker {
	return &Checker{Exec: exec, Model: model}
}

// Result is the outcome of one critique pass.
type Result struct {
	HasIssues bool
	Issues    string
}

// Check asks the model to critique a draft outline. A response beginning
// with "ISSUES:" (after trimming whitespace) signals problems that the
// caller should feed back into a regeneration prompt; anything else is
// treated as a clean bill of health.
func (c *Checker) Check(ctx context.Context, draftOutline string) (Result, error) {
	res, err := c.Exec.Execute(ctx, executor.Request{
		PromptID:    "critique/outline",
		Variables:   map[string]string{"outline": draftOutline},
		ModelConfig: c.Model,
	})
	if err != nil {
		return Result{}, fmt.Errorf("critique: check outline: %w", err)
	}

	trimmed := strings.TrimSpace(res.Content)
	if strings.HasPrefix(trimmed, issuesPrefix) {
		return Result{HasIssues: true, Issues: strings.TrimSpace(strings.TrimPrefix(trimmed, issuesPrefix))}, nil
	}
	return Result{HasIssues: false}, nil
}
