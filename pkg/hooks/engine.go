package hooks

import (
	"context"
	"fmt"
)

// ChainResult is the outcome of running one event's hook chain.
type ChainResult struct {
	Outcomes []Outcome
	// Blocked is true when the chain was short-circuited by a blocking
	// outcome (spec §4.4).
	Blocked bool
	// BlockReason is set when Blocked is true.
	BlockReason string
}

// Engine runs the configured HookGroups for an event, in declaration
// order, propagating prompt rewrites forward and short-circuiting on the
// first blocking outcome (spec §4.4).
type Engine struct {
	runner *Runner
}

// NewEngine constructs an Engine backed by the given Runner.
func NewEngine(runner *Runner) *Engine {
	return &Engine{runner: runner}
}

// Run executes groups in order; within each group, hooks run in order.
// A HookSpec whose Kind isn't KindCommand is skipped (spec §3, §4.4).
// A timeout anywhere in the chain aborts the whole chain with an error;
// callers (PromptPipeline, ToolOrchestrator) decide how to downgrade
// that per spec §7.
func (e *Engine) Run(ctx context.Context, event EventName, inv *Invocation, groups []HookGroup) (ChainResult, error) {
	var result ChainResult

	seen := make(map[string]bool)
	for _, group := range groups {
		for _, spec := range group.Hooks {
			if spec.Kind != KindCommand {
				continue
			}

			// A hook merged in from more than one settings layer runs
			// only once per chain, identified by (type, command).
			key := string(spec.Kind) + ":" + spec.Command
			if seen[key] {
				continue
			}
			seen[key] = true

			inv.EventName = event
			payload, err := inv.MarshalJSON()
			if err != nil {
				return result, fmt.Errorf("marshal hook invocation: %w", err)
			}

			outcome, err := e.runner.Run(ctx, spec, payload)
			if err != nil {
				return result, fmt.Errorf("event %s: %w", event, err)
			}

			if outcome.Parsed != nil && outcome.Parsed.Prompt != "" {
				inv.SetPrompt(outcome.Parsed.Prompt)
			}

			result.Outcomes = append(result.Outcomes, outcome)

			if outcome.Blocking() {
				result.Blocked = true
				result.BlockReason = outcome.BlockReason()
				return result, nil
			}
		}
	}

	return result, nil
}
