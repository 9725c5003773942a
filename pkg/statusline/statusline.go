// Package statusline runs the optional status-line command configured
// in settings.json and extracts its displayed text.
package statusline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/docker/agentcore/pkg/hooks"
)

// Runner is a specialization of hooks.Runner invoked with a synthetic
// invocation whose event name is "statusLine" (spec §4.7).
type Runner struct {
	runner *hooks.Runner
}

// New constructs a status-line Runner for the given hook runner.
func New(runner *hooks.Runner) *Runner {
	return &Runner{runner: runner}
}

// ErrSuppressed is returned when the configured command exited non-zero;
// the caller should suppress the status line and log the warning already
// emitted here (spec §4.7).
var ErrSuppressed = errors.New("status line suppressed: command exited non-zero")

// Run invokes cfg and returns the text to display: parsed.feedback if
// present and non-empty, else trimmed stdout. A non-zero exit returns
// ErrSuppressed alongside the empty string.
func (r *Runner) Run(ctx context.Context, cfg hooks.StatusLineConfig, projectDir string) (string, error) {
	inv := &hooks.Invocation{
		EventName: hooks.EventStatusLine,
		Cwd:       projectDir,
	}
	payload, err := inv.MarshalJSON()
	if err != nil {
		return "", err
	}

	// cfg.Timeout() applies the status-line default (2s), distinct from
	// HookSpec's own 5s default; TimeoutSeconds is recomputed from it so
	// HookSpec.Timeout() sees an explicit value either way.
	spec := hooks.HookSpec{Kind: cfg.Kind, Command: cfg.Command, TimeoutSeconds: int(cfg.Timeout().Seconds())}
	outcome, err := r.runner.Run(ctx, spec, payload)
	if err != nil {
		return "", err
	}

	if outcome.ExitCode != 0 {
		slog.Warn("status line command exited non-zero, suppressing", "command", cfg.Command, "exit_code", outcome.ExitCode)
		return "", ErrSuppressed
	}

	if outcome.Parsed != nil && outcome.Parsed.Feedback != "" {
		return outcome.Parsed.Feedback, nil
	}
	return strings.TrimSpace(string(outcome.Stdout)), nil
}
