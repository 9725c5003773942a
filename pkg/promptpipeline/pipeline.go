// Package promptpipeline implements the prompt-submission pipeline:
// running UserPromptSubmit hooks, detecting and expanding slash
// commands, and dispatching the reserved "statusline" built-in.
package promptpipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/docker/agentcore/pkg/commands"
	"github.com/docker/agentcore/pkg/hooks"
	"github.com/docker/agentcore/pkg/settings"
	"github.com/docker/agentcore/pkg/statusline"
)

// Result is the outcome of Pipeline.Submit (spec §4.5).
type Result struct {
	// Prompt is the final prompt text to send to the model. Only
	// meaningful when Handled is false.
	Prompt string
	// Handled is true when the pipeline fully consumed the turn (empty
	// resulting prompt, or the "statusline" built-in) and the caller
	// should exit cleanly without sending anything to the model.
	Handled bool
}

// Rejected is returned when a UserPromptSubmit hook blocks the prompt
// (spec §4.5 step 3, §7 "Hook block").
type Rejected struct {
	Reason string
}

func (r *Rejected) Error() string {
	return fmt.Sprintf("prompt rejected: %s", r.Reason)
}

// Pipeline wires together the settings-derived hook configuration, the
// hook engine, the command registry, and the status line runner for one
// project directory (spec §4.5).
type Pipeline struct {
	Settings   *settings.Settings
	Engine     *hooks.Engine
	Commands   *commands.Registry
	StatusLine *statusline.Runner
	ProjectDir string
	SessionID  string
}

// New constructs a Pipeline. sessionID may be empty, in which case a
// fresh one is synthesized (spec §6: CODEX_SESSION_ID, if unset).
func New(cfg *settings.Settings, reg *commands.Registry, projectDir, sessionID string) *Pipeline {
	runner := hooks.NewRunner(projectDir, nil)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Pipeline{
		Settings:   cfg,
		Engine:     hooks.NewEngine(runner),
		Commands:   reg,
		StatusLine: statusline.New(runner),
		ProjectDir: projectDir,
		SessionID:  sessionID,
	}
}

// Submit runs the full pipeline against userInput (spec §4.5).
func (p *Pipeline) Submit(ctx context.Context, userInput string) (Result, error) {
	if userInput == "" {
		return Result{}, errors.New("prompt pipeline: stdin capture requested but no prompt is available")
	}

	prompt, err := p.runUserPromptHooks(ctx, userInput)
	if err != nil {
		var rejected *Rejected
		if errors.As(err, &rejected) {
			return Result{}, err
		}
		slog.Warn("user-prompt-submit hooks failed, passing prompt through unchanged", "error", err)
		prompt = userInput
	}

	if inv, ok := commands.Parse(prompt); ok {
		if cmd, found := p.Commands.Lookup(inv.Name); found {
			prompt = commands.Expand(cmd.Body, inv.Args)
		} else if inv.Name == commands.StatusLineCommandName {
			return p.runStatusLineBuiltin(ctx), nil
		}
		// Unknown slash command: prompt passes through unchanged.
	}

	if prompt == "" {
		return Result{Handled: true}, nil
	}

	return Result{Prompt: prompt}, nil
}

func (p *Pipeline) runUserPromptHooks(ctx context.Context, userInput string) (string, error) {
	groups := p.Settings.HookConfig().Groups(hooks.EventUserPromptSubmit)
	if len(groups) == 0 {
		return userInput, nil
	}

	inv := &hooks.Invocation{
		SessionID: p.SessionID,
		Cwd:       p.ProjectDir,
		Extra:     map[string]any{"prompt": userInput},
	}

	result, err := p.Engine.Run(ctx, hooks.EventUserPromptSubmit, inv, groups)
	if err != nil {
		return "", fmt.Errorf("user-prompt-submit hooks: %w", err)
	}
	if result.Blocked {
		return "", &Rejected{Reason: result.BlockReason}
	}

	return inv.Prompt(), nil
}

func (p *Pipeline) runStatusLineBuiltin(ctx context.Context) Result {
	cfg := p.Settings.HookConfig().StatusLine
	if cfg == nil {
		slog.Warn("statusline invoked but no statusLine command is configured")
		return Result{Handled: true}
	}

	text, err := p.StatusLine.Run(ctx, *cfg, p.ProjectDir)
	if err != nil {
		slog.Warn("statusline command failed", "error", err)
		return Result{Handled: true}
	}

	fmt.Fprintln(os.Stderr, text)
	return Result{Handled: true}
}
