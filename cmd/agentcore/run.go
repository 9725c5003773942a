package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/docker/agentcore/pkg/commands"
	"github.com/docker/agentcore/pkg/hooks"
	"github.com/docker/agentcore/pkg/orchestrator"
	"github.com/docker/agentcore/pkg/permissions"
	"github.com/docker/agentcore/pkg/promptpipeline"
	"github.com/docker/agentcore/pkg/settings"
)

var bold = color.New(color.Bold).SprintfFunc()

type runFlags struct {
	jsonOutput                bool
	projectDir                string
	skipGitRepoCheck          bool
	fullAuto                  bool
	bypassApprovalsAndSandbox bool
	oss                       bool
	overrides                 []string
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [prompt|-]",
		Short: "Submit a prompt through the extension core",
		Long: "Runs a prompt through the UserPromptSubmit hooks, slash-command " +
			"expansion, and a demonstration tool call through the orchestrator.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, &flags)
		},
	}

	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Emit newline-delimited JSON events instead of plain text")
	cmd.Flags().StringVarP(&flags.projectDir, "project-dir", "C", "", "Run as if started in this directory")
	cmd.Flags().BoolVar(&flags.skipGitRepoCheck, "skip-git-repo-check", false, "Don't warn when the project directory isn't a git repository")
	cmd.Flags().BoolVar(&flags.fullAuto, "full-auto", false, "Auto-approve tool calls, sandboxed by default")
	cmd.Flags().BoolVar(&flags.bypassApprovalsAndSandbox, "dangerously-bypass-approvals-and-sandbox", false, "Skip both approval prompts and sandboxing entirely")
	cmd.Flags().BoolVar(&flags.oss, "oss", false, "Accepted for CLI compatibility; has no effect on this command")
	cmd.Flags().StringArrayVarP(&flags.overrides, "config", "c", nil, "Set a key=value override, exported to PreToolUse/PostToolUse hooks as CODEX_OVERRIDE_<KEY>")

	return cmd
}

type event struct {
	Type   string `json:"type"`
	Prompt string `json:"prompt,omitempty"`
	Output string `json:"output,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func runRun(cmd *cobra.Command, args []string, flags *runFlags) error {
	fail := func(err error) error {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return RuntimeError{Err: err}
	}

	projectDir := flags.projectDir
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fail(fmt.Errorf("resolve working directory: %w", err))
		}
		projectDir = wd
	}
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fail(fmt.Errorf("invalid project directory %q: %w", projectDir, err))
	}
	projectDir = absDir

	if !flags.skipGitRepoCheck && !isGitRepo(projectDir) {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: not running inside a git repository (use --skip-git-repo-check to silence)")
	}

	prompt, err := readPrompt(cmd, args)
	if err != nil {
		return fail(err)
	}

	cfg, err := settings.Load(homeDirOrEmpty(), projectDir)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", err)
		cfg = &settings.Settings{}
	}

	reg := commands.Load(projectDir)
	sessionID := os.Getenv("CODEX_SESSION_ID")
	pipeline := promptpipeline.New(cfg, reg, projectDir, sessionID)

	result, err := pipeline.Submit(cmd.Context(), prompt)
	if err != nil {
		return reportRejection(cmd, flags, err)
	}
	if result.Handled {
		return nil
	}

	emit(cmd.OutOrStdout(), flags.jsonOutput, event{Type: "prompt", Prompt: result.Prompt})

	res, err := runDemoToolCall(cmd, flags, cfg, projectDir, sessionID, result.Prompt)
	if err != nil {
		return reportRejection(cmd, flags, err)
	}

	emit(cmd.OutOrStdout(), flags.jsonOutput, event{Type: "tool_result", Output: res.Output})
	return nil
}

func reportRejection(cmd *cobra.Command, flags *runFlags, err error) error {
	var pipelineRejected *promptpipeline.Rejected
	var orchestratorRejected *orchestrator.Rejected

	reason := err.Error()
	// S2/S3: a UserPromptSubmit-hook block must say "Hook blocked
	// execution" on stderr; the orchestrator's own rejections (denied
	// permissions, denied approval, PreToolUse block) keep their own
	// "blocked:" wording.
	label := "blocked:"
	switch {
	case errors.As(err, &pipelineRejected):
		reason = pipelineRejected.Reason
		label = "Hook blocked execution:"
	case errors.As(err, &orchestratorRejected):
		reason = orchestratorRejected.Reason
	}

	emit(cmd.OutOrStdout(), flags.jsonOutput, event{Type: "blocked", Reason: reason})
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", boldIfTTY(cmd.ErrOrStderr(), label), reason)
	return RuntimeError{Err: err}
}

func emit(out io.Writer, asJSON bool, e event) {
	if !asJSON {
		switch e.Type {
		case "prompt":
			fmt.Fprintln(out, e.Prompt)
		case "tool_result":
			fmt.Fprintln(out, e.Output)
		}
		return
	}
	data, _ := json.Marshal(e)
	fmt.Fprintln(out, string(data))
}

// readPrompt resolves the prompt per spec §6: a positional argument,
// "-" or piped (non-TTY) stdin, or an error if none is available.
func readPrompt(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] == "-" {
		return readAll(in)
	}

	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return "", fmt.Errorf("no prompt given: pass one as an argument, \"-\", or pipe it on stdin")
	}
	return readAll(in)
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

func homeDirOrEmpty() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return dir
}

func boldIfTTY(w io.Writer, s string) string {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return bold(s)
	}
	return s
}

// runDemoToolCall exercises the ToolOrchestrator against a no-op "echo"
// tool runtime, since model dispatch and real tool execution are out of
// scope (spec §1). The run flags drive the runtime's approval and
// sandbox posture exactly as they would a real one.
func runDemoToolCall(cmd *cobra.Command, flags *runFlags, cfg *settings.Settings, projectDir, sessionID, prompt string) (orchestrator.Result, error) {
	env := append(os.Environ(), overrideEnv(flags.overrides)...)
	orch := &orchestrator.Orchestrator{
		Engine:            hooks.NewEngine(hooks.NewRunner(projectDir, env)),
		Permissions:       permissionsChecker(cfg),
		Tracer:            tracer(),
		SessionID:         sessionID,
		ProjectDir:        projectDir,
		PreToolUseGroups:  cfg.HookConfig().Groups(hooks.EventPreToolUse),
		PostToolUseGroups: cfg.HookConfig().Groups(hooks.EventPostToolUse),
	}

	rt := &cliToolRuntime{
		cmd:               cmd,
		autoApprove:       flags.fullAuto || flags.bypassApprovalsAndSandbox,
		bypassApprovals:   flags.bypassApprovalsAndSandbox,
		sandboxPreference: orchestrator.SandboxRequired,
	}
	if flags.bypassApprovalsAndSandbox {
		rt.sandboxPreference = orchestrator.SandboxNone
	}

	return orch.Execute(cmd.Context(), rt, orchestrator.Request{
		ToolName: "echo",
		CallID:   sessionID,
		Args:     map[string]any{"text": prompt},
	})
}

func permissionsChecker(cfg *settings.Settings) *permissions.Checker {
	if cfg == nil {
		return nil
	}
	return cfg.PermissionsChecker()
}

func overrideEnv(overrides []string) []string {
	env := make([]string, 0, len(overrides))
	for _, o := range overrides {
		key, value, ok := strings.Cut(o, "=")
		if !ok {
			continue
		}
		env = append(env, "CODEX_OVERRIDE_"+strings.ToUpper(key)+"="+value)
	}
	return env
}

// cliToolRuntime is the orchestrator.ToolRuntime backing `agentcore run`:
// it "executes" by echoing its input, but goes through the full
// approval/sandbox/hook state machine so the CLI exercises it for real.
type cliToolRuntime struct {
	cmd               *cobra.Command
	autoApprove       bool
	bypassApprovals   bool
	sandboxPreference orchestrator.SandboxPreference
}

func (r *cliToolRuntime) WantsInitialApproval() bool       { return !r.autoApprove }
func (r *cliToolRuntime) WantsEscalatedFirstAttempt() bool { return false }
func (r *cliToolRuntime) EscalateOnFailure() bool          { return false }
func (r *cliToolRuntime) WantsNoSandboxApproval() bool     { return r.autoApprove }
func (r *cliToolRuntime) ShouldBypassApproval() bool       { return r.bypassApprovals }
func (r *cliToolRuntime) SandboxPreference() orchestrator.SandboxPreference {
	return r.sandboxPreference
}

func (r *cliToolRuntime) StartApproval(ctx context.Context, retryReason string) (orchestrator.ApprovalDecision, error) {
	prompt := "Run tool \"echo\"? ([y]es/[n]o): "
	if retryReason != "" {
		prompt = retryReason + " ([y]es/[n]o): "
	}
	fmt.Fprint(r.cmd.ErrOrStderr(), boldIfTTY(r.cmd.ErrOrStderr(), prompt))

	scanner := bufio.NewScanner(r.cmd.InOrStdin())
	if !scanner.Scan() {
		return orchestrator.Denied, nil
	}
	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return orchestrator.Approved, nil
	default:
		return orchestrator.Denied, nil
	}
}

func (r *cliToolRuntime) Run(_ context.Context, req orchestrator.Request, _ int, sandbox orchestrator.SandboxPreference) (orchestrator.Result, error) {
	text, _ := req.Args["text"].(string)
	return orchestrator.Result{Output: text}, nil
}
