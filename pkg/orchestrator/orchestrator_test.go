package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/agentcore/pkg/hooks"
	"github.com/docker/agentcore/pkg/permissions"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script hooks are posix-only in this test suite")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// fakeRuntime is a scriptable ToolRuntime double grounded on the
// teacher's toolExecutor.executeWithApproval/runTool shapes, adapted
// to the full approval/sandbox/retry state machine.
type fakeRuntime struct {
	wantsInitialApproval       bool
	wantsEscalatedFirstAttempt bool
	escalateOnFailure          bool
	wantsNoSandboxApproval     bool
	shouldBypassApproval       bool
	sandboxPreference          SandboxPreference

	approvalDecisions []ApprovalDecision
	approvalCalls     int
	retryReasonsSeen  []string

	runResults []runResult
	runCalls   int
	attempts   []int
	sandboxes  []SandboxPreference
}

type runResult struct {
	result Result
	err    error
}

func (f *fakeRuntime) WantsInitialApproval() bool       { return f.wantsInitialApproval }
func (f *fakeRuntime) WantsEscalatedFirstAttempt() bool { return f.wantsEscalatedFirstAttempt }
func (f *fakeRuntime) EscalateOnFailure() bool          { return f.escalateOnFailure }
func (f *fakeRuntime) WantsNoSandboxApproval() bool     { return f.wantsNoSandboxApproval }
func (f *fakeRuntime) ShouldBypassApproval() bool       { return f.shouldBypassApproval }
func (f *fakeRuntime) SandboxPreference() SandboxPreference {
	return f.sandboxPreference
}

func (f *fakeRuntime) StartApproval(_ context.Context, retryReason string) (ApprovalDecision, error) {
	f.retryReasonsSeen = append(f.retryReasonsSeen, retryReason)
	d := f.approvalDecisions[f.approvalCalls]
	f.approvalCalls++
	return d, nil
}

func (f *fakeRuntime) Run(_ context.Context, _ Request, attempt int, sandbox SandboxPreference) (Result, error) {
	f.attempts = append(f.attempts, attempt)
	f.sandboxes = append(f.sandboxes, sandbox)
	r := f.runResults[f.runCalls]
	f.runCalls++
	return r.result, r.err
}

func newOrchestrator(t *testing.T, projectDir string, preGroups, postGroups []hooks.HookGroup, checker *permissions.Checker) *Orchestrator {
	t.Helper()
	return &Orchestrator{
		Engine:            hooks.NewEngine(hooks.NewRunner(projectDir, os.Environ())),
		Permissions:       checker,
		ProjectDir:        projectDir,
		SessionID:         "s1",
		PreToolUseGroups:  preGroups,
		PostToolUseGroups: postGroups,
	}
}

func TestExecuteAutoApprovedByPermissions(t *testing.T) {
	t.Parallel()

	checker := permissions.NewChecker(&permissions.Config{Allow: []string{"read_*"}})
	orch := newOrchestrator(t, t.TempDir(), nil, nil, checker)

	rt := &fakeRuntime{
		wantsInitialApproval: true, // would otherwise prompt
		runResults:           []runResult{{result: Result{Output: "ok"}}},
	}

	res, err := orch.Execute(context.Background(), rt, Request{ToolName: "read_file"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)
	assert.Zero(t, rt.approvalCalls, "permission Allow must skip the interactive prompt entirely")
}

func TestExecuteDeniedByPermissions(t *testing.T) {
	t.Parallel()

	checker := permissions.NewChecker(&permissions.Config{Deny: []string{"shell"}})
	orch := newOrchestrator(t, t.TempDir(), nil, nil, checker)

	rt := &fakeRuntime{wantsInitialApproval: true}

	_, err := orch.Execute(context.Background(), rt, Request{ToolName: "shell"})
	require.Error(t, err)
	var rejected *Rejected
	require.ErrorAs(t, err, &rejected)
	assert.Zero(t, rt.runCalls)
}

// TestExecuteSingleApprovalOnSuccess covers spec §8 invariant #3: the
// approval count equals 1 when sandbox denial never occurs.
func TestExecuteSingleApprovalOnSuccess(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t, t.TempDir(), nil, nil, nil)
	rt := &fakeRuntime{
		wantsInitialApproval: true,
		approvalDecisions:    []ApprovalDecision{Approved},
		runResults:           []runResult{{result: Result{Output: "done"}}},
	}

	res, err := orch.Execute(context.Background(), rt, Request{ToolName: "shell"})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Output)
	assert.Equal(t, 1, rt.approvalCalls)
}

func TestExecuteDeniedByUser(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t, t.TempDir(), nil, nil, nil)
	rt := &fakeRuntime{
		wantsInitialApproval: true,
		approvalDecisions:    []ApprovalDecision{Denied},
	}

	_, err := orch.Execute(context.Background(), rt, Request{ToolName: "shell"})
	require.Error(t, err)
	var rejected *Rejected
	require.ErrorAs(t, err, &rejected)
	assert.Zero(t, rt.runCalls)
}

// TestExecutePreToolUseBlockRejectsBeforeRun covers spec §4.6
// "PreToolUse hook blocks always fail the call before the tool runs".
func TestExecutePreToolUseBlockRejectsBeforeRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := writeScript(t, dir, "block.sh", `cat > /dev/null
echo "no shells allowed" >&2
exit 2
`)

	groups := []hooks.HookGroup{{Matcher: "*", Hooks: []hooks.HookSpec{{Kind: hooks.KindCommand, Command: blocker}}}}
	orch := newOrchestrator(t, dir, groups, nil, nil)
	rt := &fakeRuntime{shouldBypassApproval: true}

	_, err := orch.Execute(context.Background(), rt, Request{ToolName: "shell"})
	require.Error(t, err)
	var rejected *Rejected
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "no shells allowed", rejected.Reason)
	assert.Zero(t, rt.runCalls, "tool must never run after a PreToolUse block")
}

// TestExecutePostToolUseFailureDoesNotAlterResult covers spec §8
// invariant #4.
func TestExecutePostToolUseFailureDoesNotAlterResult(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	failing := writeScript(t, dir, "post.sh", `cat > /dev/null
echo "post hook exploded" >&2
exit 1
`)

	groups := []hooks.HookGroup{{Matcher: "*", Hooks: []hooks.HookSpec{{Kind: hooks.KindCommand, Command: failing}}}}
	orch := newOrchestrator(t, dir, nil, groups, nil)
	rt := &fakeRuntime{
		shouldBypassApproval: true,
		runResults:           []runResult{{result: Result{Output: "tool result"}}},
	}

	res, err := orch.Execute(context.Background(), rt, Request{ToolName: "shell"})
	require.NoError(t, err)
	assert.Equal(t, "tool result", res.Output)
}

// TestExecuteSandboxDeniedRetry covers spec §8 S7: two approvals total,
// second attempt runs with SandboxNone.
func TestExecuteSandboxDeniedRetry(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t, t.TempDir(), nil, nil, nil)
	rt := &fakeRuntime{
		wantsInitialApproval: true,
		sandboxPreference:    SandboxRequired,
		approvalDecisions:    []ApprovalDecision{Approved, Approved},
		runResults: []runResult{
			{err: ErrSandboxDenied},
			{result: Result{Output: "succeeded without sandbox"}},
		},
	}

	res, err := orch.Execute(context.Background(), rt, Request{ToolName: "shell"})
	require.NoError(t, err)
	assert.Equal(t, "succeeded without sandbox", res.Output)
	assert.Equal(t, 2, rt.approvalCalls, "sandbox denial triggers exactly one extra approval prompt")
	require.Len(t, rt.sandboxes, 2)
	assert.Equal(t, SandboxRequired, rt.sandboxes[0])
	assert.Equal(t, SandboxNone, rt.sandboxes[1])
	require.Len(t, rt.attempts, 2)
	assert.Equal(t, []int{1, 2}, rt.attempts)
	assert.Equal(t, retryReason, rt.retryReasonsSeen[1])
}

func TestExecuteSandboxDeniedRetryBypassesApprovalWhenAllowed(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t, t.TempDir(), nil, nil, nil)
	rt := &fakeRuntime{
		wantsInitialApproval:   true,
		wantsNoSandboxApproval: true,
		approvalDecisions:      []ApprovalDecision{Approved},
		runResults: []runResult{
			{err: ErrSandboxDenied},
			{result: Result{Output: "ok"}},
		},
	}

	res, err := orch.Execute(context.Background(), rt, Request{ToolName: "shell"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)
	assert.Equal(t, 1, rt.approvalCalls, "retry is auto-approved when the runtime permits bypassing it")
}

func TestExecuteSandboxDeniedRetryDeniedByUser(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t, t.TempDir(), nil, nil, nil)
	rt := &fakeRuntime{
		wantsInitialApproval: true,
		approvalDecisions:    []ApprovalDecision{Approved, Denied},
		runResults:           []runResult{{err: ErrSandboxDenied}},
	}

	_, err := orch.Execute(context.Background(), rt, Request{ToolName: "shell"})
	require.Error(t, err)
	var rejected *Rejected
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 1, rt.runCalls, "a denied retry must not invoke the tool a second time")
}

func TestExecuteGenericErrorEscalates(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t, t.TempDir(), nil, nil, nil)
	rt := &fakeRuntime{
		shouldBypassApproval: true,
		escalateOnFailure:    true,
		sandboxPreference:    SandboxRequired,
		runResults: []runResult{
			{err: errors.New("transient failure")},
			{result: Result{Output: "retried ok"}},
		},
	}

	res, err := orch.Execute(context.Background(), rt, Request{ToolName: "shell"})
	require.NoError(t, err)
	assert.Equal(t, "retried ok", res.Output)
	assert.Equal(t, SandboxNone, rt.sandboxes[1])
}

// TestApplyUpdatedInputMergesDisjointKeys covers spec §4.6: two
// PreToolUse hooks each setting a different key must not clobber one
// another, only a shared key is last-hook-wins.
func TestApplyUpdatedInputMergesDisjointKeys(t *testing.T) {
	t.Parallel()

	outcomes := []hooks.Outcome{
		{Parsed: &hooks.Output{HookSpecificOutput: &hooks.HookSpecificOutput{
			UpdatedInput: map[string]any{"cmd": "ls", "cwd": "/tmp"},
		}}},
		{Parsed: &hooks.Output{HookSpecificOutput: &hooks.HookSpecificOutput{
			UpdatedInput: map[string]any{"cmd": "ls -la"},
		}}},
		{Parsed: nil}, // a silent hook must not wipe out prior updates
	}

	got := applyUpdatedInput(map[string]any{"cmd": "original"}, outcomes)
	assert.Equal(t, map[string]any{"cmd": "ls -la", "cwd": "/tmp"}, got)
}

func TestExecuteGenericErrorPropagatesWithoutEscalation(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(t, t.TempDir(), nil, nil, nil)
	rt := &fakeRuntime{
		shouldBypassApproval: true,
		escalateOnFailure:    false,
		runResults:           []runResult{{err: errors.New("permanent failure")}},
	}

	_, err := orch.Execute(context.Background(), rt, Request{ToolName: "shell"})
	require.Error(t, err)
	assert.Equal(t, 1, rt.runCalls)
}
