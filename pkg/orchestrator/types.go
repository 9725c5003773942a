// Package orchestrator implements the tool-call state machine: approval,
// sandbox selection, PreToolUse/PostToolUse hooks, and the sandbox-denial
// retry branch.
package orchestrator

import (
	"context"
	"errors"
)

// ApprovalDecision is the outcome of an approval prompt (spec §4.6).
type ApprovalDecision int

const (
	Denied ApprovalDecision = iota
	Approved
)

// DecisionSource tags a telemetry decision event by whether it came
// from an interactive user prompt or an auto-resolution by configured
// permissions (spec §4.6 "Telemetry").
type DecisionSource string

const (
	SourceUser   DecisionSource = "User"
	SourceConfig DecisionSource = "Config"
)

// SandboxPreference is the tool runtime's declared sandboxing intent
// for a call (spec §4.6 "Select initial sandbox").
type SandboxPreference int

const (
	SandboxAuto SandboxPreference = iota
	SandboxNone
	SandboxRequired
)

// ErrSandboxDenied is returned by ToolRuntime.Run when the sandboxed
// attempt was denied (e.g. by the sandbox's own policy), triggering the
// orchestrator's retry branch (spec §4.6).
var ErrSandboxDenied = errors.New("sandbox denied")

// Request describes one tool invocation to be executed.
type Request struct {
	ToolName string
	CallID   string
	Args     map[string]any
}

// Result is a successful tool execution result.
type Result struct {
	Output string
}

// Rejected is returned whenever the call is refused before or instead
// of running the tool: permission denial, user denial, or a blocking
// PreToolUse hook (spec §4.6, §7).
type Rejected struct {
	Reason string
}

func (r *Rejected) Error() string {
	return "tool call rejected: " + r.Reason
}

// ToolRuntime is the external tool-runtime collaborator the
// orchestrator wraps (spec §4.6).
type ToolRuntime interface {
	WantsInitialApproval() bool
	WantsEscalatedFirstAttempt() bool
	EscalateOnFailure() bool
	WantsNoSandboxApproval() bool
	ShouldBypassApproval() bool
	SandboxPreference() SandboxPreference
	StartApproval(ctx context.Context, retryReason string) (ApprovalDecision, error)
	Run(ctx context.Context, req Request, attempt int, sandbox SandboxPreference) (Result, error)
}
