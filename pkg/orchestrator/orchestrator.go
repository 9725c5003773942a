package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/docker/agentcore/pkg/hooks"
	"github.com/docker/agentcore/pkg/permissions"
)

// retryReason is the stable, terse string shown to the user on a
// sandbox-denied retry prompt (spec §4.6 "Contracts").
const retryReason = "command failed; retry without sandbox?"

// Orchestrator drives a single tool call through the approval, sandbox
// selection, and hook state machine described in spec §4.6.
type Orchestrator struct {
	Engine      *hooks.Engine
	Permissions *permissions.Checker
	Tracer      trace.Tracer

	SessionID      string
	ProjectDir     string
	TranscriptPath string

	PreToolUseGroups  []hooks.HookGroup
	PostToolUseGroups []hooks.HookGroup
}

// Execute runs req against rt, returning the tool result or a Rejected/
// error per the state machine in spec §4.6.
func (o *Orchestrator) Execute(ctx context.Context, rt ToolRuntime, req Request) (Result, error) {
	ctx, span := o.startSpan(ctx, "orchestrator.tool_call", req)
	defer span.End()

	autoApproved, rejected := o.checkPermissions(ctx, req)
	if rejected != nil {
		span.SetStatus(codes.Ok, "rejected by permissions")
		return Result{}, rejected
	}

	if !autoApproved {
		if err := o.obtainApproval(ctx, rt); err != nil {
			span.SetStatus(codes.Ok, "rejected by approval")
			return Result{}, err
		}
	}

	sandbox := rt.SandboxPreference()
	if rt.WantsEscalatedFirstAttempt() {
		sandbox = SandboxNone
	}

	updatedArgs, err := o.runPreToolUse(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pre-tool-use rejected")
		return Result{}, err
	}
	req.Args = updatedArgs

	res, err := rt.Run(ctx, req, 1, sandbox)
	if err == nil {
		o.runPostToolUseBestEffort(ctx, req, res)
		span.SetStatus(codes.Ok, "completed")
		return res, nil
	}

	if !errors.Is(err, ErrSandboxDenied) {
		if rt.EscalateOnFailure() && sandbox != SandboxNone {
			return o.retryWithoutSandbox(ctx, rt, req, retryReason)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool run failed")
		return Result{}, err
	}

	return o.retryWithoutSandbox(ctx, rt, req, retryReason)
}

// retryWithoutSandbox implements the sandbox-denial branch: re-prompt
// for approval unless the runtime permits bypassing it, re-run
// PreToolUse, then invoke the tool with sandbox=None (spec §4.6). This
// is always the call's second (and last) approval prompt, regardless
// of which failure triggered it.
func (o *Orchestrator) retryWithoutSandbox(ctx context.Context, rt ToolRuntime, req Request, reason string) (Result, error) {
	if !rt.WantsNoSandboxApproval() && !rt.ShouldBypassApproval() {
		decision, err := rt.StartApproval(ctx, reason)
		if err != nil {
			return Result{}, fmt.Errorf("retry approval prompt: %w", err)
		}
		o.recordDecision(ctx, decision, SourceUser)
		if decision == Denied {
			return Result{}, &Rejected{Reason: "denied by user on sandbox-denied retry"}
		}
	} else {
		o.recordDecision(ctx, Approved, SourceConfig)
	}

	updatedArgs, err := o.runPreToolUse(ctx, req)
	if err != nil {
		return Result{}, err
	}
	req.Args = updatedArgs

	res, err := rt.Run(ctx, req, 2, SandboxNone)
	if err != nil {
		return Result{}, fmt.Errorf("tool run failed after sandbox-denied retry: %w", err)
	}

	o.runPostToolUseBestEffort(ctx, req, res)
	return res, nil
}

// checkPermissions applies the configured Allow/Ask/Deny patterns. A
// Deny short-circuits with Rejected; Allow is recorded as an
// auto-approval and tells the caller to skip the interactive prompt.
func (o *Orchestrator) checkPermissions(ctx context.Context, req Request) (autoApproved bool, rejected *Rejected) {
	if o.Permissions == nil {
		return false, nil
	}
	switch o.Permissions.CheckWithArgs(req.ToolName, req.Args) {
	case permissions.Deny:
		o.recordDecision(ctx, Denied, SourceConfig)
		return false, &Rejected{Reason: fmt.Sprintf("tool %q is denied by permissions configuration", req.ToolName)}
	case permissions.Allow:
		o.recordDecision(ctx, Approved, SourceConfig)
		return true, nil
	}
	return false, nil
}

// obtainApproval requests the call's initial approval, the first of at
// most two prompts a call can generate (spec §4.6 "Contracts"). A
// runtime that bypasses approval or doesn't want it is auto-approved
// and tagged Config; everything else is a real user prompt.
func (o *Orchestrator) obtainApproval(ctx context.Context, rt ToolRuntime) error {
	if rt.ShouldBypassApproval() || !rt.WantsInitialApproval() {
		o.recordDecision(ctx, Approved, SourceConfig)
		return nil
	}

	decision, err := rt.StartApproval(ctx, "")
	if err != nil {
		return fmt.Errorf("approval prompt: %w", err)
	}
	o.recordDecision(ctx, decision, SourceUser)
	if decision == Denied {
		return &Rejected{Reason: "denied by user"}
	}
	return nil
}

// runPreToolUse runs the configured PreToolUse hooks for req, returning
// the (possibly hook-updated) tool arguments. A blocking outcome
// surfaces as Rejected (spec §4.6 "PreToolUse hook blocks always fail
// the call").
func (o *Orchestrator) runPreToolUse(ctx context.Context, req Request) (map[string]any, error) {
	groups := hooks.SelectGroups(o.PreToolUseGroups, req.ToolName)
	if len(groups) == 0 {
		return req.Args, nil
	}

	inv := o.invocation(hooks.EventPreToolUse, req, nil)
	result, err := o.Engine.Run(ctx, hooks.EventPreToolUse, inv, groups)
	if err != nil {
		return nil, fmt.Errorf("pre-tool-use hooks: %w", err)
	}
	if result.Blocked {
		return nil, &Rejected{Reason: result.BlockReason}
	}

	return applyUpdatedInput(req.Args, result.Outcomes), nil
}

// applyUpdatedInput folds hookSpecificOutput.updated_input from every
// outcome in the chain into the tool arguments, key by key, later hooks
// winning on conflicts. A hook that only blocks or is silent leaves
// args unchanged; one that sets disjoint keys from an earlier hook
// doesn't clobber them (spec §4.6).
func applyUpdatedInput(args map[string]any, outcomes []hooks.Outcome) map[string]any {
	for _, o := range outcomes {
		if o.Parsed == nil || o.Parsed.HookSpecificOutput == nil {
			continue
		}
		updated := o.Parsed.HookSpecificOutput.UpdatedInput
		if updated == nil {
			continue
		}
		if args == nil {
			args = make(map[string]any, len(updated))
		}
		for k, v := range updated {
			args[k] = v
		}
	}
	return args
}

// runPostToolUseBestEffort runs PostToolUse hooks and logs failures
// without altering the already-returned result (spec §4.6 "PostToolUse
// hook failures never turn a successful tool run into a failure").
func (o *Orchestrator) runPostToolUseBestEffort(ctx context.Context, req Request, res Result) {
	groups := hooks.SelectGroups(o.PostToolUseGroups, req.ToolName)
	if len(groups) == 0 {
		return
	}

	inv := o.invocation(hooks.EventPostToolUse, req, &res)
	result, err := o.Engine.Run(ctx, hooks.EventPostToolUse, inv, groups)
	if err != nil {
		slog.Warn("post-tool-use hooks failed, tool result unaffected", "tool", req.ToolName, "error", err)
		return
	}
	if result.Blocked {
		slog.Warn("post-tool-use hook reported a block, ignored: tool already completed", "tool", req.ToolName, "reason", result.BlockReason)
	}
}

func (o *Orchestrator) invocation(event hooks.EventName, req Request, res *Result) *hooks.Invocation {
	extra := map[string]any{
		"tool_name":   req.ToolName,
		"tool_use_id": req.CallID,
		"tool_input":  req.Args,
	}
	if res != nil {
		extra["tool_response"] = res.Output
	}
	return &hooks.Invocation{
		SessionID:      o.SessionID,
		TranscriptPath: o.TranscriptPath,
		Cwd:            o.ProjectDir,
		EventName:      event,
		Extra:          extra,
	}
}

func (o *Orchestrator) recordDecision(ctx context.Context, decision ApprovalDecision, source DecisionSource) {
	span := trace.SpanFromContext(ctx)
	label := "denied"
	if decision == Approved {
		label = "approved"
	}
	span.AddEvent("tool_call.decision", trace.WithAttributes(
		attribute.String("decision", label),
		attribute.String("source", string(source)),
	))
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, req Request) (context.Context, trace.Span) {
	if o.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return o.Tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("tool.name", req.ToolName),
		attribute.String("tool.call_id", req.CallID),
		attribute.String("session.id", o.SessionID),
	))
}
