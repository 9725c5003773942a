// Package hooks implements the extension core's hook execution engine:
// spawning a child process per lifecycle event, passing it structured
// JSON on stdin, enforcing a per-hook timeout, and classifying the
// result as blocking or advisory.
package hooks

import (
	"encoding/json"
	"time"
)

// EventName identifies a lifecycle event that hooks can be registered against.
type EventName string

const (
	EventUserPromptSubmit EventName = "UserPromptSubmit"
	EventPreToolUse       EventName = "PreToolUse"
	EventPostToolUse      EventName = "PostToolUse"
	EventNotification     EventName = "Notification"
	EventStop             EventName = "Stop"
	EventPreCompact       EventName = "PreCompact"
	EventSessionStart     EventName = "SessionStart"
	EventSessionEnd       EventName = "SessionEnd"
	EventStatusLine       EventName = "statusLine"
)

// defaultHookTimeout and defaultStatusLineTimeout are applied when a HookSpec
// or StatusLineConfig omits timeout_seconds, per spec §3.
const (
	defaultHookTimeout       = 5 * time.Second
	defaultStatusLineTimeout = 2 * time.Second
)

// Kind is the HookSpec/StatusLineConfig "type" discriminator. Only
// KindCommand is executed; any other kind is silently ignored for
// forward compatibility (spec §3).
type Kind string

const KindCommand Kind = "command"

// HookSpec is a single hook configuration entry.
type HookSpec struct {
	Kind           Kind   `json:"type"`
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout,omitempty"`
}

// Timeout returns the configured timeout, defaulting to 5 seconds.
func (h HookSpec) Timeout() time.Duration {
	if h.TimeoutSeconds <= 0 {
		return defaultHookTimeout
	}
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// HookGroup binds an ordered sequence of hooks to an opaque matcher.
// The matcher's interpretation is left to the caller (spec §3, §9);
// HookEngine never inspects it.
type HookGroup struct {
	Matcher string     `json:"matcher,omitempty"`
	Hooks   []HookSpec `json:"hooks"`
}

// StatusLineConfig configures the status-line hook (spec §3).
type StatusLineConfig struct {
	Kind           Kind   `json:"type"`
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout,omitempty"`
	Mode           string `json:"mode,omitempty"`
}

func (s StatusLineConfig) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return defaultStatusLineTimeout
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Config is the merged hooks configuration for one event namespace, as
// produced by settings.Store (spec §4.1).
type Config struct {
	Hooks      map[EventName][]HookGroup
	StatusLine *StatusLineConfig
}

// Groups returns the configured groups for an event, or nil.
func (c *Config) Groups(event EventName) []HookGroup {
	if c == nil || c.Hooks == nil {
		return nil
	}
	return c.Hooks[event]
}

// Invocation is the transient, per-call payload passed to a hook on stdin.
type Invocation struct {
	SessionID      string         `json:"session_id"`
	TranscriptPath string         `json:"transcript_path,omitempty"`
	Cwd            string         `json:"cwd"`
	EventName      EventName      `json:"hook_event_name"`
	Extra          map[string]any `json:"-"`
}

// MarshalJSON flattens Extra into the top-level object alongside the
// named fields, matching the wire format of spec §6 (tool_name,
// tool_use_id, tool_input, tool_response, prompt are all flattened
// siblings of session_id/cwd/hook_event_name).
func (i Invocation) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(i.Extra)+4)
	for k, v := range i.Extra {
		flat[k] = v
	}
	flat["session_id"] = i.SessionID
	if i.TranscriptPath != "" {
		flat["transcript_path"] = i.TranscriptPath
	}
	flat["cwd"] = i.Cwd
	flat["hook_event_name"] = i.EventName
	return json.Marshal(flat)
}

// Prompt returns the current value of extra["prompt"], or "" if unset.
func (i *Invocation) Prompt() string {
	if i.Extra == nil {
		return ""
	}
	s, _ := i.Extra["prompt"].(string)
	return s
}

// SetPrompt rewrites extra["prompt"] for subsequent hooks in the chain.
func (i *Invocation) SetPrompt(p string) {
	if i.Extra == nil {
		i.Extra = map[string]any{}
	}
	i.Extra["prompt"] = p
}

// Decision is a permission decision carried in a hook's parsed output.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
	DecisionBlock Decision = "block"
	DecisionAsk   Decision = "ask"
)

// blocking reports whether this decision short-circuits a chain (spec §3:
// "A blocking outcome is defined by exit_code == 2 or
// parsed.decision in {block, deny}").
func (d Decision) blocking() bool {
	return d == DecisionBlock || d == DecisionDeny
}

// HookSpecificOutput carries event-specific fields from a hook's parsed
// stdout (spec §3, §6).
type HookSpecificOutput struct {
	PermissionDecision       Decision       `json:"permission_decision,omitempty"`
	PermissionDecisionReason string         `json:"permission_decision_reason,omitempty"`
	UpdatedInput             map[string]any `json:"updated_input,omitempty"`
	AdditionalContext        string         `json:"additional_context,omitempty"`
}

// Output is the optional JSON object a hook may emit on stdout (spec §3, §6).
type Output struct {
	Decision           string              `json:"decision,omitempty"`
	Reason             string              `json:"reason,omitempty"`
	Feedback           string              `json:"feedback,omitempty"`
	Prompt             string              `json:"prompt,omitempty"`
	HookSpecificOutput *HookSpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// decision returns the top-level decision as a typed Decision.
func (o *Output) decision() Decision {
	if o == nil {
		return ""
	}
	return Decision(o.Decision)
}

// Outcome is the fully-classified result of running one HookSpec (spec §3).
type Outcome struct {
	Spec     HookSpec
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Parsed   *Output
}

// Blocking reports whether this outcome should short-circuit its chain:
// exit_code == 2, or a parsed decision of block/deny (spec §3).
func (o Outcome) Blocking() bool {
	if o.ExitCode == 2 {
		return true
	}
	return o.Parsed.decision().blocking()
}

// BlockReason extracts a human-readable reason for a blocking outcome:
// the parsed reason if present, else the first line of stderr (spec §8 S2/S3).
func (o Outcome) BlockReason() string {
	if o.Parsed != nil && o.Parsed.Reason != "" {
		return o.Parsed.Reason
	}
	return firstLine(string(o.Stderr))
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
