package hooks

import (
	"log/slog"
	"regexp"
)

// SelectGroups filters groups whose Matcher matches toolName, flattening
// the result to the subset of groups (with their hook order preserved).
// A matcher of "" or "*" matches every tool name. This is how
// ToolOrchestrator applies the PreToolUse/PostToolUse matcher per spec
// §4.6/§9: matcher stays opaque at the Engine layer, and is resolved
// here by the caller for tool-scoped events only.
func SelectGroups(groups []HookGroup, toolName string) []HookGroup {
	var selected []HookGroup
	for _, g := range groups {
		if matchesTool(g.Matcher, toolName) {
			selected = append(selected, g)
		}
	}
	return selected
}

func matchesTool(matcher, toolName string) bool {
	if matcher == "" || matcher == "*" {
		return true
	}
	re, err := regexp.Compile("^(?:" + matcher + ")$")
	if err != nil {
		slog.Warn("invalid hook matcher pattern", "pattern", matcher, "error", err)
		return false
	}
	return re.MatchString(toolName)
}
