// Package settings discovers, parses, and merges the layered
// settings.json configuration that drives hooks, the status line, and
// tool permissions.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docker/agentcore/pkg/hooks"
	"github.com/docker/agentcore/pkg/permissions"
)

// Source identifies which layer a merged Settings value came from, for
// diagnostics and tests only; it plays no part in merge semantics.
type Source string

const (
	SourceUserHome         Source = "user"
	SourceProjectClaude    Source = "project-claude"
	SourceProjectCodexplus Source = "project-codexplus"
)

// document is the on-disk shape of a single settings.json file (spec §6).
type document struct {
	Hooks       map[hooks.EventName][]hooks.HookGroup `json:"hooks,omitempty"`
	StatusLine  *hooks.StatusLineConfig               `json:"statusLine,omitempty"`
	Permissions *permissions.Config                   `json:"permissions,omitempty"`
}

// Settings is the merged, immutable configuration produced by Load
// (spec §4.1, §3 "Settings (root)").
type Settings struct {
	Hooks       map[hooks.EventName][]hooks.HookGroup
	StatusLine  *hooks.StatusLineConfig
	Permissions *permissions.Config
}

// HookConfig adapts Settings to the hooks.Config shape consumed by
// hooks.Engine/hooks.SelectGroups.
func (s *Settings) HookConfig() *hooks.Config {
	if s == nil {
		return &hooks.Config{}
	}
	return &hooks.Config{Hooks: s.Hooks, StatusLine: s.StatusLine}
}

// PermissionsChecker builds a permissions.Checker from the merged
// settings, or an empty (always-Ask) checker if none were configured.
func (s *Settings) PermissionsChecker() *permissions.Checker {
	if s == nil {
		return permissions.NewChecker(nil)
	}
	return permissions.NewChecker(s.Permissions)
}

// LoadError wraps a per-file configuration error with the offending
// path (spec §4.1 "Failures"). Callers downgrade any LoadError to "no
// hooks configured" and proceed (spec §7).
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("settings %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// layerPaths returns the three well-known settings.json locations in
// ascending precedence order (spec §4.1, §6).
func layerPaths(homeDir, projectDir string) []string {
	return []string{
		filepath.Join(homeDir, ".claude", "settings.json"),
		filepath.Join(projectDir, ".claude", "settings.json"),
		filepath.Join(projectDir, ".codexplus", "settings.json"),
	}
}

// Load discovers and merges the layered settings.json files for
// homeDir/projectDir. Missing files are skipped silently; a malformed
// file that does exist is reported as a non-fatal *LoadError alongside
// the best-effort merge of the layers that did parse (spec §4.1, §7).
func Load(homeDir, projectDir string) (*Settings, error) {
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve project dir: %w", err)
		}
		projectDir = wd
	}

	merged := &Settings{Hooks: map[hooks.EventName][]hooks.HookGroup{}}
	var firstErr error

	for _, path := range layerPaths(homeDir, projectDir) {
		doc, err := readDocument(path)
		if err != nil {
			if firstErr == nil {
				firstErr = &LoadError{Path: path, Err: err}
			}
			slog.Warn("failed to load settings file, skipping layer", "path", path, "error", err)
			continue
		}
		if doc == nil {
			continue
		}
		mergeInto(merged, doc)
	}

	return merged, firstErr
}

// readDocument reads and parses one settings.json file. A missing file
// returns (nil, nil); any other I/O or parse failure returns a non-nil
// error for the caller to wrap and log.
func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// mergeInto folds doc into merged as the next-highest-precedence layer:
// hooks lists are concatenated (append semantics, invariant #1), while
// status_line and permissions are last-wins replacements.
func mergeInto(merged *Settings, doc *document) {
	for event, groups := range doc.Hooks {
		merged.Hooks[event] = append(merged.Hooks[event], groups...)
	}
	if doc.StatusLine != nil {
		merged.StatusLine = doc.StatusLine
	}
	if doc.Permissions != nil {
		merged.Permissions = doc.Permissions
	}
}
