// Package commands implements the slash-command registry: discovery
// and front-matter parsing of template files, and substitution of
// $ARGUMENTS/$1..$N tokens into their bodies.
package commands

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
)

// StatusLineCommandName is the reserved built-in command that the
// prompt pipeline honors even without a matching template file (spec §4.2).
const StatusLineCommandName = "statusline"

// Command is a parsed slash-command template (spec §3 "SlashCommand").
type Command struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Body        string `yaml:"-"`
	FilePath    string `yaml:"-"`
}

// Registry is the immutable set of commands discovered for one project
// directory (spec §4.2, §5: constructed once per invocation, read-only
// thereafter).
type Registry struct {
	commands map[string]Command
}

// Load discovers commands from ${projectDir}/.codexplus/commands/*.md
// then ${projectDir}/.claude/commands/*.md, first occurrence per name
// wins (.codexplus takes precedence, spec §4.2, §9).
func Load(projectDir string) *Registry {
	reg := &Registry{commands: map[string]Command{}}

	for _, dir := range []string{
		filepath.Join(projectDir, ".codexplus", "commands"),
		filepath.Join(projectDir, ".claude", "commands"),
	} {
		for _, cmd := range loadDir(dir) {
			if _, exists := reg.commands[cmd.Name]; exists {
				continue
			}
			reg.commands[cmd.Name] = cmd
		}
	}

	return reg
}

func loadDir(dir string) []Command {
	matches, err := doublestar.Glob(os.DirFS(dir), "*.md")
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to glob command directory", "dir", dir, "error", err)
		}
		return nil
	}

	var out []Command
	for _, name := range matches {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("failed to read command file", "path", path, "error", err)
			continue
		}

		cmd, ok := parseTemplate(string(content))
		if !ok {
			slog.Warn("command file missing or malformed front-matter, skipping", "path", path)
			continue
		}
		cmd.FilePath = path
		out = append(out, cmd)
	}
	return out
}

// parseTemplate splits a template file into front-matter and body,
// parsing the front-matter as YAML (spec §4.2, §6).
func parseTemplate(content string) (Command, bool) {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	const fence = "---"
	if !strings.HasPrefix(content, fence+"\n") {
		return Command{}, false
	}

	rest := content[len(fence)+1:]
	closeIdx := strings.Index(rest, "\n"+fence)
	if closeIdx == -1 {
		return Command{}, false
	}

	frontmatter := rest[:closeIdx]
	body := strings.TrimPrefix(rest[closeIdx+len(fence)+1:], "\n")

	var cmd Command
	if err := yaml.Unmarshal([]byte(frontmatter), &cmd); err != nil {
		return Command{}, false
	}
	if cmd.Name == "" {
		return Command{}, false
	}
	cmd.Body = body

	return cmd, true
}

// Lookup returns the command registered under name, if any.
func (r *Registry) Lookup(name string) (Command, bool) {
	if r == nil {
		return Command{}, false
	}
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Names returns the registered command names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Invocation is a parsed slash-command line: the leading "/" stripped,
// split into name and raw argument string (spec §4.2 "Detection").
type Invocation struct {
	Name string
	Args string
}

// Parse detects whether input is a slash-command invocation. The
// first whitespace run separates name from arguments; both are
// trimmed. ok is false for any input that doesn't begin with "/".
func Parse(input string) (inv Invocation, ok bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return Invocation{}, false
	}
	trimmed = trimmed[1:]

	name, args := trimmed, ""
	if i := strings.IndexFunc(trimmed, unicode.IsSpace); i >= 0 {
		name, args = trimmed[:i], trimmed[i:]
	}
	return Invocation{Name: strings.TrimSpace(name), Args: strings.TrimSpace(args)}, true
}

// Expand substitutes $ARGUMENTS and $1..$N into body in a single
// left-to-right pass; the replacement text is never re-scanned (spec §4.2).
func Expand(body, args string) string {
	positional := strings.Fields(args)

	var out strings.Builder
	out.Grow(len(body))

	for i := 0; i < len(body); {
		if body[i] != '$' {
			out.WriteByte(body[i])
			i++
			continue
		}

		if strings.HasPrefix(body[i:], "$ARGUMENTS") {
			out.WriteString(args)
			i += len("$ARGUMENTS")
			continue
		}

		j := i + 1
		for j < len(body) && body[j] >= '0' && body[j] <= '9' {
			j++
		}
		if j > i+1 {
			n, err := strconv.Atoi(body[i+1 : j])
			if err == nil && n >= 1 && n <= len(positional) {
				out.WriteString(positional[n-1])
			}
			// Unset positions, or a malformed number, substitute to "".
			i = j
			continue
		}

		out.WriteByte(body[i])
		i++
	}

	return out.String()
}
