package hooks

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ErrTimeout is returned by Runner.Run when a hook exceeds its configured
// timeout. Besides a timeout, Run only returns an error when the child
// cannot be started for a reason other than a missing binary.
var ErrTimeout = errors.New("hook timed out")

// Runner executes a single HookSpec as a child process (spec §4.3).
type Runner struct {
	// ProjectDir is the resolved project directory: the child's working
	// directory, the root for relative command resolution, and the
	// value exported as CLAUDE_PROJECT_DIR.
	ProjectDir string
	// Env is the base environment passed to the child, in addition to
	// CLAUDE_PROJECT_DIR.
	Env []string
}

// NewRunner constructs a Runner for the given project directory.
func NewRunner(projectDir string, env []string) *Runner {
	return &Runner{ProjectDir: projectDir, Env: env}
}

// Run resolves and executes one hook, feeding it inputJSON on stdin and
// waiting at most spec.Timeout(). It returns an Outcome for every
// completed or no-op child process, and a non-nil error only on timeout
// or a spawn failure that isn't a tolerated missing-binary case.
func (r *Runner) Run(ctx context.Context, spec HookSpec, inputJSON []byte) (Outcome, error) {
	if spec.Kind != KindCommand {
		// Non-command kinds are silently ignored (spec §3).
		return Outcome{Spec: spec, ExitCode: 0}, nil
	}

	resolved, noop := r.resolveCommand(spec.Command)
	if noop {
		slog.Warn("hook binary not found, treating as no-op", "command", spec.Command)
		return Outcome{Spec: spec, ExitCode: 0}, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, spec.Timeout())
	defer cancel()

	cmd := r.buildCmd(timeoutCtx, resolved)
	cmd.Dir = r.ProjectDir
	cmd.Env = append(append([]string{}, r.Env...), "CLAUDE_PROJECT_DIR="+r.ProjectDir)
	// Bound how long Wait keeps reading stdout/stderr once the child has
	// been killed or has exited: a grandchild that inherited the pipes
	// (e.g. a script's "sleep") would otherwise hold Wait open past the
	// timeout.
	cmd.WaitDelay = time.Second

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("hook %q: create stdin pipe: %w", spec.Command, err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || os.IsNotExist(err) {
			slog.Warn("hook binary not found on PATH, treating as no-op", "command", spec.Command)
			return Outcome{Spec: spec, ExitCode: 0}, nil
		}
		return Outcome{}, fmt.Errorf("hook %q: start: %w", spec.Command, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := stdinPipe.Write(inputJSON); err != nil {
			slog.Debug("hook stdin write failed (broken pipe is non-fatal)", "command", spec.Command, "error", err)
		}
		_ = stdinPipe.Close()
	}()

	waitErr := cmd.Wait()
	wg.Wait()

	if timeoutCtx.Err() == context.DeadlineExceeded {
		return Outcome{}, fmt.Errorf("hook %q: %w", spec.Command, ErrTimeout)
	}

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// The child itself exited 0; only its inherited pipes were cut off.
		waitErr = nil
	}
	exitCode := exitCodeOf(waitErr)

	outcome := Outcome{
		Spec:     spec,
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}
	outcome.Parsed = parseOutput(stdout.Bytes())
	return outcome, nil
}

// exitCodeOf extracts the process exit code. Signal termination without
// an explicit code defaults to 1 (spec §3 invariant).
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return 1
	}
	return 1
}

// parseOutput parses stdout as a HookOutput JSON object. Parse failure
// (including empty stdout) is not an error, just an absent Parsed field
// (spec §4.3).
func parseOutput(stdout []byte) *Output {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return nil
	}
	var out Output
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil
	}
	return &out
}

// resolveCommand implements spec §4.3's command resolution:
//   - absolute path: used verbatim
//   - contains a path separator: resolved relative to ProjectDir
//   - bare name: searched in .claude/hooks then .codexplus/hooks
//     (per the adopted search order, spec §9); falls back to PATH lookup
//
// noop is true when the resolved path does not exist on disk and is not
// a bare name (spec §4.3: tolerate partially configured projects).
func (r *Runner) resolveCommand(command string) (resolved string, noop bool) {
	if filepath.IsAbs(command) {
		return command, pathMissingNonBare(command)
	}

	if strings.ContainsRune(command, filepath.Separator) || strings.ContainsRune(command, '/') {
		candidate := filepath.Join(r.ProjectDir, command)
		return candidate, pathMissingNonBare(candidate)
	}

	for _, dir := range []string{".claude/hooks", ".codexplus/hooks"} {
		candidate := filepath.Join(r.ProjectDir, dir, command)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, false
		}
	}

	// Bare name: PATH lookup, left to exec.Command/CommandContext.
	return command, false
}

func pathMissingNonBare(path string) bool {
	_, err := os.Stat(path)
	return os.IsNotExist(err)
}

// buildCmd selects the interpreter for a resolved command path per spec
// §4.3: directly invoke an executable-bit binary, otherwise dispatch by
// extension, falling back to direct invocation for unknown extensions.
func (r *Runner) buildCmd(ctx context.Context, resolved string) *exec.Cmd {
	if info, err := os.Stat(resolved); err == nil && !info.IsDir() && isUserExecutable(info) {
		return exec.CommandContext(ctx, resolved)
	}

	switch strings.ToLower(filepath.Ext(resolved)) {
	case ".py":
		return exec.CommandContext(ctx, cmp.Or(pythonInterpreter(), "python3"), resolved)
	case ".sh":
		return exec.CommandContext(ctx, cmp.Or(os.Getenv("SHELL"), "/bin/sh"), resolved)
	case ".js":
		return exec.CommandContext(ctx, "node", resolved)
	case ".bat", ".cmd":
		return exec.CommandContext(ctx, cmp.Or(os.Getenv("ComSpec"), "cmd.exe"), "/C", resolved)
	case ".ps1":
		return exec.CommandContext(ctx, "powershell.exe", "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Restricted", "-File", resolved)
	default:
		return exec.CommandContext(ctx, resolved)
	}
}

func pythonInterpreter() string {
	if _, err := exec.LookPath("python3"); err == nil {
		return "python3"
	}
	if _, err := exec.LookPath("python"); err == nil {
		return "python"
	}
	return ""
}

func isUserExecutable(info os.FileInfo) bool {
	if runtime.GOOS == "windows" {
		return false
	}
	return info.Mode()&0o100 != 0
}
