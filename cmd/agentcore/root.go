package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docker/agentcore/pkg/logging"
	"github.com/docker/agentcore/pkg/paths"
)

type rootFlags struct {
	debugMode   bool
	logFilePath string
	logFile     io.Closer
	otelEnabled bool
}

// NewRootCmd builds the agentcore command tree (spec §6 "CLI surface").
func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "agentcore",
		Short: "agentcore runs the settings/hooks/command extension core",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := flags.setupLogging(); err != nil {
				slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: logLevel(flags.debugMode),
				})))
			}
			setupOtel(cmd.Context(), flags.otelEnabled)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if flags.logFile != nil {
				return flags.logFile.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.debugMode, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", "", "Path to debug log file (default: ~/.agentcore/agentcore.debug.log; only used with --debug or CODEX_DEBUG_HOOKS)")
	cmd.PersistentFlags().BoolVar(&flags.otelEnabled, "otel", false, "Record tool-call spans with an OpenTelemetry SDK tracer provider")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newHooksCmd())
	cmd.AddCommand(newCommandsCmd())

	return cmd
}

// Execute runs the command tree to completion, matching cobra's error
// into either a silent RuntimeError (already reported by the command
// itself) or a usage error (printed here).
func Execute(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args ...string) error {
	printFirstRunBanner(stderr)

	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return processErr(ctx, err, stderr, rootCmd)
	}
	return nil
}

func processErr(ctx context.Context, err error, stderr io.Writer, rootCmd *cobra.Command) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var runtimeErr RuntimeError
	if errors.As(err, &runtimeErr) {
		// Runtime errors have already been printed by the command itself.
		return err
	}

	fmt.Fprintln(stderr, err)
	fmt.Fprintln(stderr)
	if strings.HasPrefix(err.Error(), "unknown command ") || strings.HasPrefix(err.Error(), "accepts ") {
		_ = rootCmd.Usage()
	}
	return err
}

// setupLogging configures slog. With --debug, logs go to a rotating
// file; otherwise logging is discarded entirely (spec §7: stdout
// carries only the final message or NDJSON events).
func (f *rootFlags) setupLogging() error {
	level := logLevel(f.debugMode || os.Getenv("CODEX_DEBUG_HOOKS") != "")
	if level != slog.LevelDebug {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return nil
	}

	path := cmp.Or(strings.TrimSpace(f.logFilePath), filepath.Join(paths.GetDataDir(), "agentcore.debug.log"))
	logFile, err := logging.NewRotatingFile(path)
	if err != nil {
		return err
	}
	f.logFile = logFile

	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return nil
}

func logLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// RuntimeError wraps an error already reported to the user by the
// command that produced it, so Execute doesn't print it a second time.
type RuntimeError struct {
	Err error
}

func (e RuntimeError) Error() string { return e.Err.Error() }
func (e RuntimeError) Unwrap() error { return e.Err }

// isFirstRun reports whether this is the first invocation of agentcore
// on this machine, atomically creating a marker file to avoid a race
// between concurrently started processes.
func isFirstRun() bool {
	configDir := paths.GetConfigDir()
	markerFile := filepath.Join(configDir, ".agentcore_first_run")

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		slog.Warn("failed to create config directory for first-run marker", "error", err)
		return false
	}

	f, err := os.OpenFile(markerFile, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

func printFirstRunBanner(stderr io.Writer) {
	if !isFirstRun() {
		return
	}
	fmt.Fprintln(stderr, "agentcore: discovering settings, commands, and hooks under .claude/ and .codexplus/")
	fmt.Fprintln(stderr)
}
