package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docker/agentcore/pkg/hooks"
	"github.com/docker/agentcore/pkg/settings"
)

func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Inspect and exercise the configured hooks",
	}
	cmd.AddCommand(newHooksTestCmd())
	return cmd
}

func newHooksTestCmd() *cobra.Command {
	var projectDir string
	var eventName string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run the configured hooks for one event against a synthetic invocation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if projectDir == "" {
				wd, err := os.Getwd()
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					return RuntimeError{Err: err}
				}
				projectDir = wd
			}
			absDir, err := filepath.Abs(projectDir)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return RuntimeError{Err: err}
			}

			cfg, err := settings.Load(homeDirOrEmpty(), absDir)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", err)
				cfg = &settings.Settings{}
			}

			event := hooks.EventName(eventName)
			groups := cfg.HookConfig().Groups(event)
			if len(groups) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no hooks configured for %s\n", event)
				return nil
			}

			engine := hooks.NewEngine(hooks.NewRunner(absDir, os.Environ()))
			inv := &hooks.Invocation{
				SessionID: uuid.NewString(),
				Cwd:       absDir,
				Extra:     map[string]any{"prompt": "test invocation from `agentcore hooks test`"},
			}

			result, err := engine.Run(cmd.Context(), event, inv, groups)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return RuntimeError{Err: err}
			}

			for i, outcome := range result.Outcomes {
				fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s exit=%d\n", i, outcome.Spec.Command, outcome.ExitCode)
				if outcome.Parsed != nil {
					data, _ := json.MarshalIndent(outcome.Parsed, "    ", "  ")
					fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", data)
				}
			}
			if result.Blocked {
				fmt.Fprintf(cmd.OutOrStdout(), "blocked: %s\n", result.BlockReason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectDir, "project-dir", "C", "", "Project directory to resolve settings/hooks from")
	cmd.Flags().StringVar(&eventName, "event", string(hooks.EventUserPromptSubmit), "Event name to run hooks for")

	return cmd
}
