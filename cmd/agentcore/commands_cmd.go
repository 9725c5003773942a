package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docker/agentcore/pkg/commands"
)

func newCommandsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Inspect the discovered slash-command registry",
	}
	cmd.AddCommand(newCommandsListCmd())
	return cmd
}

func newCommandsListCmd() *cobra.Command {
	var projectDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the slash commands discovered under .claude/commands and .codexplus/commands",
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

			reg := commands.Load(absDir)
			names := reg.Names()
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no commands found")
				return nil
			}
			for _, name := range names {
				c, _ := reg.Lookup(name)
				fmt.Fprintf(cmd.OutOrStdout(), "/%s\t%s\t%s\n", c.Name, c.Description, c.FilePath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectDir, "project-dir", "C", "", "Project directory to discover commands from")

	return cmd
}
