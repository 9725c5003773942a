// Command agentcore is a minimal host CLI exercising the extension
// core: settings discovery, slash commands, hooks, and the tool
// orchestrator. Model dispatch, transport, and sandboxing themselves
// are external collaborators (see SPEC_FULL.md) and are not
// implemented here.
package main

import (
	"context"
	"os"
)

func main() {
	ctx := context.Background()
	if err := Execute(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]...); err != nil {
		os.Exit(1)
	}
}
