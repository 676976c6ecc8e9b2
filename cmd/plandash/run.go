package main

import (
	"context"
	"fmt"
	"os"

	"github.com/plandash/plandash/internal/cli"
)

// run executes the command tree and maps the outcome to a process exit
// code. Split out of main so tests can drive it without spawning a process.
func run(ctx context.Context, args []string) int {
	cmd := cli.NewRootCmd(version)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "plandash:", err)
		return 1
	}
	return 0
}
