package main

import (
	"context"
	"fmt"
	"os"

	"github.com/wenmine/tiny-engine/internal/cli"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "blockrender:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

// run executes the root command with args.
func run(ctx context.Context, args []string) error {
	cmd := cli.NewRootCommand()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}
