package main

import (
	"context"
	"fmt"
	"os"

	"github.com/iSevenDays/motleycrew/internal/cli"
)

func Run(ctx context.Context, args []string) int {
	root := cli.NewRootCmd(Version)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		// cobra prints usage for flag errors.
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}
