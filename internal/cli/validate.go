package cli

import (
	"fmt"

	"github.com/iSevenDays/motleycrew/internal/graphstore/memory"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var flags crewFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a crew file and print its recipes in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.build(cmd, memory.New())
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			order, err := c.Order(cmd.Context())
			if err != nil {
				return err
			}
			for i, r := range order {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, r.Name())
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
