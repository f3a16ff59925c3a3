package cli

import (
	"fmt"
	"io"

	"github.com/iSevenDays/motleycrew/internal/app"
	"github.com/iSevenDays/motleycrew/internal/crew"
	"github.com/iSevenDays/motleycrew/internal/graphstore/memory"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	var (
		flags crewFlags
		dot   bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the recipe dependency graph of a crew file",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.build(cmd, memory.New())
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			deps, err := c.Dependencies(cmd.Context())
			if err != nil {
				return err
			}
			if dot {
				return writeDOT(cmd.OutOrStdout(), c, deps)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Recipes:")
			for _, r := range c.Recipes() {
				_, _ = fmt.Fprintf(out, "  %s  done=%t\n", r.Name(), r.Done())
			}
			_, _ = fmt.Fprintln(out, "Dependencies:")
			for _, d := range deps {
				_, _ = fmt.Fprintf(out, "  %s -> %s\n", d.Upstream.Name(), d.Downstream.Name())
			}
			avail, err := c.AvailableTaskRecipes(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, "Available:")
			for _, r := range avail {
				_, _ = fmt.Fprintf(out, "  %s\n", r.Name())
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&dot, "dot", false, "Print the graph in Graphviz DOT format")
	return cmd
}

func writeDOT(w io.Writer, c *app.Crew, deps []crew.Dependency) error {
	if _, err := fmt.Fprintln(w, "digraph crew {"); err != nil {
		return err
	}
	for _, r := range c.Recipes() {
		if _, err := fmt.Fprintf(w, "  %q;\n", r.Name()); err != nil {
			return err
		}
	}
	for _, d := range deps {
		if _, err := fmt.Fprintf(w, "  %q -> %q;\n", d.Upstream.Name(), d.Downstream.Name()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}
