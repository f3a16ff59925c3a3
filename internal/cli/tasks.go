package cli

import (
	"encoding/json"
	"fmt"

	"github.com/iSevenDays/motleycrew/internal/app"
	"github.com/iSevenDays/motleycrew/internal/config"
	"github.com/iSevenDays/motleycrew/internal/task"
	"github.com/spf13/cobra"
)

func newTasksCmd() *cobra.Command {
	var (
		driver string
		dsn    string
		recipe string
		status string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks persisted in the graph store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := app.OpenStore(ctx, config.MustHomeFrom(ctx), config.StoreConfig{Driver: driver, DSN: dsn})
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			nodes, err := store.ListNodes(ctx, task.TaskLabel)
			if err != nil {
				return err
			}
			views := make([]taskView, 0, len(nodes))
			for _, n := range nodes {
				t, err := task.FromNode(n)
				if err != nil {
					return err
				}
				if recipe != "" && t.Name != recipe {
					continue
				}
				if status != "" && string(t.Status) != status {
					continue
				}
				views = append(views, viewOf(t))
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}
			if len(views) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No tasks.")
				return nil
			}
			for _, v := range views {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s %-8s\n", v.ID, v.Recipe, v.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&driver, "store", "", "Graph store driver: sqlite or postgres (default sqlite under home)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Graph store DSN")
	cmd.Flags().StringVar(&recipe, "recipe", "", "Only tasks of this recipe")
	cmd.Flags().StringVar(&status, "status", "", "Only tasks in this status (created, running, done, failed)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print tasks as JSON")
	return cmd
}
