package cli

import (
	"github.com/iSevenDays/motleycrew/internal/app"
	"github.com/iSevenDays/motleycrew/internal/config"
	"github.com/iSevenDays/motleycrew/internal/graphstore"
	"github.com/spf13/cobra"
)

// crewFlags are the flags shared by commands that assemble a crew from a crew file.
type crewFlags struct {
	file        string
	store       string
	dsn         string
	mode        string
	maxParallel int
}

func (f *crewFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Crew file (YAML)")
	cmd.Flags().StringVar(&f.store, "store", "", "Graph store driver: memory, sqlite or postgres (overrides the crew file)")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "Graph store DSN (overrides the crew file)")
	cmd.Flags().StringVar(&f.mode, "mode", "", "Scheduling mode: sync or concurrent (overrides the crew file)")
	cmd.Flags().IntVar(&f.maxParallel, "max-parallel", -1, "Maximum concurrent tasks in concurrent mode, 0 = unbounded")
	_ = cmd.MarkFlagRequired("file")
}

func (f *crewFlags) overrides() app.Overrides {
	return app.Overrides{StoreDriver: f.store, DSN: f.dsn, Mode: f.mode, MaxParallel: f.maxParallel}
}

// build loads the crew file and assembles the crew. A nil store opens the configured one.
func (f *crewFlags) build(cmd *cobra.Command, store graphstore.Store) (*app.Crew, error) {
	cf, err := config.Load(f.file)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	return app.Build(ctx, config.MustHomeFrom(ctx), cf, f.overrides(), store, config.LoggerFrom(ctx))
}
