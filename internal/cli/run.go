package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/iSevenDays/motleycrew/internal/config"
	"github.com/iSevenDays/motleycrew/internal/graphstore"
	"github.com/iSevenDays/motleycrew/internal/otel"
	"github.com/iSevenDays/motleycrew/internal/task"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/multierr"
)

type taskView struct {
	Recipe string `json:"recipe"`
	ID     string `json:"id"`
	Status string `json:"status"`
	Direct bool   `json:"direct,omitempty"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newRunCmd() *cobra.Command {
	var (
		flags       crewFlags
		metricsAddr string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every task recipe in a crew file until no more work is available",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := config.LoggerFrom(ctx)

			c, err := flags.build(cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if metricsAddr != "" {
				stop, err := serveMetrics(ctx, metricsAddr, otel.Config{
					Version: cmd.Root().Version,
					Mode:    string(c.Mode()),
				}, c.Store)
				if err != nil {
					return err
				}
				defer stop()
				log.Info("metrics listening", "addr", metricsAddr)
			}

			done, runErr := c.Run(ctx)
			views := make([]taskView, 0, len(done)+len(c.FailedTasks()))
			for _, t := range done {
				views = append(views, viewOf(t))
			}
			for _, t := range c.FailedTasks() {
				views = append(views, viewOf(t))
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(views); err != nil {
					return multierr.Append(runErr, err)
				}
				return runErr
			}
			for _, v := range views {
				if v.Error != "" {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-8s %s\n", v.Recipe, v.Status, v.Error)
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-8s %v\n", v.Recipe, v.Status, v.Output)
			}
			return runErr
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9464)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print tasks as JSON")
	return cmd
}

func viewOf(t *task.Task) taskView {
	v := taskView{Recipe: t.Name, ID: t.ID, Status: string(t.Status), Direct: t.Direct, Output: t.Output}
	if t.Err != nil {
		v.Error = t.Err.Error()
	}
	return v
}

// serveMetrics starts the Prometheus endpoint and returns a function that shuts it down.
func serveMetrics(ctx context.Context, addr string, cfg otel.Config, store graphstore.Store) (func(), error) {
	handler, err := otel.InitMeterProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	if err := otel.InitMetricsWithTaskCount(ctx, taskCounter(store)); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", otelhttp.NewHandler(handler, "metrics"))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			config.LoggerFrom(ctx).Error("metrics server", "err", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}

// taskCounter counts persisted Task nodes by status.
func taskCounter(store graphstore.Store) otel.TaskCountFunc {
	return func() (created, running, done, failed int64) {
		nodes, err := store.ListNodes(context.Background(), task.TaskLabel)
		if err != nil {
			return
		}
		for _, n := range nodes {
			switch task.Status(n.Prop("status")) {
			case task.StatusCreated:
				created++
			case task.StatusRunning:
				running++
			case task.StatusDone:
				done++
			case task.StatusFailed:
				failed++
			}
		}
		return
	}
}
