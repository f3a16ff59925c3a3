package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/iSevenDays/motleycrew/internal/config"
	"github.com/iSevenDays/motleycrew/internal/graphstore/sqlite"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Verify the home directory, graph store and worker dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())

			var problems []string

			if err := os.MkdirAll(home, 0o755); err != nil {
				problems = append(problems, fmt.Sprintf("home %s not writable: %v", home, err))
			} else if st, err := sqlite.Open(home); err != nil {
				problems = append(problems, fmt.Sprintf("sqlite graph store: %v", err))
			} else {
				_ = st.Close()
			}

			// Sandboxed subprocess workers fall back to running unconfined without bwrap.
			if runtime.GOOS == "linux" {
				if _, err := exec.LookPath("bwrap"); err != nil {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "warning: bwrap not found on PATH; sandboxed workers run unconfined")
				}
			}

			if file != "" {
				cf, err := config.Load(file)
				if err != nil {
					problems = append(problems, err.Error())
				} else {
					for _, w := range cf.Workers {
						if w.Kind != config.WorkerSubprocess {
							continue
						}
						if _, err := exec.LookPath(w.Command); err != nil {
							problems = append(problems, fmt.Sprintf("worker %q: command %s not found", w.Name, w.Command))
						}
					}
				}
			}

			if len(problems) > 0 {
				for _, p := range problems {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Crew file whose workers to check")
	return cmd
}
