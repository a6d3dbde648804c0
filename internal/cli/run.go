package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ankittk/benchrun/internal/config"
	"github.com/ankittk/benchrun/internal/orchestrator"
	"github.com/ankittk/benchrun/internal/store"
	"github.com/ankittk/benchrun/internal/store/postgres"
)

func newRunCmd() *cobra.Command {
	var (
		resume         bool
		skipValidation bool
		endpoint       string
		noHistory      bool
		dbDriver       string
		dbURL          string
	)

	cmd := &cobra.Command{
		Use:   "run <spec-dir> <agent>",
		Short: "Run one agent against one spec directory and validate the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			cfg, err := config.Load(home)
			if err != nil {
				return err
			}

			var st store.Store
			if !noHistory {
				st, err = openStore(home, dbDriver, dbURL)
				if err != nil {
					// History is auxiliary; a broken store must not block runs.
					slog.Warn("run history store unavailable", "err", err)
				} else {
					defer func() { _ = st.Close() }()
				}
			}

			req := orchestrator.Request{SpecDir: args[0], AgentName: args[1], Resume: resume}
			out, err := orchestrator.Run(cmd.Context(), req, orchestrator.Options{
				Config:         cfg,
				Endpoint:       endpoint,
				SkipValidation: skipValidation,
				Store:          st,
			})
			if err != nil {
				if out.ExitCode > 1 {
					fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
					return ExitCodeError{Code: out.ExitCode}
				}
				return err
			}
			if out.ExitCode != 0 {
				return ExitCodeError{Code: out.ExitCode}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "Resume the prior session recorded in log.jsonl")
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "Skip the build/test validation stage")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Remote validation service URL (default: BENCHRUN_VALIDATION_URL)")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the history store")
	cmd.Flags().StringVar(&dbDriver, "db-driver", "sqlite", "Run history store driver: sqlite or postgres")
	cmd.Flags().StringVar(&dbURL, "db-url", "", "DB connection string (for postgres; or set DATABASE_URL)")

	return cmd
}

func openStore(home, driver, dsn string) (store.Store, error) {
	if driver == "postgres" {
		return postgres.Open(dsn)
	}
	return store.Open(home)
}

// IsExitCode extracts a specific exit code from an error chain.
func IsExitCode(err error) (int, bool) {
	var ec ExitCodeError
	if errors.As(err, &ec) {
		return ec.Code, true
	}
	return 0, false
}
