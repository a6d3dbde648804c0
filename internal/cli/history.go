package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ankittk/benchrun/internal/config"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit    int
		dbDriver string
		dbURL    string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			st, err := openStore(home, dbDriver, dbURL)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRUNNER\tSPEC\tSTART\tELAPSED\tEXIT\tTESTS")
			for _, r := range runs {
				exit := "-"
				if r.ExitCode != nil {
					exit = fmt.Sprintf("%d", *r.ExitCode)
				}
				tests := "-"
				if r.TestsTotal != nil && r.TestsPassed != nil && r.TestsFailed != nil {
					tests = fmt.Sprintf("%d/%d", *r.TestsPassed, *r.TestsTotal)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.RunID, r.Runner, r.SpecDir,
					r.StartTime.Local().Format(time.DateTime),
					(time.Duration(r.ElapsedMs) * time.Millisecond).String(),
					exit, tests)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	cmd.Flags().StringVar(&dbDriver, "db-driver", "sqlite", "Run history store driver: sqlite or postgres")
	cmd.Flags().StringVar(&dbURL, "db-url", "", "DB connection string (for postgres; or set DATABASE_URL)")

	return cmd
}
