package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ankittk/benchrun/internal/config"
	"github.com/ankittk/benchrun/internal/validate"
)

func newValidateCmd() *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "validate <spec-dir>",
		Short: "Run only the validation stage against a spec directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			cfg, err := config.Load(home)
			if err != nil {
				return err
			}
			ex := validate.Executor{Tool: cfg.ToolCommand, Endpoint: endpoint}
			res, err := ex.Validate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.Summary != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "total: %d, passed: %d, failed: %d\n",
					res.Summary.Total, res.Summary.Passed, res.Summary.Failed)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "no test summary in tool output")
			}
			if res.ExitCode != 0 {
				return ExitCodeError{Code: res.ExitCode}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Remote validation service URL (default: run the build tool locally)")

	return cmd
}
