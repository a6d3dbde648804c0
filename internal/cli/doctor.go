package cli

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/ankittk/benchrun/internal/runner"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external prerequisites (build tool, log filters, agent CLIs)",
		RunE: func(cmd *cobra.Command, args []string) error {
			required := []string{"moon", "jq", "yq"}
			missingRequired := false
			for _, bin := range required {
				if _, err := exec.LookPath(bin); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "✗ %s not found on PATH (required)\n", bin)
					missingRequired = true
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", bin)
				}
			}
			for _, agent := range runner.Names() {
				if _, err := exec.LookPath(agent); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "- %s not found on PATH (agent unavailable)\n", agent)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", agent)
				}
			}
			if missingRequired {
				return fmt.Errorf("missing required binaries")
			}
			return nil
		},
	}
}
