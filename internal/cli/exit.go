package cli

import "fmt"

// ExitCodeError carries a specific process exit code through cobra's error
// return. The run command uses it so the orchestrator can mirror the agent's
// exit code instead of collapsing every failure to 1.
type ExitCodeError struct {
	Code int
}

func (e ExitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}
