package store

import "time"

// RunRecord is one orchestrated run as persisted in the run history. Test
// counts are nil when the run produced no recognizable summary.
type RunRecord struct {
	RunID       int64     `json:"run_id"`
	Runner      string    `json:"runner"`
	SpecDir     string    `json:"spec_dir"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	ExitCode    *int      `json:"exit_code,omitempty"`
	TestsTotal  *int      `json:"tests_total,omitempty"`
	TestsPassed *int      `json:"tests_passed,omitempty"`
	TestsFailed *int      `json:"tests_failed,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}
