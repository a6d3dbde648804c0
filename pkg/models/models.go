// Package models provides shared wire types for the benchrun validation
// service protocols and the run-metrics record. These types mirror the JSON
// exchanged on the socket/HTTP boundary and are stable for use by pkg/client
// and other consumers.
package models

// Action names a build-tool invocation the validation service can perform.
type Action string

const (
	ActionTest   Action = "test"
	ActionCheck  Action = "check"
	ActionFormat Action = "fmt"
)

// Valid reports whether the action is one the service dispatches.
func (a Action) Valid() bool {
	switch a {
	case ActionTest, ActionCheck, ActionFormat:
		return true
	}
	return false
}

// SocketRequest is the request body on the Unix-socket protocol.
type SocketRequest struct {
	Action Action `json:"action"`
	Filter string `json:"filter,omitempty"`
}

// TestSummary is the pass/fail breakdown extracted from build-tool output.
// Field names follow the socket protocol ("total_tests").
type TestSummary struct {
	Total  int `json:"total_tests"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// SocketResponse is the response body on the Unix-socket protocol.
type SocketResponse struct {
	ExitCode    int          `json:"exit_code"`
	Output      string       `json:"output"`
	Error       string       `json:"error,omitempty"`
	TestResults *TestSummary `json:"test_results,omitempty"`
}

// TestRequest is the body of POST /test on the HTTP protocol.
type TestRequest struct {
	ProjectName string `json:"project_name"`
}

// HTTPSummary is the summary shape on the HTTP protocol, which uses "total"
// rather than the socket protocol's "total_tests".
type HTTPSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// TestResult is the inner object of the HTTP /test response.
type TestResult struct {
	ExitCode int          `json:"exit_code"`
	Summary  *HTTPSummary `json:"summary,omitempty"`
}

// TestResponse is the body of the HTTP /test response.
type TestResponse struct {
	TestResult TestResult `json:"test_result"`
	Error      string     `json:"error,omitempty"`
}

// RunMetrics is the terminal record of one orchestrated run, written exactly
// once per run as run-metrics.json in the spec directory.
type RunMetrics struct {
	Runner      string       `json:"runner"`
	StartTime   string       `json:"start_time"`
	EndTime     string       `json:"end_time"`
	ElapsedMs   int64        `json:"elapsed_ms"`
	ExitCode    *int         `json:"exit_code"`
	TestResults *TestSummary `json:"test_results"`
}
