// Package validate runs the build/test validation step that scores an
// agent's submission, either as a local subprocess or as a request to a
// remote validation service.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ankittk/benchrun/pkg/client"
	"github.com/ankittk/benchrun/pkg/models"
)

// ErrValidationUnreachable covers every remote failure mode: connection
// refused, timeout, non-2xx response, malformed JSON body. The executor does
// not retry; re-running a build/test step is not idempotent with respect to
// timing metrics, so retries belong to the caller.
var ErrValidationUnreachable = errors.New("validation service unreachable")

// DefaultTool is the build tool invoked in local mode.
const DefaultTool = "moon"

// RemoteTimeout bounds one remote validation request.
const RemoteTimeout = 300 * time.Second

// Result is the outcome of one validation invocation. A non-zero ExitCode is
// a legitimate "tests failed" outcome, not a system error. Summary is
// best-effort: nil when the output carried no recognizable summary line.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Summary  *models.TestSummary
}

// Executor runs validation for one spec directory. Endpoint selects remote
// mode when non-empty; Tool defaults to "moon".
type Executor struct {
	Tool     string
	Endpoint string
}

// Validate runs the validation step and extracts a structured result.
func (e Executor) Validate(ctx context.Context, specDir string) (Result, error) {
	if e.Endpoint != "" {
		return e.remote(ctx, specDir)
	}
	return e.local(ctx, specDir)
}

func (e Executor) local(ctx context.Context, specDir string) (Result, error) {
	tool := e.Tool
	if tool == "" {
		tool = DefaultTool
	}
	cmd := exec.CommandContext(ctx, tool, "test")
	cmd.Dir = specDir
	out, err := cmd.CombinedOutput()
	res := Result{Stdout: string(out)}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("run %s test: %w", tool, err)
		}
		// Tool ran and failed: tests failed, carry the exit code.
		res.ExitCode = exitErr.ExitCode()
	}
	res.Summary = ExtractSummary(res.Stdout)
	slog.Info("local validation done", "spec_dir", specDir, "exit_code", res.ExitCode, "summary_found", res.Summary != nil)
	return res, nil
}

func (e Executor) remote(ctx context.Context, specDir string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, RemoteTimeout)
	defer cancel()

	c := client.New(e.Endpoint)
	resp, err := c.Test(ctx, filepath.Base(specDir))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrValidationUnreachable, err)
	}
	res := Result{ExitCode: resp.TestResult.ExitCode}
	if s := resp.TestResult.Summary; s != nil {
		res.Summary = &models.TestSummary{Total: s.Total, Passed: s.Passed, Failed: s.Failed}
	}
	slog.Info("remote validation done", "endpoint", e.Endpoint, "exit_code", res.ExitCode, "summary_found", res.Summary != nil)
	return res, nil
}
