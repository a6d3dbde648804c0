// Package orchestrator drives one benchmark run end to end: resolve the
// agent profile, launch the agent against the spec directory, finalize the
// event log, validate the submission, and write the terminal metrics record
// exactly once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ankittk/benchrun/internal/config"
	"github.com/ankittk/benchrun/internal/runlog"
	"github.com/ankittk/benchrun/internal/runmetrics"
	"github.com/ankittk/benchrun/internal/runner"
	"github.com/ankittk/benchrun/internal/store"
	"github.com/ankittk/benchrun/internal/validate"
	"github.com/ankittk/benchrun/pkg/models"
)

// Request describes one run, built from CLI arguments and validated before
// any process is spawned.
type Request struct {
	SpecDir   string
	AgentName string
	Resume    bool
}

// Options carries the run's collaborators and settings.
type Options struct {
	Config config.Config
	// Endpoint switches validation to remote mode when non-empty.
	Endpoint string
	// SkipValidation runs launch + log finalize only; the process exit code
	// then mirrors the agent's.
	SkipValidation bool
	// Store receives the run record after finalize; optional, best-effort.
	Store store.Store
}

// Outcome is what the CLI needs to set the process exit code.
type Outcome struct {
	ExitCode int
	Metrics  models.RunMetrics
}

// Run executes the pipeline sequentially: each stage consumes the previous
// stage's output, so nothing runs concurrently with anything else. Every
// completion path after a successful spawn reaches the metrics finalizer,
// which guarantees the record is written once.
func Run(ctx context.Context, req Request, opts Options) (Outcome, error) {
	if err := validateRequest(req); err != nil {
		return Outcome{ExitCode: 1}, err
	}

	profile, err := runner.Resolve(req.AgentName, opts.Config)
	if err != nil {
		return Outcome{ExitCode: 1}, err
	}

	if req.Resume {
		token, err := runner.ResolveToken(runner.LogPath(req.SpecDir), profile.Family)
		if err != nil {
			// Resume failures abort before any process is spawned.
			return Outcome{ExitCode: 1}, err
		}
		profile = runner.ApplyResume(profile, token)
		slog.Info("resuming session", "agent", req.AgentName, "token", token)
	}

	fin := runmetrics.New(req.AgentName, req.SpecDir)

	out, err := runner.Launch(ctx, profile, req.SpecDir)
	if err != nil {
		if errors.Is(err, runner.ErrSpawnFailure) {
			// Nothing ran; no metrics record for a run that never started.
			return Outcome{ExitCode: 1}, err
		}
		exit := 1
		m, _ := fin.Finalize(&exit, nil)
		recordRun(ctx, opts.Store, req, m)
		return Outcome{ExitCode: 1, Metrics: m}, err
	}

	if out.ExitCode != 0 || out.Signal != "" {
		// Abnormal termination short-circuits log finalization and
		// validation; the run is complete with failure status.
		exit := out.ExitCode
		m, _ := fin.Finalize(&exit, nil)
		recordRun(ctx, opts.Store, req, m)
		return Outcome{ExitCode: out.ExitCode, Metrics: m}, nil
	}

	var summary *models.TestSummary
	exit := out.ExitCode

	if err := runlog.Finalize(ctx, req.SpecDir); err != nil {
		// Conversion failure degrades test results to absent; timing and
		// exit code for the completed run are still recorded.
		slog.Warn("log finalization failed", "err", err)
		m, _ := fin.Finalize(&exit, nil)
		recordRun(ctx, opts.Store, req, m)
		return Outcome{ExitCode: exit, Metrics: m}, err
	}

	if !opts.SkipValidation {
		ex := validate.Executor{Tool: opts.Config.ToolCommand, Endpoint: resolveEndpoint(opts)}
		res, err := ex.Validate(ctx, req.SpecDir)
		if err != nil {
			m, _ := fin.Finalize(&exit, nil)
			recordRun(ctx, opts.Store, req, m)
			return Outcome{ExitCode: 1, Metrics: m}, err
		}
		summary = res.Summary
		if res.ExitCode != 0 {
			exit = res.ExitCode
		}
	}

	m, _ := fin.Finalize(&exit, summary)
	recordRun(ctx, opts.Store, req, m)
	return Outcome{ExitCode: exit, Metrics: m}, nil
}

func validateRequest(req Request) error {
	info, err := os.Stat(req.SpecDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("spec directory %s does not exist", req.SpecDir)
	}
	if _, err := os.Stat(runner.PromptPath(req.SpecDir)); err != nil {
		return fmt.Errorf("spec directory %s has no %s", req.SpecDir, runner.PromptFileName)
	}
	return nil
}

func resolveEndpoint(opts Options) string {
	if opts.Endpoint != "" {
		return opts.Endpoint
	}
	if env := os.Getenv("BENCHRUN_VALIDATION_URL"); env != "" {
		return env
	}
	return opts.Config.ValidationURL
}

// recordRun appends the finalized run to the history store. Best-effort: a
// store failure never changes the run outcome.
func recordRun(ctx context.Context, st store.Store, req Request, m models.RunMetrics) {
	if st == nil {
		return
	}
	rec := store.RunRecord{
		Runner:    m.Runner,
		SpecDir:   req.SpecDir,
		ElapsedMs: m.ElapsedMs,
		ExitCode:  m.ExitCode,
	}
	rec.StartTime, _ = parseRFC3339(m.StartTime)
	rec.EndTime, _ = parseRFC3339(m.EndTime)
	if m.TestResults != nil {
		total, passed, failed := m.TestResults.Total, m.TestResults.Passed, m.TestResults.Failed
		rec.TestsTotal, rec.TestsPassed, rec.TestsFailed = &total, &passed, &failed
	}
	if _, err := st.RecordRun(ctx, rec); err != nil {
		slog.Warn("record run in history store failed", "err", err)
	}
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
