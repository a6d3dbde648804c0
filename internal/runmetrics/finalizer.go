// Package runmetrics writes the terminal run-metrics record. Real agent
// subprocesses can fire an error event and a close event for the same
// failure; the finalizer guarantees the record is written exactly once no
// matter how many completion signals arrive.
package runmetrics

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ankittk/benchrun/pkg/models"
)

// FileName is the record written into the spec directory.
const FileName = "run-metrics.json"

const (
	statePending int32 = iota
	stateFinalized
)

// Finalizer accumulates the terminal record for one run and writes it once.
// The Pending -> Finalized transition is a single compare-and-set; later
// calls are silent no-ops regardless of their arguments.
type Finalizer struct {
	runner  string
	specDir string
	start   time.Time
	state   atomic.Int32
}

// New starts the run clock for the named runner.
func New(runner, specDir string) *Finalizer {
	return &Finalizer{runner: runner, specDir: specDir, start: time.Now().UTC()}
}

// StartTime returns when the run clock started.
func (f *Finalizer) StartTime() time.Time { return f.start }

// Finalized reports whether the record has been written.
func (f *Finalizer) Finalized() bool { return f.state.Load() == stateFinalized }

// Finalize writes run-metrics.json with the given exit code and optional
// test results. The first call wins; every subsequent call returns the
// record of the first call's state with ok=false and does not touch disk.
func (f *Finalizer) Finalize(exitCode *int, testResults *models.TestSummary) (models.RunMetrics, bool) {
	if !f.state.CompareAndSwap(statePending, stateFinalized) {
		return models.RunMetrics{}, false
	}
	end := time.Now().UTC()
	m := models.RunMetrics{
		Runner:      f.runner,
		StartTime:   f.start.Format(time.RFC3339Nano),
		EndTime:     end.Format(time.RFC3339Nano),
		ElapsedMs:   end.Sub(f.start).Milliseconds(),
		ExitCode:    exitCode,
		TestResults: testResults,
	}
	path := filepath.Join(f.specDir, FileName)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		slog.Error("marshal run metrics", "err", err)
		return m, true
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		slog.Error("write run metrics", "path", path, "err", err)
		return m, true
	}
	slog.Info("run metrics written", "path", path, "elapsed_ms", m.ElapsedMs)
	return m, true
}
