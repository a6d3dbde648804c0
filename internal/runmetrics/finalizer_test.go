package runmetrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ankittk/benchrun/pkg/models"
)

func readMetrics(t *testing.T, dir string) models.RunMetrics {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	var m models.RunMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal metrics: %v", err)
	}
	return m
}

func TestFinalize_writesOnce(t *testing.T) {
	dir := t.TempDir()
	f := New("codex", dir)

	zero := 0
	m, ok := f.Finalize(&zero, &models.TestSummary{Total: 5, Passed: 5})
	if !ok {
		t.Fatal("first finalize should win")
	}
	if m.Runner != "codex" || m.ExitCode == nil || *m.ExitCode != 0 {
		t.Errorf("metrics: %+v", m)
	}

	// A second completion signal with different arguments must not change
	// the on-disk file.
	one := 1
	if _, ok := f.Finalize(&one, nil); ok {
		t.Fatal("second finalize should be a no-op")
	}
	got := readMetrics(t, dir)
	if got.ExitCode == nil || *got.ExitCode != 0 {
		t.Errorf("file changed by second finalize: %+v", got)
	}
	if got.TestResults == nil || got.TestResults.Total != 5 {
		t.Errorf("test results lost: %+v", got)
	}
}

func TestFinalize_concurrentSignals(t *testing.T) {
	dir := t.TempDir()
	f := New("claude", dir)

	var wg sync.WaitGroup
	wins := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			code := i
			_, ok := f.Finalize(&code, nil)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Errorf("winners: got %d, want exactly 1", won)
	}
	if !f.Finalized() {
		t.Error("finalizer should report finalized")
	}
}

func TestFinalize_nilExitCode(t *testing.T) {
	dir := t.TempDir()
	f := New("goose", dir)
	m, ok := f.Finalize(nil, nil)
	if !ok {
		t.Fatal("finalize failed")
	}
	if m.ExitCode != nil || m.TestResults != nil {
		t.Errorf("metrics: %+v", m)
	}
	got := readMetrics(t, dir)
	if got.ExitCode != nil {
		t.Errorf("exit_code should be null: %+v", got)
	}
	if got.ElapsedMs < 0 {
		t.Errorf("elapsed: %d", got.ElapsedMs)
	}
}
