package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/ankittk/benchrun/internal/config"
	"github.com/ankittk/benchrun/internal/runlog"
	"github.com/ankittk/benchrun/internal/runmetrics"
	"github.com/ankittk/benchrun/internal/runner"
	"github.com/ankittk/benchrun/pkg/models"
)

func requireFilters(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"jq", "yq"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newSpecDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(runner.PromptPath(dir), []byte("implement the parser"), 0o644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	return dir
}

func readMetrics(t *testing.T, dir string) models.RunMetrics {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, runmetrics.FileName))
	if err != nil {
		t.Fatalf("read run metrics: %v", err)
	}
	var m models.RunMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal run metrics: %v", err)
	}
	return m
}

func TestRun_fullPipeline(t *testing.T) {
	requireFilters(t)
	specDir := newSpecDir(t)
	agent := writeScript(t, "agent.sh", `echo '{"session_id":"s-1","type":"system"}'
echo '{"type":"result","ok":true}'
`)
	tool := writeScript(t, "moon.sh", `echo "Total tests: 6, passed: 6, failed: 0"`)

	cfg := config.Config{
		ToolCommand: tool,
		Agents:      map[string]config.AgentOverride{"claude": {Command: agent}},
	}
	out, err := Run(context.Background(), Request{SpecDir: specDir, AgentName: "claude"}, Options{Config: cfg})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ExitCode != 0 {
		t.Errorf("exit code: %d", out.ExitCode)
	}

	m := readMetrics(t, specDir)
	if m.Runner != "claude" {
		t.Errorf("runner: %q", m.Runner)
	}
	if m.ExitCode == nil || *m.ExitCode != 0 {
		t.Errorf("exit_code: %v", m.ExitCode)
	}
	if m.TestResults == nil || m.TestResults.Total != 6 || m.TestResults.Passed != 6 {
		t.Errorf("test_results: %+v", m.TestResults)
	}
	if _, err := os.Stat(filepath.Join(specDir, "log.yaml")); err != nil {
		t.Errorf("finalized log missing: %v", err)
	}
}

func TestRun_failingValidationSetsExitCode(t *testing.T) {
	requireFilters(t)
	specDir := newSpecDir(t)
	agent := writeScript(t, "agent.sh", `echo '{"session_id":"s-1"}'`)
	tool := writeScript(t, "moon.sh", `echo "Total tests: 6, passed: 4, failed: 2"
exit 1`)

	cfg := config.Config{
		ToolCommand: tool,
		Agents:      map[string]config.AgentOverride{"claude": {Command: agent}},
	}
	out, err := Run(context.Background(), Request{SpecDir: specDir, AgentName: "claude"}, Options{Config: cfg})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ExitCode != 1 {
		t.Errorf("exit code: %d", out.ExitCode)
	}
	m := readMetrics(t, specDir)
	if m.TestResults == nil || m.TestResults.Failed != 2 {
		t.Errorf("test_results: %+v", m.TestResults)
	}
}

func TestRun_skipValidation(t *testing.T) {
	requireFilters(t)
	specDir := newSpecDir(t)
	agent := writeScript(t, "agent.sh", `echo '{"session_id":"s-1"}'`)

	cfg := config.Config{Agents: map[string]config.AgentOverride{"claude": {Command: agent}}}
	out, err := Run(context.Background(), Request{SpecDir: specDir, AgentName: "claude"}, Options{Config: cfg, SkipValidation: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ExitCode != 0 {
		t.Errorf("exit code: %d", out.ExitCode)
	}
	m := readMetrics(t, specDir)
	if m.TestResults != nil {
		t.Errorf("test_results must be null when validation is skipped: %+v", m.TestResults)
	}
}

func TestRun_logConversionFailureStillFinalizesMetrics(t *testing.T) {
	requireFilters(t)
	specDir := newSpecDir(t)
	// The agent exits cleanly but its event stream is not valid JSON, so the
	// jq|yq conversion fails downstream.
	agent := writeScript(t, "agent.sh", `echo '{broken'`)

	cfg := config.Config{Agents: map[string]config.AgentOverride{"claude": {Command: agent}}}
	out, err := Run(context.Background(), Request{SpecDir: specDir, AgentName: "claude"}, Options{Config: cfg})
	if !errors.Is(err, runlog.ErrLogConversionFailed) {
		t.Fatalf("got %v, want ErrLogConversionFailed", err)
	}
	if out.ExitCode != 0 {
		t.Errorf("exit code: %d", out.ExitCode)
	}

	// Timing and exit code for the completed run are still recorded; only
	// the test results degrade to absent.
	m := readMetrics(t, specDir)
	if m.ExitCode == nil || *m.ExitCode != 0 {
		t.Errorf("exit_code: %v", m.ExitCode)
	}
	if m.TestResults != nil {
		t.Errorf("test_results after conversion failure: %+v", m.TestResults)
	}
	if _, statErr := os.Stat(filepath.Join(specDir, "log.yaml")); !os.IsNotExist(statErr) {
		t.Error("partial log.yaml left behind")
	}
}

func TestRun_abnormalAgentExitShortCircuits(t *testing.T) {
	specDir := newSpecDir(t)
	agent := writeScript(t, "agent.sh", `echo '{"session_id":"s-1"}'
exit 5`)
	tool := writeScript(t, "moon.sh", `echo should-not-run > "`+filepath.Join(t.TempDir(), "ran")+`"`)

	cfg := config.Config{
		ToolCommand: tool,
		Agents:      map[string]config.AgentOverride{"claude": {Command: agent}},
	}
	out, err := Run(context.Background(), Request{SpecDir: specDir, AgentName: "claude"}, Options{Config: cfg})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ExitCode != 5 {
		t.Errorf("exit code: %d", out.ExitCode)
	}
	m := readMetrics(t, specDir)
	if m.ExitCode == nil || *m.ExitCode != 5 {
		t.Errorf("exit_code: %v", m.ExitCode)
	}
	if m.TestResults != nil {
		t.Errorf("test_results after abnormal exit: %+v", m.TestResults)
	}
	if _, err := os.Stat(filepath.Join(specDir, "log.yaml")); !os.IsNotExist(err) {
		t.Error("log must not be finalized after abnormal exit")
	}
}

func TestRun_unknownAgent(t *testing.T) {
	specDir := newSpecDir(t)
	out, err := Run(context.Background(), Request{SpecDir: specDir, AgentName: "cursor"}, Options{})
	if !errors.Is(err, runner.ErrUnknownAgent) {
		t.Fatalf("got %v, want ErrUnknownAgent", err)
	}
	if out.ExitCode != 1 {
		t.Errorf("exit code: %d", out.ExitCode)
	}
	if _, err := os.Stat(filepath.Join(specDir, runmetrics.FileName)); !os.IsNotExist(err) {
		t.Error("no metrics record for a run that never started")
	}
}

func TestRun_missingPrompt(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(context.Background(), Request{SpecDir: dir, AgentName: "claude"}, Options{})
	if err == nil {
		t.Fatal("expected error for spec dir without prompt")
	}
}

func TestRun_missingSpecDir(t *testing.T) {
	_, err := Run(context.Background(), Request{SpecDir: filepath.Join(t.TempDir(), "nope"), AgentName: "claude"}, Options{})
	if err == nil {
		t.Fatal("expected error for missing spec dir")
	}
}

func TestRun_resumeWithoutTokenAbortsBeforeSpawn(t *testing.T) {
	specDir := newSpecDir(t)
	marker := filepath.Join(t.TempDir(), "spawned")
	agent := writeScript(t, "agent.sh", `touch "`+marker+`"`)
	// A prior log exists but its first record carries no token.
	if err := os.WriteFile(runner.LogPath(specDir), []byte(`{"type":"banner"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Config{Agents: map[string]config.AgentOverride{"claude": {Command: agent}}}
	_, err := Run(context.Background(), Request{SpecDir: specDir, AgentName: "claude", Resume: true}, Options{Config: cfg})
	if !errors.Is(err, runner.ErrTokenNotFound) {
		t.Fatalf("got %v, want ErrTokenNotFound", err)
	}
	if _, statErr := os.Stat(marker); !os.IsNotExist(statErr) {
		t.Error("agent spawned despite resume failure")
	}
	if _, statErr := os.Stat(filepath.Join(specDir, runmetrics.FileName)); !os.IsNotExist(statErr) {
		t.Error("metrics written despite resume failure")
	}
}

func TestRun_resumeMissingLog(t *testing.T) {
	specDir := newSpecDir(t)
	cfg := config.Config{Agents: map[string]config.AgentOverride{"claude": {Command: "/bin/true"}}}
	_, err := Run(context.Background(), Request{SpecDir: specDir, AgentName: "claude", Resume: true}, Options{Config: cfg})
	if !errors.Is(err, runner.ErrMissingLog) {
		t.Fatalf("got %v, want ErrMissingLog", err)
	}
}

func TestRun_spawnFailureWritesNoMetrics(t *testing.T) {
	specDir := newSpecDir(t)
	cfg := config.Config{Agents: map[string]config.AgentOverride{"claude": {Command: filepath.Join(t.TempDir(), "missing")}}}
	_, err := Run(context.Background(), Request{SpecDir: specDir, AgentName: "claude"}, Options{Config: cfg})
	if !errors.Is(err, runner.ErrSpawnFailure) {
		t.Fatalf("got %v, want ErrSpawnFailure", err)
	}
	if _, statErr := os.Stat(filepath.Join(specDir, runmetrics.FileName)); !os.IsNotExist(statErr) {
		t.Error("metrics written despite spawn failure")
	}
}
