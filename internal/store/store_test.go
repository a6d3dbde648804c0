package store

import (
	"context"
	"testing"
	"time"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndListRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	zero, five := 0, 5
	total, passed, failed := 6, 6, 0
	now := time.Now().UTC()

	id, err := s.RecordRun(ctx, RunRecord{
		Runner:      "claude",
		SpecDir:     "/work/specs/toml",
		StartTime:   now.Add(-time.Minute),
		EndTime:     now,
		ElapsedMs:   60000,
		ExitCode:    &zero,
		TestsTotal:  &total,
		TestsPassed: &passed,
		TestsFailed: &failed,
	})
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if id == 0 {
		t.Error("run id not assigned")
	}

	if _, err := s.RecordRun(ctx, RunRecord{
		Runner:    "codex",
		SpecDir:   "/work/specs/json",
		StartTime: now,
		EndTime:   now,
		ExitCode:  &five,
	}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs: %d", len(runs))
	}
	// Newest first.
	if runs[0].Runner != "codex" || runs[1].Runner != "claude" {
		t.Errorf("order: %s, %s", runs[0].Runner, runs[1].Runner)
	}
	first := runs[1]
	if first.ExitCode == nil || *first.ExitCode != 0 {
		t.Errorf("exit code: %v", first.ExitCode)
	}
	if first.TestsTotal == nil || *first.TestsTotal != 6 {
		t.Errorf("tests total: %v", first.TestsTotal)
	}
	if first.StartTime.IsZero() || first.EndTime.Before(first.StartTime) {
		t.Errorf("times: %v .. %v", first.StartTime, first.EndTime)
	}
}

func TestRecordRun_nullableFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.RecordRun(ctx, RunRecord{Runner: "goose", SpecDir: "/w", StartTime: now, EndTime: now}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	r := runs[0]
	if r.ExitCode != nil || r.TestsTotal != nil || r.TestsPassed != nil || r.TestsFailed != nil {
		t.Errorf("nullable fields not null: %+v", r)
	}
}

func TestOpen_reopenIsIdempotent(t *testing.T) {
	home := t.TempDir()
	s, err := Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.RecordRun(context.Background(), RunRecord{Runner: "claude", SpecDir: "/w", StartTime: time.Now(), EndTime: time.Now()}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen runs migrations again; already-applied versions are skipped and
	// data survives.
	s2, err := Open(home)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()
	runs, err := s2.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("runs after reopen: %d", len(runs))
	}
}
