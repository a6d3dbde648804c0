package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRun_help(t *testing.T) {
	ctx := context.Background()
	code := Run(ctx, []string{"--help"})
	if code != 0 {
		t.Errorf("Run --help: got exit code %d", code)
	}
}

func TestRun_version(t *testing.T) {
	ctx := context.Background()
	code := Run(ctx, []string{"--version"})
	if code != 0 {
		t.Errorf("Run --version: got exit code %d", code)
	}
}

func TestRun_unknownFlag(t *testing.T) {
	ctx := context.Background()
	code := Run(ctx, []string{"--unknown-flag"})
	if code != 1 {
		t.Errorf("Run --unknown-flag: got exit code %d, want 1", code)
	}
}

func TestRun_unknownAgent(t *testing.T) {
	spec := t.TempDir()
	if err := os.WriteFile(filepath.Join(spec, "prompt.md"), []byte("p"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	code := Run(ctx, []string{"run", "--home", t.TempDir(), "--no-history", spec, "cursor"})
	if code != 1 {
		t.Errorf("Run with unknown agent: got exit code %d, want 1", code)
	}
}
