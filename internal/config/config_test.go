package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_missingFileIsZeroConfig(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ValidationURL != "" || cfg.ToolCommand != "" || len(cfg.Agents) != 0 {
		t.Errorf("config: %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	in := Config{
		ValidationURL: "http://validator:9747",
		ToolCommand:   "moon",
		Agents: map[string]AgentOverride{
			"claude": {Model: "opus", Env: map[string]string{"A": "1"}},
		},
	}
	if err := Save(home, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.ValidationURL != in.ValidationURL || out.ToolCommand != in.ToolCommand {
		t.Errorf("config: %+v", out)
	}
	ov, ok := out.Agents["claude"]
	if !ok || ov.Model != "opus" || ov.Env["A"] != "1" {
		t.Errorf("agent override: %+v", out.Agents)
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(Path(home), []byte(":\n  - not valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(home); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestResolveHome(t *testing.T) {
	got, err := ResolveHome("/explicit")
	if err != nil || got != "/explicit" {
		t.Errorf("override ignored: %q, %v", got, err)
	}
	t.Setenv("BENCHRUN_HOME", "/from-env")
	got, err = ResolveHome("")
	if err != nil || got != "/from-env" {
		t.Errorf("env ignored: %q, %v", got, err)
	}
	t.Setenv("BENCHRUN_HOME", "")
	got, err = ResolveHome("")
	if err != nil {
		t.Fatalf("ResolveHome: %v", err)
	}
	if filepath.Base(got) != ".benchrun" {
		t.Errorf("default home: %q", got)
	}
}

func TestHomeContext(t *testing.T) {
	ctx := WithHome(context.Background(), "/h")
	if got := MustHomeFrom(ctx); got != "/h" {
		t.Errorf("home from context: %q", got)
	}
	if _, ok := HomeFrom(context.Background()); ok {
		t.Error("home found in empty context")
	}
}
