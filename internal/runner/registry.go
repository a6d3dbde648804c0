// Package runner resolves agent invocation profiles and launches the agent
// subprocess for one benchmark run. Each supported agent CLI has a different
// contract (how the prompt is delivered, who writes the JSONL log); the
// registry expresses those differences as data on the Profile rather than
// per-agent control flow.
package runner

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ankittk/benchrun/internal/config"
)

// ErrUnknownAgent is returned when an agent name is not on the allow-list.
var ErrUnknownAgent = errors.New("unknown agent")

// PromptMode selects how the task prompt reaches the agent. Exactly one mode
// is active per profile.
type PromptMode int

const (
	// PromptStdin streams the prompt file into the child's stdin.
	PromptStdin PromptMode = iota
	// PromptTrailingArg appends the prompt text as the final CLI argument.
	PromptTrailingArg
	// PromptFileFlag passes the prompt file path via a flag; the args must
	// carry the {prompt_file} placeholder.
	PromptFileFlag
)

// LogMode selects who writes log.jsonl.
type LogMode int

const (
	// LogCaptured duplicates the child's stdout into log.jsonl.
	LogCaptured LogMode = iota
	// LogWrittenByAgent means the agent writes the log itself; the args must
	// carry the {log_file} placeholder so it knows where.
	LogWrittenByAgent
)

// Family keys the session-token extraction strategy used on resume.
type Family string

const (
	// FamilySession covers agents whose first log record carries a
	// "session_id" field (claude, opencode, goose).
	FamilySession Family = "session"
	// FamilyThread covers agents that emit a thread.started event with a
	// "thread_id" field (codex).
	FamilyThread Family = "thread"
)

// Profile is the resolved invocation contract for one agent. It is built
// once per run by Resolve and treated as immutable afterwards; resume
// rewriting returns a copy.
type Profile struct {
	Name       string
	Command    string
	Args       []string
	Env        map[string]string // overlay merged on top of the ambient environment
	PromptMode PromptMode
	LogMode    LogMode
	Family     Family

	// PromptOverride replaces the prompt-file content for PromptTrailingArg
	// delivery. Set by resume rewriting (continuation message).
	PromptOverride string
}

// modelEnv maps an agent to the env var its CLI reads for model selection.
var modelEnv = map[string]string{
	"claude":   "ANTHROPIC_MODEL",
	"codex":    "CODEX_MODEL",
	"opencode": "OPENCODE_MODEL",
	"goose":    "GOOSE_MODEL",
}

func baseProfiles() map[string]Profile {
	return map[string]Profile{
		"claude": {
			Name:       "claude",
			Command:    "claude",
			Args:       []string{"-p", "--verbose", "--output-format", "stream-json", "--dangerously-skip-permissions"},
			PromptMode: PromptTrailingArg,
			LogMode:    LogCaptured,
			Family:     FamilySession,
		},
		"codex": {
			Name:       "codex",
			Command:    "codex",
			Args:       []string{"exec", "--json", "--skip-git-repo-check", "-"},
			Env:        map[string]string{"CODEX_UNSAFE_ALLOW_NO_SANDBOX": "1"},
			PromptMode: PromptStdin,
			LogMode:    LogCaptured,
			Family:     FamilyThread,
		},
		"opencode": {
			Name:       "opencode",
			Command:    "opencode",
			Args:       []string{"run", "--print-logs", "--format", "json"},
			PromptMode: PromptTrailingArg,
			LogMode:    LogCaptured,
			Family:     FamilySession,
		},
		"goose": {
			Name:       "goose",
			Command:    "goose",
			Args:       []string{"run", "--output-format", "jsonl", "--prompt-file", "{prompt_file}", "--log-file", "{log_file}"},
			PromptMode: PromptFileFlag,
			LogMode:    LogWrittenByAgent,
			Family:     FamilySession,
		},
	}
}

// Names returns the supported agent names in stable order.
func Names() []string {
	return []string{"claude", "codex", "goose", "opencode"}
}

// IsSupported reports whether name is on the allow-list.
func IsSupported(name string) bool {
	_, ok := baseProfiles()[name]
	return ok
}

// Resolve returns the invocation profile for the named agent, with config
// overrides and the <AGENT>_MODEL environment selector applied. The ambient
// environment is never mutated; model selection and overlays land in
// Profile.Env only.
func Resolve(name string, cfg config.Config) (Profile, error) {
	p, ok := baseProfiles()[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownAgent, name, strings.Join(Names(), ", "))
	}
	if p.Env == nil {
		p.Env = map[string]string{}
	}

	model := os.Getenv(strings.ToUpper(name) + "_MODEL")
	ov, hasOverride := cfg.Agents[name]
	if hasOverride {
		if ov.Command != "" {
			p.Command = ov.Command
		}
		if ov.Model != "" && model == "" {
			model = ov.Model
		}
		for k, v := range ov.Env {
			p.Env[k] = v
		}
	}
	if model != "" {
		if key, ok := modelEnv[name]; ok {
			p.Env[key] = model
		}
	}

	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks the profile's internal consistency: exactly one prompt
// delivery strategy active, and placeholders matching the declared modes.
func (p Profile) Validate() error {
	if p.Command == "" {
		return fmt.Errorf("profile %s: command is required", p.Name)
	}
	hasPromptPlaceholder := false
	hasLogPlaceholder := false
	for _, a := range p.Args {
		if strings.Contains(a, "{prompt_file}") {
			hasPromptPlaceholder = true
		}
		if strings.Contains(a, "{log_file}") {
			hasLogPlaceholder = true
		}
	}
	switch p.PromptMode {
	case PromptFileFlag:
		if !hasPromptPlaceholder {
			return fmt.Errorf("profile %s: prompt mode file-flag requires a {prompt_file} placeholder", p.Name)
		}
	case PromptStdin, PromptTrailingArg:
		if hasPromptPlaceholder {
			return fmt.Errorf("profile %s: {prompt_file} placeholder conflicts with prompt mode", p.Name)
		}
	default:
		return fmt.Errorf("profile %s: invalid prompt mode %d", p.Name, p.PromptMode)
	}
	if p.LogMode == LogWrittenByAgent && !hasLogPlaceholder {
		return fmt.Errorf("profile %s: agent-written log requires a {log_file} placeholder", p.Name)
	}
	if p.LogMode == LogCaptured && hasLogPlaceholder {
		return fmt.Errorf("profile %s: {log_file} placeholder conflicts with captured log mode", p.Name)
	}
	return nil
}
