package runner

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrMissingLog is returned on resume when no prior log exists.
var ErrMissingLog = errors.New("no prior run log")

// ErrTokenNotFound is returned when the first log record does not carry the
// session field expected for the agent family.
var ErrTokenNotFound = errors.New("session token not found in first log record")

// DefaultContinuation is the message delivered to a resumed agent in place
// of the original task prompt.
const DefaultContinuation = "Continue working on the task. Re-read the prompt if needed, run the tests, and fix any remaining failures."

// ResolveToken recovers the opaque session token from the first record of a
// prior run's log. Only the first record is inspected; session metadata is
// emitted there by every supported agent family, so this is O(1) in log size.
func ResolveToken(logPath string, family Family) (string, error) {
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrMissingLog, logPath)
		}
		return "", err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	var first []byte
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		first = line
		break
	}
	if err := sc.Err(); err != nil {
		// Covers bufio.ErrTooLong for a first record past the buffer cap.
		return "", fmt.Errorf("%w: %v", ErrTokenNotFound, err)
	}
	if first == nil {
		return "", fmt.Errorf("%w: log is empty", ErrTokenNotFound)
	}

	var rec map[string]any
	if err := json.Unmarshal(first, &rec); err != nil {
		return "", fmt.Errorf("%w: first record is not JSON", ErrTokenNotFound)
	}
	return extractToken(rec, family)
}

func extractToken(rec map[string]any, family Family) (string, error) {
	switch family {
	case FamilySession:
		if id, ok := rec["session_id"].(string); ok && id != "" {
			return id, nil
		}
		return "", fmt.Errorf("%w: no session_id field", ErrTokenNotFound)
	case FamilyThread:
		typ, _ := rec["type"].(string)
		if typ != "thread.started" {
			return "", fmt.Errorf("%w: first record is %q, want thread.started", ErrTokenNotFound, typ)
		}
		if id, ok := rec["thread_id"].(string); ok && id != "" {
			return id, nil
		}
		return "", fmt.Errorf("%w: no thread_id field", ErrTokenNotFound)
	default:
		return "", fmt.Errorf("%w: unsupported family %q", ErrTokenNotFound, family)
	}
}

// ApplyResume rewrites the profile's argument vector to continue the prior
// session. Prompt delivery switches to a continuation message as the
// trailing argument for every family; the codex family additionally replaces
// its exec invocation with the resume subcommand.
func ApplyResume(p Profile, token string) Profile {
	out := p
	out.Env = map[string]string{}
	for k, v := range p.Env {
		out.Env[k] = v
	}
	switch p.Family {
	case FamilyThread:
		// codex exec --json ... -  ->  codex exec resume <thread> --json ...
		// This family reads the original prompt from stdin; the resumed
		// session instead takes the continuation message as a trailing
		// argument.
		args := []string{"exec", "resume", token}
		for _, a := range p.Args {
			if a == "exec" || a == "-" {
				continue
			}
			args = append(args, a)
		}
		out.Args = args
		out.PromptMode = PromptTrailingArg
	default:
		out.Args = append(append([]string{}, p.Args...), "--resume", token)
	}
	out.PromptOverride = DefaultContinuation
	return out
}
