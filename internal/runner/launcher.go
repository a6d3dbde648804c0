package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrSpawnFailure wraps a failure to start the agent process (missing or
// unexecutable binary). Fatal: no run metrics are produced for it.
var ErrSpawnFailure = errors.New("agent spawn failed")

// ErrLogWriteFailure wraps an I/O error on the log.jsonl capture sink. The
// child is terminated rather than silently losing log data.
var ErrLogWriteFailure = errors.New("log write failed")

// PromptFileName is the task prompt expected inside each spec directory.
const PromptFileName = "prompt.md"

// LogFileName is the raw agent event stream, newline-delimited JSON.
const LogFileName = "log.jsonl"

// buildCacheDir is the spec directory's build cache, removed before spawn so
// stale artifacts cannot leak pass/fail signal across runs.
const buildCacheDir = "target"

// Outcome carries the child's exit status. Signal is the empty string when
// the process exited normally.
type Outcome struct {
	ExitCode int
	Signal   string
}

// PromptPath returns the prompt file location inside specDir.
func PromptPath(specDir string) string {
	return filepath.Join(specDir, PromptFileName)
}

// LogPath returns the raw log location inside specDir.
func LogPath(specDir string) string {
	return filepath.Join(specDir, LogFileName)
}

// Launch spawns the agent per the profile and blocks until it exits. The
// build cache is cleaned synchronously before the process starts. The
// returned Outcome is valid whenever err is nil; a non-zero exit or a signal
// is a legitimate outcome, not an error.
func Launch(ctx context.Context, profile Profile, specDir string) (Outcome, error) {
	if err := cleanBuildCache(specDir); err != nil {
		return Outcome{}, err
	}

	promptPath := PromptPath(specDir)
	logPath := LogPath(specDir)

	args, err := resolveArgs(profile, promptPath, logPath)
	if err != nil {
		return Outcome{}, err
	}

	cmd := exec.CommandContext(ctx, profile.Command, args...)
	cmd.Dir = specDir
	cmd.Env = mergedEnv(profile.Env)
	cmd.Stderr = os.Stderr

	var stdinSrc *os.File
	var stdinPipe io.WriteCloser
	if profile.PromptMode == PromptStdin {
		stdinSrc, err = os.Open(promptPath)
		if err != nil {
			return Outcome{}, fmt.Errorf("open prompt: %w", err)
		}
		defer func() { _ = stdinSrc.Close() }()
		stdinPipe, err = cmd.StdinPipe()
		if err != nil {
			return Outcome{}, err
		}
	}

	var sink *os.File
	var stdout io.ReadCloser
	if profile.LogMode == LogCaptured {
		sink, err = os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return Outcome{}, fmt.Errorf("open log sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			return Outcome{}, err
		}
	} else {
		cmd.Stdout = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %s: %v", ErrSpawnFailure, profile.Command, err)
	}

	// Stream the prompt into the child. A read error on the prompt file is a
	// fatal abort: SIGTERM the child so it is not orphaned waiting on stdin.
	// A broken pipe is not: the child exited without draining the prompt, and
	// its exit status decides the outcome.
	stdinErr := make(chan error, 1)
	if stdinPipe != nil {
		go func() {
			_, err := io.Copy(stdinPipe, stdinSrc)
			_ = stdinPipe.Close()
			if isClosedPipe(err) {
				err = nil
			}
			if err != nil {
				terminate(cmd)
			}
			stdinErr <- err
		}()
	} else {
		stdinErr <- nil
	}

	// Duplicate child stdout into the log sink. A write failure terminates
	// the child rather than dropping log data.
	captureErr := make(chan error, 1)
	if stdout != nil {
		go func() {
			err := capture(stdout, sink)
			if err != nil {
				terminate(cmd)
			}
			captureErr <- err
		}()
	} else {
		captureErr <- nil
	}

	waitErr := cmd.Wait()
	cErr := <-captureErr
	sErr := <-stdinErr

	if cErr != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrLogWriteFailure, cErr)
	}
	if sErr != nil {
		return Outcome{}, fmt.Errorf("stream prompt to stdin: %w", sErr)
	}

	out := outcomeFromWait(cmd, waitErr)
	if waitErr != nil && out.ExitCode == 0 && out.Signal == "" {
		return Outcome{}, waitErr
	}
	if out.ExitCode != 0 || out.Signal != "" {
		slog.Warn("agent exited abnormally", "agent", profile.Name, "exit_code", out.ExitCode, "signal", out.Signal)
	}
	return out, nil
}

func cleanBuildCache(specDir string) error {
	dir := filepath.Join(specDir, buildCacheDir)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clean build cache: %w", err)
	}
	return nil
}

// resolveArgs substitutes placeholders and appends the trailing prompt
// argument when that strategy is selected.
func resolveArgs(profile Profile, promptPath, logPath string) ([]string, error) {
	args := make([]string, 0, len(profile.Args)+1)
	for _, a := range profile.Args {
		a = strings.ReplaceAll(a, "{prompt_file}", promptPath)
		a = strings.ReplaceAll(a, "{log_file}", logPath)
		args = append(args, a)
	}
	if profile.PromptMode == PromptTrailingArg {
		text := profile.PromptOverride
		if text == "" {
			b, err := os.ReadFile(promptPath)
			if err != nil {
				return nil, fmt.Errorf("read prompt: %w", err)
			}
			text = string(b)
		}
		args = append(args, text)
	}
	return args, nil
}

// mergedEnv overlays the profile env on the ambient environment without
// mutating it.
func mergedEnv(overlay map[string]string) []string {
	env := os.Environ()
	for k, v := range overlay {
		env = append(env, k+"="+v)
	}
	return env
}

// capture copies child stdout into the sink, stopping on the first sink
// write error. Read errors (pipe closed by child exit) end the copy cleanly.
func capture(stdout io.Reader, sink io.Writer) error {
	buf := make([]byte, 32*1024)
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := sink.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return nil
		}
	}
}

// isClosedPipe reports whether err is a write failure caused by the child
// closing (or never opening) its end of the stdin pipe.
func isClosedPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed)
}

func terminate(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
}

func outcomeFromWait(cmd *exec.Cmd, waitErr error) Outcome {
	if waitErr == nil {
		return Outcome{ExitCode: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return Outcome{ExitCode: exitErr.ExitCode(), Signal: unix.SignalName(ws.Signal())}
			}
			return Outcome{ExitCode: ws.ExitStatus()}
		}
		return Outcome{ExitCode: exitErr.ExitCode()}
	}
	return Outcome{}
}
