// Package runlog converts the raw agent event stream into the finalized
// structured document. The conversion itself is an external collaborator
// (a jq|yq filter chain); this package owns only its invocation and its
// failure surface.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrLogConversionFailed marks a non-zero filter-chain exit or a broken pipe
// partway through conversion. The caller degrades test results to absent
// rather than aborting metric recording.
var ErrLogConversionFailed = errors.New("log conversion failed")

// FinalizedName is the structured document written next to log.jsonl.
const FinalizedName = "log.yaml"

// Finalize pipes specDir/log.jsonl through `jq -s .` into `yq -P`, writing
// specDir/log.yaml. A truncated document is never left behind: the output is
// staged in a temp file and renamed only after both filters exit zero.
func Finalize(ctx context.Context, specDir string) error {
	rawPath := filepath.Join(specDir, "log.jsonl")
	outPath := filepath.Join(specDir, FinalizedName)

	raw, err := os.Open(rawPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogConversionFailed, err)
	}
	defer func() { _ = raw.Close() }()

	tmp, err := os.CreateTemp(specDir, ".log.yaml.*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogConversionFailed, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	jq := exec.CommandContext(ctx, "jq", "-s", ".")
	yq := exec.CommandContext(ctx, "yq", "-P", ".")

	jq.Stdin = raw
	pipe, err := jq.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogConversionFailed, err)
	}
	yq.Stdin = pipe
	yq.Stdout = tmp
	yq.Stderr = os.Stderr
	jq.Stderr = os.Stderr

	if err := jq.Start(); err != nil {
		return fmt.Errorf("%w: jq: %v", ErrLogConversionFailed, err)
	}
	if err := yq.Start(); err != nil {
		_ = jq.Process.Kill()
		_ = jq.Wait()
		return fmt.Errorf("%w: yq: %v", ErrLogConversionFailed, err)
	}

	jqErr := jq.Wait()
	yqErr := yq.Wait()
	if jqErr != nil {
		return fmt.Errorf("%w: jq: %v", ErrLogConversionFailed, jqErr)
	}
	if yqErr != nil {
		return fmt.Errorf("%w: yq: %v", ErrLogConversionFailed, yqErr)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrLogConversionFailed, err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("%w: %v", ErrLogConversionFailed, err)
	}
	slog.Info("log finalized", "path", outPath)
	return nil
}
