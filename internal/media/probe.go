package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"subweave/internal/services"
)

// CommandRunner executes an external binary and returns its stdout.
// Production uses exec.CommandContext; tests inject fakes.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// DefaultCommandRunner shells out with the supplied context so in-flight
// subprocess calls abort on cancellation.
func DefaultCommandRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return output, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return output, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}

// ProbeResult carries the format-level metadata the pipeline needs.
type ProbeResult struct {
	Duration float64
	Format   string
}

// Probe inspects a media file with ffprobe.
func Probe(ctx context.Context, runner CommandRunner, path string) (ProbeResult, error) {
	if runner == nil {
		runner = DefaultCommandRunner
	}
	output, err := runner(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	if err != nil {
		return ProbeResult{}, services.Wrap(services.ErrExternalTool, "media", "probe", path, err)
	}

	var parsed struct {
		Format struct {
			Duration   string `json:"duration"`
			FormatName string `json:"format_name"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &parsed); err != nil {
		return ProbeResult{}, services.Wrap(services.ErrExternalTool, "media", "parse probe output", path, err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64)
	if err != nil || duration <= 0 {
		return ProbeResult{}, services.Wrap(services.ErrValidation, "media", "probe",
			fmt.Sprintf("no usable duration for %s", path), nil)
	}
	return ProbeResult{Duration: duration, Format: parsed.Format.FormatName}, nil
}
