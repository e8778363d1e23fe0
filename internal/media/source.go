package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"subweave/internal/services"
)

// Clip is an extracted audio segment on disk. Start and End are offsets into
// the original source, in seconds.
type Clip struct {
	Path  string
	Start float64
	End   float64
}

// Source provides audio segments on demand. Implementations must be safe for
// concurrent Segment calls; the scheduler extracts several chunks at once.
type Source interface {
	Path() string
	Duration() float64
	Segment(ctx context.Context, start, end float64) (Clip, error)
	Close() error
}

// FFmpegSource extracts segments from a media file with ffmpeg, writing each
// clip into a private work directory removed on Close.
type FFmpegSource struct {
	path     string
	duration float64
	workDir  string
	runner   CommandRunner
}

// Option customizes an FFmpegSource.
type Option func(*FFmpegSource)

// WithRunner substitutes the subprocess runner, used by tests.
func WithRunner(runner CommandRunner) Option {
	return func(s *FFmpegSource) {
		if runner != nil {
			s.runner = runner
		}
	}
}

// OpenSource probes the file and prepares a work directory for segment
// extraction.
func OpenSource(ctx context.Context, path, workDir string, opts ...Option) (*FFmpegSource, error) {
	source := &FFmpegSource{path: path, runner: DefaultCommandRunner}
	for _, opt := range opts {
		opt(source)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "media", "open", path, err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "media", "open",
			fmt.Sprintf("%s is a directory", path), nil)
	}

	probed, err := Probe(ctx, source.runner, path)
	if err != nil {
		return nil, err
	}
	source.duration = probed.Duration

	dir, err := os.MkdirTemp(workDir, "subweave-clips-")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "media", "create work directory", workDir, err)
	}
	source.workDir = dir
	return source, nil
}

func (s *FFmpegSource) Path() string { return s.path }

func (s *FFmpegSource) Duration() float64 { return s.duration }

// Segment extracts [start, end) as a 16 kHz mono WAV, the format speech
// recognizers expect.
func (s *FFmpegSource) Segment(ctx context.Context, start, end float64) (Clip, error) {
	if end <= start {
		return Clip{}, services.Wrap(services.ErrValidation, "media", "segment",
			fmt.Sprintf("empty range %.3f..%.3f", start, end), nil)
	}
	clipPath := filepath.Join(s.workDir, fmt.Sprintf("clip-%09d-%09d.wav", int64(start*1000), int64(end*1000)))
	_, err := s.runner(ctx, "ffmpeg",
		"-y",
		"-v", "error",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", s.path,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		clipPath,
	)
	if err != nil {
		if ctx.Err() != nil {
			return Clip{}, ctx.Err()
		}
		if services.IsCancellation(err) {
			return Clip{}, err
		}
		return Clip{}, services.Wrap(services.ErrExternalTool, "media", "segment", s.path, err)
	}
	return Clip{Path: clipPath, Start: start, End: end}, nil
}

// Close removes the work directory and every extracted clip beneath it.
func (s *FFmpegSource) Close() error {
	if s.workDir == "" {
		return nil
	}
	err := os.RemoveAll(s.workDir)
	s.workDir = ""
	return err
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
