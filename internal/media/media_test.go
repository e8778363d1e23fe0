package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subweave/internal/services"
)

func fakeProbeRunner(duration string) CommandRunner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name == "ffprobe" {
			return []byte(`{"format":{"duration":"` + duration + `","format_name":"wav"}}`), nil
		}
		return nil, errors.New("unexpected command " + name)
	}
}

func TestProbeParsesDuration(t *testing.T) {
	result, err := Probe(context.Background(), fakeProbeRunner("123.456"), "/tmp/input.mkv")
	require.NoError(t, err)
	assert.InDelta(t, 123.456, result.Duration, 1e-9)
	assert.Equal(t, "wav", result.Format)
}

func TestProbeRejectsMissingDuration(t *testing.T) {
	_, err := Probe(context.Background(), fakeProbeRunner(""), "/tmp/input.mkv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrValidation))
}

func TestProbeWrapsToolFailure(t *testing.T) {
	runner := func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("ffprobe exploded")
	}
	_, err := Probe(context.Background(), runner, "/tmp/input.mkv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrExternalTool))
}

func TestOpenSourceAndSegment(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.WriteFile(input, []byte("not really media"), 0o644))

	var ffmpegCalls [][]string
	runner := func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name == "ffprobe" {
			return []byte(`{"format":{"duration":"600.0","format_name":"matroska"}}`), nil
		}
		ffmpegCalls = append(ffmpegCalls, args)
		return nil, nil
	}

	source, err := OpenSource(context.Background(), input, dir, WithRunner(runner))
	require.NoError(t, err)
	assert.InDelta(t, 600.0, source.Duration(), 1e-9)

	clip, err := source.Segment(context.Background(), 300, 330.5)
	require.NoError(t, err)
	assert.InDelta(t, 300.0, clip.Start, 1e-9)
	assert.InDelta(t, 330.5, clip.End, 1e-9)
	assert.True(t, strings.HasSuffix(clip.Path, ".wav"))

	require.Len(t, ffmpegCalls, 1)
	joined := strings.Join(ffmpegCalls[0], " ")
	assert.Contains(t, joined, "-ss 300.000")
	assert.Contains(t, joined, "-to 330.500")
	assert.Contains(t, joined, "-ar 16000")

	workDir := filepath.Dir(clip.Path)
	require.NoError(t, source.Close())
	_, statErr := os.Stat(workDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSegmentRejectsEmptyRange(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	source, err := OpenSource(context.Background(), input, dir, WithRunner(fakeProbeRunner("60")))
	require.NoError(t, err)
	defer source.Close()

	_, err = source.Segment(context.Background(), 10, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrValidation))
}

func TestSegmentPropagatesCancellation(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	runner := func(callCtx context.Context, name string, _ ...string) ([]byte, error) {
		if name == "ffprobe" {
			return []byte(`{"format":{"duration":"60","format_name":"wav"}}`), nil
		}
		cancel()
		return nil, callCtx.Err()
	}

	source, err := OpenSource(ctx, input, dir, WithRunner(runner))
	require.NoError(t, err)
	defer source.Close()

	_, err = source.Segment(ctx, 0, 10)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPlanChunksEvenSplit(t *testing.T) {
	chunks := PlanChunks(900, 300)
	require.Len(t, chunks, 3)
	assert.Equal(t, 0, chunks[0].Index)
	assert.InDelta(t, 300.0, chunks[0].End, 1e-9)
	assert.InDelta(t, 600.0, chunks[2].Start, 1e-9)
	assert.InDelta(t, 900.0, chunks[2].End, 1e-9)
}

func TestPlanChunksMergesTinyTail(t *testing.T) {
	chunks := PlanChunks(600.5, 300)
	require.Len(t, chunks, 2)
	assert.InDelta(t, 600.5, chunks[1].End, 1e-9)
}

func TestPlanChunksShortInput(t *testing.T) {
	chunks := PlanChunks(42, 300)
	require.Len(t, chunks, 1)
	assert.InDelta(t, 42.0, chunks[0].End, 1e-9)

	assert.Nil(t, PlanChunks(0, 300))
}
