package transcribe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subweave/internal/config"
	"subweave/internal/media"
	"subweave/internal/pipeline"
	"subweave/internal/services"
	"subweave/internal/subtitle"
)

const recognizerOutput = `{
  "segments": [
    {"start": 0.0, "end": 4.2, "text": "First line.", "speaker": "Narrator"},
    {"start": 4.5, "end": 8.0, "text": "  Second line.  "},
    {"start": 8.5, "end": 9.0, "text": "   "}
  ]
}`

func testProvider(runner media.CommandRunner) *Provider {
	cfg := config.Transcriber{Binary: "whisper-cli", Model: "large-v3", Language: "ja"}
	return NewProvider(cfg, nil, WithRunner(runner))
}

func TestTranscribeOffsetsSegmentsOntoSourceTimeline(t *testing.T) {
	var gotArgs []string
	runner := func(_ context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "whisper-cli", name)
		gotArgs = args
		return []byte(recognizerOutput), nil
	}

	clip := media.Clip{Path: "/tmp/clip-3.wav", Start: 300, End: 330}
	items, err := testProvider(runner).Transcribe(context.Background(), 3, clip)
	require.NoError(t, err)
	require.Len(t, items, 2, "blank segments are dropped")

	assert.Equal(t, "3-0", items[0].ID)
	assert.Equal(t, 3, items[0].ChunkIndex)
	assert.InDelta(t, 300.0, items[0].Start, 1e-9)
	assert.InDelta(t, 304.2, items[0].End, 1e-9)
	assert.Equal(t, "First line.", items[0].Original)
	assert.Equal(t, "Narrator", items[0].Speaker)

	assert.InDelta(t, 304.5, items[1].Start, 1e-9)
	assert.Equal(t, "Second line.", items[1].Original)

	assert.Contains(t, gotArgs, "large-v3")
	assert.Contains(t, gotArgs, "/tmp/clip-3.wav")
}

func TestTranscribeWrapsRecognizerFailure(t *testing.T) {
	runner := func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("model file missing")
	}
	_, err := testProvider(runner).Transcribe(context.Background(), 0, media.Clip{Path: "x.wav"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrExternalTool))
}

func TestTranscribeRejectsMalformedOutput(t *testing.T) {
	runner := func(context.Context, string, ...string) ([]byte, error) {
		return []byte("segfault dump"), nil
	}
	_, err := testProvider(runner).Transcribe(context.Background(), 0, media.Clip{Path: "x.wav"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrExternalTool))
}

type fakeSource struct {
	duration float64
	segments int
	fail     error
}

func (f *fakeSource) Path() string      { return "/tmp/fake.mkv" }
func (f *fakeSource) Duration() float64 { return f.duration }
func (f *fakeSource) Close() error      { return nil }

func (f *fakeSource) Segment(_ context.Context, start, end float64) (media.Clip, error) {
	if f.fail != nil {
		return media.Clip{}, f.fail
	}
	f.segments++
	return media.Clip{Path: "/tmp/fake-clip.wav", Start: start, End: end}, nil
}

func TestStepPopulatesChunkState(t *testing.T) {
	runner := func(context.Context, string, ...string) ([]byte, error) {
		return []byte(recognizerOutput), nil
	}
	source := &fakeSource{duration: 600}
	step := NewStep(testProvider(runner))

	run := &pipeline.Context{
		Source: source,
		Gates:  pipeline.Gates{},
	}
	state := &pipeline.ChunkState{Chunk: subtitle.Chunk{Index: 1, Start: 30, End: 60}}
	require.True(t, step.Applicable(run, state))
	require.NoError(t, step.Execute(context.Background(), run, state))

	assert.Equal(t, 1, source.segments)
	assert.Equal(t, "/tmp/fake-clip.wav", state.Clip.Path)
	require.Len(t, state.Items, 2)
	assert.InDelta(t, 30.0, state.Items[0].Start, 1e-9)
}

func TestStepNotApplicableForRegeneratedChunks(t *testing.T) {
	step := NewStep(testProvider(nil))
	run := &pipeline.Context{Source: &fakeSource{}}
	state := &pipeline.ChunkState{Items: []subtitle.Item{{ID: "0-0"}}}
	assert.False(t, step.Applicable(run, state))
}

func TestStepFailsOnEmptyRecognition(t *testing.T) {
	runner := func(context.Context, string, ...string) ([]byte, error) {
		return []byte(`{"segments":[]}`), nil
	}
	step := NewStep(testProvider(runner))
	run := &pipeline.Context{Source: &fakeSource{duration: 60}}
	state := &pipeline.ChunkState{Chunk: subtitle.Chunk{Index: 0, Start: 0, End: 30}}

	err := step.Execute(context.Background(), run, state)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrValidation))

	// No fallback exists for transcription; the cause propagates.
	assert.Equal(t, err, step.Fallback(context.Background(), run, state, err))
}

func TestSamplerJoinsTranscribedLines(t *testing.T) {
	runner := func(context.Context, string, ...string) ([]byte, error) {
		return []byte(recognizerOutput), nil
	}
	sampler := NewSampler(testProvider(runner), &fakeSource{duration: 600})
	text, err := sampler.SampleText(context.Background(), subtitle.Chunk{Index: 2, Start: 60, End: 90})
	require.NoError(t, err)
	assert.Equal(t, "First line.\nSecond line.", text)
}
