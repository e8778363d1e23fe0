package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subweave/internal/config"
	"subweave/internal/glossary"
	"subweave/internal/subtitle"
)

type fakeStep struct {
	name       string
	applicable func(run *Context, state *ChunkState) bool
	gate       func(run *Context) *Gate
	execute    func(ctx context.Context, run *Context, state *ChunkState) error
	fallback   func(ctx context.Context, run *Context, state *ChunkState, cause error) error
	artifact   func(state *ChunkState) ([]byte, bool)
}

func (s *fakeStep) Name() string { return s.name }

func (s *fakeStep) Applicable(run *Context, state *ChunkState) bool {
	if s.applicable == nil {
		return true
	}
	return s.applicable(run, state)
}

func (s *fakeStep) Gate(run *Context) *Gate {
	if s.gate == nil {
		return nil
	}
	return s.gate(run)
}

func (s *fakeStep) Execute(ctx context.Context, run *Context, state *ChunkState) error {
	if s.execute == nil {
		return nil
	}
	return s.execute(ctx, run, state)
}

func (s *fakeStep) Fallback(ctx context.Context, run *Context, state *ChunkState, cause error) error {
	if s.fallback == nil {
		return cause
	}
	return s.fallback(ctx, run, state, cause)
}

func (s *fakeStep) Artifact(state *ChunkState) ([]byte, bool) {
	if s.artifact == nil {
		return nil, false
	}
	return s.artifact(state)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Pipeline.Concurrency = 4
	return &cfg
}

func planTestChunks(count int) []subtitle.Chunk {
	chunks := make([]subtitle.Chunk, count)
	for i := range chunks {
		chunks[i] = subtitle.Chunk{Index: i, Start: float64(i) * 30, End: float64(i+1) * 30}
	}
	return chunks
}

// produceStep synthesizes two items per chunk after a random delay so chunks
// finish out of order.
func produceStep() *fakeStep {
	return &fakeStep{
		name: "transcribe",
		execute: func(_ context.Context, _ *Context, state *ChunkState) error {
			time.Sleep(time.Duration(rand.Intn(12)) * time.Millisecond)
			for i := 0; i < 2; i++ {
				state.Items = append(state.Items, subtitle.Item{
					ID:         fmt.Sprintf("%d-%d", state.Chunk.Index, i),
					ChunkIndex: state.Chunk.Index,
					Start:      state.Chunk.Start + float64(i)*10,
					End:        state.Chunk.Start + float64(i)*10 + 5,
					Original:   fmt.Sprintf("line %d of chunk %d", i, state.Chunk.Index),
				})
			}
			return nil
		},
	}
}

func TestRunProducesSortedCompleteOutput(t *testing.T) {
	var snapshotsMu sync.Mutex
	var snapshots [][]subtitle.Item

	engine := NewEngine(testConfig(), nil, []Step{produceStep()}, nil)
	result, err := engine.Run(context.Background(), Request{
		Chunks:         planTestChunks(8),
		TargetLanguage: "en",
		Callbacks: Callbacks{
			OnIntermediate: func(items []subtitle.Item) {
				snapshotsMu.Lock()
				snapshots = append(snapshots, items)
				snapshotsMu.Unlock()
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Subtitles, 16)
	assert.True(t, subtitle.Sorted(result.Subtitles))
	assert.NotEmpty(t, result.RunID)

	snapshotsMu.Lock()
	defer snapshotsMu.Unlock()
	require.Len(t, snapshots, 8)
	for _, snapshot := range snapshots {
		assert.True(t, subtitle.Sorted(snapshot), "every intermediate snapshot must be time-ordered")
	}
	assert.Equal(t, 8, result.Usage.Analytics.ChunksSucceeded)
}

func TestRunCancelledBeforeStartMakesNoCalls(t *testing.T) {
	var executions atomic.Int32
	step := &fakeStep{
		name: "transcribe",
		execute: func(context.Context, *Context, *ChunkState) error {
			executions.Add(1)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(testConfig(), nil, []Step{step}, nil)
	_, err := engine.Run(ctx, Request{Chunks: planTestChunks(4)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), executions.Load())
}

func TestRunIsolatesChunkFailures(t *testing.T) {
	step := &fakeStep{
		name: "transcribe",
		execute: func(_ context.Context, _ *Context, state *ChunkState) error {
			if state.Chunk.Index == 1 {
				return errors.New("provider refused chunk")
			}
			state.Items = append(state.Items, subtitle.Item{
				ID:         fmt.Sprintf("%d-0", state.Chunk.Index),
				ChunkIndex: state.Chunk.Index,
				Start:      state.Chunk.Start,
				End:        state.Chunk.Start + 5,
			})
			return nil
		},
	}

	engine := NewEngine(testConfig(), nil, []Step{step}, nil)
	result, err := engine.Run(context.Background(), Request{Chunks: planTestChunks(4)})
	require.NoError(t, err)
	assert.Len(t, result.Subtitles, 3)
	assert.Equal(t, 1, result.Usage.Analytics.ChunksFailed)
	assert.Equal(t, 3, result.Usage.Analytics.ChunksSucceeded)
}

func TestRunAllChunksFailedReturnsFirstError(t *testing.T) {
	boom := errors.New("model unavailable")
	step := &fakeStep{
		name: "transcribe",
		execute: func(context.Context, *Context, *ChunkState) error {
			return boom
		},
	}

	engine := NewEngine(testConfig(), nil, []Step{step}, nil)
	_, err := engine.Run(context.Background(), Request{Chunks: planTestChunks(3)})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestRunFallbackKeepsChunkUsable(t *testing.T) {
	step := &fakeStep{
		name: "refine",
		execute: func(context.Context, *Context, *ChunkState) error {
			return errors.New("refinement rejected")
		},
		fallback: func(_ context.Context, _ *Context, state *ChunkState, _ error) error {
			state.Items = append(state.Items, subtitle.Item{
				ID:         fmt.Sprintf("%d-raw", state.Chunk.Index),
				ChunkIndex: state.Chunk.Index,
				Start:      state.Chunk.Start,
				End:        state.Chunk.Start + 5,
				Original:   "raw transcription",
			})
			return nil
		},
	}

	engine := NewEngine(testConfig(), nil, []Step{step}, nil)
	result, err := engine.Run(context.Background(), Request{Chunks: planTestChunks(2)})
	require.NoError(t, err)
	assert.Len(t, result.Subtitles, 2)
	assert.Equal(t, 2, result.Usage.Analytics.Fallbacks["refine"])
	assert.Equal(t, 2, result.Usage.Analytics.ChunksSucceeded)
}

func TestRunSkipsInapplicableStepWithoutGate(t *testing.T) {
	gate := NewGate("align", 1)
	require.NoError(t, gate.Acquire(context.Background()))
	defer gate.Release()

	// The gate is fully occupied; if the skipped step touched it the run
	// would deadlock.
	step := &fakeStep{
		name:       "align",
		applicable: func(*Context, *ChunkState) bool { return false },
		gate:       func(*Context) *Gate { return gate },
		execute: func(context.Context, *Context, *ChunkState) error {
			return errors.New("must not execute")
		},
	}

	engine := NewEngine(testConfig(), nil, []Step{produceStep(), step}, nil)
	result, err := engine.Run(context.Background(), Request{Chunks: planTestChunks(2)})
	require.NoError(t, err)
	assert.Len(t, result.Subtitles, 4)
}

func TestRunCancellationIsNeverConvertedToFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fallbacks := atomic.Int32{}
	step := &fakeStep{
		name: "transcribe",
		execute: func(stepCtx context.Context, _ *Context, state *ChunkState) error {
			if state.Chunk.Index == 0 {
				cancel()
				return stepCtx.Err()
			}
			<-stepCtx.Done()
			return stepCtx.Err()
		},
		fallback: func(context.Context, *Context, *ChunkState, error) error {
			fallbacks.Add(1)
			return nil
		},
	}

	cfg := testConfig()
	cfg.Pipeline.Concurrency = 2
	engine := NewEngine(cfg, nil, []Step{step}, nil)
	_, err := engine.Run(ctx, Request{Chunks: planTestChunks(2)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), fallbacks.Load())
}

func TestRunGlossaryProceedOnFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Glossary.ProceedOnFailure = true

	awaited := make(chan glossary.Merged, 2)
	step := &fakeStep{
		name: "translate",
		execute: func(ctx context.Context, run *Context, state *ChunkState) error {
			merged, err := run.Glossary.Await(ctx)
			if err != nil {
				return err
			}
			awaited <- merged
			return nil
		},
	}

	engine := NewEngine(cfg, nil, []Step{produceStep(), step}, nil)
	result, err := engine.Run(context.Background(), Request{
		Chunks: planTestChunks(2),
		GlossaryFunc: func(context.Context) (glossary.Merged, error) {
			return glossary.Merged{}, errors.New("extraction blew up")
		},
	})
	require.NoError(t, err)
	assert.Len(t, result.Subtitles, 4)
	assert.True(t, result.Glossary.Empty())
	for i := 0; i < 2; i++ {
		assert.True(t, (<-awaited).Empty())
	}
}

func TestRunGlossarySharedAcrossChunks(t *testing.T) {
	var extractions atomic.Int32
	step := &fakeStep{
		name: "translate",
		execute: func(ctx context.Context, run *Context, _ *ChunkState) error {
			_, err := run.Glossary.Await(ctx)
			return err
		},
	}

	engine := NewEngine(testConfig(), nil, []Step{produceStep(), step}, nil)
	result, err := engine.Run(context.Background(), Request{
		Chunks: planTestChunks(6),
		GlossaryFunc: func(context.Context) (glossary.Merged, error) {
			extractions.Add(1)
			return glossary.Merged{Terms: []glossary.Term{{Term: "Aurora", Translation: "オーロラ"}}}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), extractions.Load())
	require.Len(t, result.Glossary.Terms, 1)
	assert.Equal(t, "Aurora", result.Glossary.Terms[0].Term)
}

func TestRegenerateSelectsMarkedChunksByDefault(t *testing.T) {
	items := []subtitle.Item{
		{ID: "0-0", ChunkIndex: 0, Start: 0, End: 5, Original: "fine", Translated: "ok"},
		{ID: "1-0", ChunkIndex: 1, Start: 30, End: 35, Original: "broken", CorruptedRangeIssue: true},
		{ID: "1-1", ChunkIndex: 1, Start: 35, End: 40, Original: "also broken", CorruptedRangeIssue: true},
		{ID: "2-0", ChunkIndex: 2, Start: 60, End: 65, Original: "fine too", Translated: "ok"},
	}

	var touched []int
	var touchedMu sync.Mutex
	step := &fakeStep{
		name: "refine",
		execute: func(_ context.Context, _ *Context, state *ChunkState) error {
			touchedMu.Lock()
			touched = append(touched, state.Chunk.Index)
			touchedMu.Unlock()
			for i := range state.Items {
				state.Items[i].Translated = "regenerated"
			}
			return nil
		},
	}

	engine := NewEngine(testConfig(), nil, []Step{step}, nil)
	result, err := engine.Regenerate(context.Background(), RegenerateRequest{Items: items})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, touched)
	require.Len(t, result.Subtitles, 4)
	assert.True(t, subtitle.Sorted(result.Subtitles))

	byID := make(map[string]subtitle.Item)
	for _, item := range result.Subtitles {
		byID[item.ID] = item
	}
	assert.Equal(t, "ok", byID["0-0"].Translated, "untouched chunks pass through unchanged")
	assert.Equal(t, "regenerated", byID["1-0"].Translated)
	assert.False(t, byID["1-0"].CorruptedRangeIssue, "markers are reset before the rerun")
}

func TestRegenerateExplicitChunkSelection(t *testing.T) {
	items := []subtitle.Item{
		{ID: "0-0", ChunkIndex: 0, Start: 0, End: 5, Translated: "keep"},
		{ID: "1-0", ChunkIndex: 1, Start: 30, End: 35, Translated: "stale"},
	}
	step := &fakeStep{
		name: "translate",
		execute: func(_ context.Context, _ *Context, state *ChunkState) error {
			for i := range state.Items {
				state.Items[i].Translated = "fresh"
			}
			return nil
		},
	}

	engine := NewEngine(testConfig(), nil, []Step{step}, nil)
	result, err := engine.Regenerate(context.Background(), RegenerateRequest{
		Items:        items,
		ChunkIndexes: []int{1},
	})
	require.NoError(t, err)
	byID := make(map[string]subtitle.Item)
	for _, item := range result.Subtitles {
		byID[item.ID] = item
	}
	assert.Equal(t, "keep", byID["0-0"].Translated)
	assert.Equal(t, "fresh", byID["1-0"].Translated)
}

func TestRegenerateWithNoSelectionFails(t *testing.T) {
	engine := NewEngine(testConfig(), nil, nil, nil)
	_, err := engine.Regenerate(context.Background(), RegenerateRequest{
		Items: []subtitle.Item{{ID: "0-0", ChunkIndex: 0, Translated: "clean"}},
	})
	assert.Error(t, err)
}
