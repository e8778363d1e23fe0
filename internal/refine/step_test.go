package refine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subweave/internal/config"
	"subweave/internal/glossary"
	"subweave/internal/logging"
	"subweave/internal/pipeline"
	"subweave/internal/services/llm"
	"subweave/internal/subtitle"
)

// scriptedServer returns each canned content once, in order, repeating the
// last one afterwards.
func scriptedServer(t *testing.T, contents ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		index := int(calls.Add(1)) - 1
		if index >= len(contents) {
			index = len(contents) - 1
		}
		body := map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": contents[index]}}},
			"usage":   map[string]any{"prompt_tokens": 100, "completion_tokens": 50},
		}
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func testRun() *pipeline.Context {
	cfg := config.Default()
	cfg.Pipeline.RefineRetries = 2
	return &pipeline.Context{
		RunID:    "test-run",
		Logger:   logging.NewNop(),
		Config:   &cfg,
		Usage:    pipeline.NewUsageTracker(),
		Glossary: pipeline.ResolvedFuture(glossary.Merged{}),
		Speakers: pipeline.ResolvedFuture[[]glossary.Speaker](nil),
	}
}

func rawState() *pipeline.ChunkState {
	return &pipeline.ChunkState{
		Chunk: subtitle.Chunk{Index: 0, Start: 0, End: 30},
		Items: []subtitle.Item{
			{ID: "0-0", ChunkIndex: 0, Start: 0, End: 3, Original: "hello there"},
			{ID: "0-1", ChunkIndex: 0, Start: 3.5, End: 6, Original: "general konobi"},
		},
	}
}

func newTestStep(serverURL string) *Step {
	return NewStep(llm.NewClient(llm.Config{APIKey: "test", BaseURL: serverURL, Model: "demo"}))
}

const cleanRefinement = `{"lines":[
  {"id":"0-0","start":0.0,"end":3.0,"text":"Hello there."},
  {"id":"0-1","start":3.5,"end":6.0,"text":"General Kenobi!","speaker":"Grievous"}
]}`

func TestExecuteAppliesRefinement(t *testing.T) {
	server, calls := scriptedServer(t, cleanRefinement)
	run := testRun()
	state := rawState()

	step := newTestStep(server.URL)
	require.True(t, step.Applicable(run, state))
	require.NoError(t, step.Execute(context.Background(), run, state))

	require.Len(t, state.Items, 2)
	assert.Equal(t, "General Kenobi!", state.Items[1].Original)
	assert.Equal(t, "Grievous", state.Items[1].Speaker)
	assert.Equal(t, int32(1), calls.Load())

	usage := run.Usage.Snapshot()
	assert.Equal(t, 1, usage.ByStage["refine"].Calls)
	assert.Equal(t, int64(100), usage.ByStage["refine"].PromptTokens)
}

func TestExecuteRetriesCorruptedTimeline(t *testing.T) {
	// First response has a 12s line followed by an 8s backwards jump, the
	// signature of a corrupted range. Second response is clean.
	corrupted := `{"lines":[
	  {"id":"0-0","start":0,"end":3,"text":"ok"},
	  {"id":"0-1","start":4,"end":16,"text":"way too long"},
	  {"id":"0-2","start":17,"end":18,"text":"garbage"},
	  {"id":"0-3","start":9,"end":11,"text":"recovered"}
	]}`
	server, calls := scriptedServer(t, corrupted, cleanRefinement)
	run := testRun()
	state := rawState()

	require.NoError(t, newTestStep(server.URL).Execute(context.Background(), run, state))
	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, state.Items, 2)
	for _, item := range state.Items {
		assert.False(t, item.CorruptedRangeIssue)
	}
}

func TestExecuteMarksSurvivingAnomaliesOnFinalAttempt(t *testing.T) {
	corrupted := `{"lines":[
	  {"id":"0-0","start":0,"end":3,"text":"ok"},
	  {"id":"0-1","start":4,"end":16,"text":"way too long"},
	  {"id":"0-2","start":17,"end":18,"text":"garbage"},
	  {"id":"0-3","start":9,"end":11,"text":"recovered"}
	]}`
	server, calls := scriptedServer(t, corrupted)
	run := testRun()
	run.Config.Pipeline.RefineRetries = 1
	state := rawState()

	require.NoError(t, newTestStep(server.URL).Execute(context.Background(), run, state))
	assert.Equal(t, int32(2), calls.Load(), "one retry then accept")

	require.Len(t, state.Items, 4)
	assert.True(t, state.Items[1].CorruptedRangeIssue)
	assert.True(t, state.Items[2].CorruptedRangeIssue)
	assert.False(t, state.Items[0].CorruptedRangeIssue)
	assert.False(t, state.Items[3].CorruptedRangeIssue)
	assert.Equal(t, 1, run.Usage.Snapshot().Analytics.CorruptedRanges)
}

func TestExecuteAcceptsIndependentRegressionWithoutRetry(t *testing.T) {
	// A lone small regression is marked, never retried.
	regression := `{"lines":[
	  {"id":"0-0","start":10,"end":12,"text":"ok"},
	  {"id":"0-1","start":3,"end":5,"text":"jumped back"}
	]}`
	server, calls := scriptedServer(t, regression)
	run := testRun()
	state := rawState()

	require.NoError(t, newTestStep(server.URL).Execute(context.Background(), run, state))
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, state.Items[1].RegressionIssue)
	assert.False(t, state.Items[1].CorruptedRangeIssue)
}

func TestExecuteKeepsRawOnPersistentGarbage(t *testing.T) {
	server, calls := scriptedServer(t, "not json at all")
	run := testRun()
	run.Config.Pipeline.RefineRetries = 2
	state := rawState()
	original := append([]subtitle.Item(nil), state.Items...)

	require.NoError(t, newTestStep(server.URL).Execute(context.Background(), run, state))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, original, state.Items, "raw transcription survives undecodable refinement")
}

func TestFallbackKeepsRawTranscription(t *testing.T) {
	run := testRun()
	state := rawState()
	original := append([]subtitle.Item(nil), state.Items...)

	require.NoError(t, NewStep(nil).Fallback(context.Background(), run, state, assert.AnError))
	assert.Equal(t, original, state.Items)
}

func TestNotApplicableWithoutItems(t *testing.T) {
	step := NewStep(nil)
	assert.False(t, step.Applicable(nil, &pipeline.ChunkState{}))
}
