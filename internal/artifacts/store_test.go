package artifacts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subweave/internal/pipeline"
	"subweave/internal/services"
	"subweave/internal/testsupport"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)

	store, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	record, err := store.Save(ctx, "run-1", 0, "transcribe", []byte(`[{"id":"0-0"}]`))
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Len(t, record.Hash, 64)

	payload, err := store.Load(ctx, "run-1", 0, "transcribe")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"0-0"}]`, string(payload))
}

func TestLoadReturnsNewestPayload(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, "run-1", 2, "refine", []byte("first attempt"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "run-1", 2, "refine", []byte("second attempt"))
	require.NoError(t, err)

	payload, err := store.Load(ctx, "run-1", 2, "refine")
	require.NoError(t, err)
	assert.Equal(t, "second attempt", string(payload))
}

func TestIdenticalPayloadsShareOneHash(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.Save(ctx, "run-1", 0, "refine", []byte("same bytes"))
	require.NoError(t, err)
	second, err := store.Save(ctx, "run-1", 1, "refine", []byte("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestLoadMissingArtifact(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Load(context.Background(), "nope", 0, "refine")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrNotFound))
}

func TestSaveRejectsEmptyPayload(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Save(context.Background(), "run-1", 0, "refine", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrValidation))
}

func TestListAndRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, "run-a", 0, "transcribe", []byte("a0"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "run-a", 1, "transcribe", []byte("a1"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "run-b", 0, "translate", []byte("b0"))
	require.NoError(t, err)

	records, err := store.List(ctx, "run-a")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"run-a", "run-b"}, runs)
}

func TestSinkSavesPipelineArtifacts(t *testing.T) {
	store := openTestStore(t)
	sink := NewSink(store, nil)

	err := sink.Save(context.Background(), pipeline.Artifact{
		RunID:      "run-1",
		ChunkIndex: 3,
		Stage:      "align",
		Payload:    []byte("aligned"),
	})
	require.NoError(t, err)

	payload, err := store.Load(context.Background(), "run-1", 3, "align")
	require.NoError(t, err)
	assert.Equal(t, "aligned", string(payload))
}
