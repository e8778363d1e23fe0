package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subweave/internal/subtitle"
)

func TestAccumulatorKeepsOrderAcrossOutOfOrderAdds(t *testing.T) {
	acc := NewAccumulator()

	snapshot := acc.Add(2, []subtitle.Item{
		{ID: "2-0", ChunkIndex: 2, Start: 60, End: 65},
		{ID: "2-1", ChunkIndex: 2, Start: 70, End: 75},
	})
	assert.True(t, subtitle.Sorted(snapshot))

	snapshot = acc.Add(0, []subtitle.Item{
		{ID: "0-0", ChunkIndex: 0, Start: 0, End: 5},
	})
	require.Len(t, snapshot, 3)
	assert.True(t, subtitle.Sorted(snapshot))
	assert.Equal(t, "0-0", snapshot[0].ID)

	snapshot = acc.Add(1, []subtitle.Item{
		{ID: "1-0", ChunkIndex: 1, Start: 30, End: 35},
	})
	require.Len(t, snapshot, 4)
	assert.Equal(t, []string{"0-0", "1-0", "2-0", "2-1"}, ids(snapshot))
}

func TestAccumulatorDropsDuplicateChunkContribution(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(0, []subtitle.Item{{ID: "0-0", ChunkIndex: 0, Start: 0, End: 5}})
	snapshot := acc.Add(0, []subtitle.Item{{ID: "0-dup", ChunkIndex: 0, Start: 0, End: 5}})
	require.Len(t, snapshot, 1)
	assert.Equal(t, "0-0", snapshot[0].ID)
}

func TestAccumulatorSnapshotIsACopy(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(0, []subtitle.Item{{ID: "0-0", ChunkIndex: 0, Start: 0, End: 5}})

	snapshot := acc.Snapshot()
	snapshot[0].ID = "mutated"

	fresh := acc.Snapshot()
	assert.Equal(t, "0-0", fresh[0].ID)
	assert.Equal(t, 1, acc.Len())
}

func ids(items []subtitle.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
