package pipeline

import (
	"sync"

	"subweave/internal/subtitle"
)

// Accumulator collects completed chunk results and keeps the combined list
// time-ordered. Each chunk index has exactly one contribution slot; a second
// Add for the same index is dropped so a retried worker cannot duplicate
// lines.
type Accumulator struct {
	mu     sync.Mutex
	items  []subtitle.Item
	filled map[int]bool
}

func NewAccumulator() *Accumulator {
	return &Accumulator{filled: make(map[int]bool)}
}

// Add merges one chunk's items and returns a sorted snapshot of everything
// accumulated so far. The snapshot is a copy; callers may hand it to
// listeners without synchronizing with later additions.
func (a *Accumulator) Add(chunkIndex int, items []subtitle.Item) []subtitle.Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.filled[chunkIndex] {
		a.filled[chunkIndex] = true
		a.items = append(a.items, items...)
		subtitle.SortByStart(a.items)
	}
	return a.snapshotLocked()
}

// Snapshot returns a sorted copy of the accumulated items.
func (a *Accumulator) Snapshot() []subtitle.Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Len reports how many items have accumulated.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

func (a *Accumulator) snapshotLocked() []subtitle.Item {
	snapshot := make([]subtitle.Item, len(a.items))
	copy(snapshot, a.items)
	return snapshot
}
