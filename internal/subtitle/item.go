package subtitle

import "sort"

// Chunk is one bounded time-range unit of the source media. Chunks are
// created once during planning and never mutated.
type Chunk struct {
	Index int
	Start float64
	End   float64
}

// Duration returns the chunk length in seconds.
func (c Chunk) Duration() float64 {
	return c.End - c.Start
}

// Item is a single subtitle line as it moves through the pipeline.
// Transcription creates it; refinement rewrites timing and text; alignment
// rewrites timing and confidence; translation fills Translated.
type Item struct {
	ID         string
	ChunkIndex int
	Start      float64
	End        float64
	Original   string
	Translated string
	Speaker    string
	Comment    string

	AlignmentScore float64
	LowConfidence  bool

	// Quality markers set by timeline validation. Marking is non-destructive:
	// text and timing are never rewritten when these are set.
	RegressionIssue     bool
	CorruptedRangeIssue bool
}

// Duration returns the item length in seconds.
func (i Item) Duration() float64 {
	return i.End - i.Start
}

// SortByStart orders items by start time, breaking ties by chunk index so
// chunk-boundary items keep a stable order. The accumulator appends completed
// chunks to an already-ordered prefix, so insertion sort is effectively
// linear here; it only degrades to quadratic on adversarial input.
func SortByStart(items []Item) {
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && less(items[j], items[j-1]) {
			items[j], items[j-1] = items[j-1], items[j]
			j--
		}
	}
}

// Sorted reports whether items are already in non-decreasing start order.
func Sorted(items []Item) bool {
	return sort.SliceIsSorted(items, func(a, b int) bool {
		return less(items[a], items[b])
	})
}

func less(a, b Item) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.ChunkIndex < b.ChunkIndex
}
