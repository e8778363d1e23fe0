package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting concurrency gate bounding use of one external resource
// class. Distinct gates exist per resource class because each provider has
// independent rate and quota characteristics; sharing one pool would let a
// slow stage starve a fast one.
type Gate struct {
	name  string
	limit int64
	sem   *semaphore.Weighted
}

// NewGate constructs a gate admitting at most limit concurrent holders.
func NewGate(name string, limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{name: name, limit: int64(limit), sem: semaphore.NewWeighted(int64(limit))}
}

// Name returns the resource class label.
func (g *Gate) Name() string {
	if g == nil {
		return ""
	}
	return g.name
}

// Limit returns the configured concurrency bound.
func (g *Gate) Limit() int {
	if g == nil {
		return 0
	}
	return int(g.limit)
}

// Acquire suspends the caller until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if g == nil {
		return nil
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire %s gate: %w", g.name, err)
	}
	return nil
}

// Release returns a slot to the gate.
func (g *Gate) Release() {
	if g == nil {
		return
	}
	g.sem.Release(1)
}

// Gates bundles the per-stage concurrency gates for one run.
type Gates struct {
	Transcribe *Gate
	Refine     *Gate
	Align      *Gate
	Translate  *Gate
}
