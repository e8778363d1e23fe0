// Package pipeline contains the orchestration core: the chunk scheduler, the
// uniform step template, per-stage concurrency gates, shared futures for
// cross-chunk state, the retry-with-validation combinator, and the
// incremental ordered result accumulator.
//
// The scheduler fans every chunk out through the step chain with a bounded
// pool. Per-chunk failures are isolated; cancellation is propagated and halts
// scheduling. Partial results are re-sorted and snapshotted after every chunk
// completion so progressive output is always time-ordered.
package pipeline
