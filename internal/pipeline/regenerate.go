package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"subweave/internal/glossary"
	"subweave/internal/logging"
	"subweave/internal/services"
	"subweave/internal/subtitle"
)

// RegenerateRequest describes a partial rerun over an existing subtitle set.
// Only the named chunks are reprocessed; when ChunkIndexes is empty, the
// chunks containing quality-marked items are selected automatically.
type RegenerateRequest struct {
	Items          []subtitle.Item
	ChunkIndexes   []int
	SourceLanguage string
	TargetLanguage string

	// Glossary reuses a previously extracted glossary so regeneration stays
	// consistent with the original run's terminology.
	Glossary glossary.Merged
	Speakers []glossary.Speaker

	Callbacks Callbacks
}

// Regenerate re-runs the step chain over the selected chunks, feeding each
// chunk its existing items instead of audio. Steps that need audio report
// themselves inapplicable for such chunks and are skipped. Untouched chunks
// pass through unchanged; the merged result is re-sorted.
func (e *Engine) Regenerate(ctx context.Context, req RegenerateRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(req.Items) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, "pipeline", "regenerate", "no items to regenerate", nil)
	}

	grouped := groupByChunk(req.Items)
	selected := selectChunks(grouped, req.ChunkIndexes)
	if len(selected) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, "pipeline", "regenerate", "no chunks selected", nil)
	}

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := e.logger.With(logging.String(logging.FieldRunID, runID))
	logger.Info("regeneration starting",
		logging.Int("chunks", len(selected)),
		logging.Int("items", len(req.Items)),
	)

	run := &Context{
		RunID:          runID,
		Logger:         logger,
		Config:         e.cfg,
		Usage:          NewUsageTracker(),
		Artifacts:      e.artifacts,
		Gates:          e.buildGates(),
		Glossary:       ResolvedFuture(req.Glossary),
		Speakers:       ResolvedFuture(req.Speakers),
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
	}

	accumulator := NewAccumulator()
	for index, items := range grouped {
		if _, rerun := selected[index]; !rerun {
			accumulator.Add(index, items)
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(fanout(e.cfg.Pipeline.Concurrency, len(selected)))

	indexes := make([]int, 0, len(selected))
	for index := range selected {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	var (
		failMu   sync.Mutex
		firstErr error
		failed   int
	)
	for _, index := range indexes {
		index := index
		items := selected[index]
		group.Go(func() error {
			chunkCtx := services.WithChunk(groupCtx, index)
			state := &ChunkState{
				Chunk: chunkFromItems(index, items),
				Items: resetItems(items),
			}
			err := e.runChunk(chunkCtx, run, state)
			if services.IsCancellation(err) {
				return err
			}
			run.Usage.RecordChunk(err == nil)
			if err != nil {
				failMu.Lock()
				failed++
				if firstErr == nil {
					firstErr = err
				}
				failMu.Unlock()
				logger.Error("chunk regeneration failed",
					logging.Int(logging.FieldChunk, index),
					logging.Error(err),
				)
				accumulator.Add(index, items)
				return nil
			}
			snapshot := accumulator.Add(index, state.Items)
			if req.Callbacks.OnIntermediate != nil {
				req.Callbacks.OnIntermediate(snapshot)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Result{}, err
	}
	if failed == len(selected) && firstErr != nil {
		return Result{}, firstErr
	}

	return Result{
		RunID:     runID,
		Subtitles: accumulator.Snapshot(),
		Glossary:  req.Glossary,
		Speakers:  req.Speakers,
		Usage:     run.Usage.Snapshot(),
	}, nil
}

func groupByChunk(items []subtitle.Item) map[int][]subtitle.Item {
	grouped := make(map[int][]subtitle.Item)
	for _, item := range items {
		grouped[item.ChunkIndex] = append(grouped[item.ChunkIndex], item)
	}
	return grouped
}

func selectChunks(grouped map[int][]subtitle.Item, requested []int) map[int][]subtitle.Item {
	selected := make(map[int][]subtitle.Item)
	if len(requested) > 0 {
		for _, index := range requested {
			if items, ok := grouped[index]; ok {
				selected[index] = items
			}
		}
		return selected
	}
	for index, items := range grouped {
		for _, item := range items {
			if item.RegressionIssue || item.CorruptedRangeIssue {
				selected[index] = items
				break
			}
		}
	}
	return selected
}

func chunkFromItems(index int, items []subtitle.Item) subtitle.Chunk {
	chunk := subtitle.Chunk{Index: index}
	if len(items) == 0 {
		return chunk
	}
	chunk.Start = items[0].Start
	chunk.End = items[0].End
	for _, item := range items {
		if item.Start < chunk.Start {
			chunk.Start = item.Start
		}
		if item.End > chunk.End {
			chunk.End = item.End
		}
	}
	return chunk
}

// resetItems clears quality markers and stale translations so the rerun
// judges the chunk fresh. Originals and timings are kept as the rerun input.
func resetItems(items []subtitle.Item) []subtitle.Item {
	reset := make([]subtitle.Item, len(items))
	copy(reset, items)
	for i := range reset {
		reset[i].RegressionIssue = false
		reset[i].CorruptedRangeIssue = false
		reset[i].Translated = ""
		reset[i].Comment = ""
	}
	return reset
}
