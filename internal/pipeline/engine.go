package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"subweave/internal/config"
	"subweave/internal/glossary"
	"subweave/internal/logging"
	"subweave/internal/media"
	"subweave/internal/services"
	"subweave/internal/subtitle"
)

// ProgressEvent reports one finished chunk to the caller.
type ProgressEvent struct {
	ChunkIndex int
	Completed  int
	Total      int
	Failed     bool
	Err        error
}

// Callbacks are optional run observers. All of them may be invoked from
// worker goroutines; implementations must tolerate concurrent calls.
type Callbacks struct {
	OnProgress func(ProgressEvent)

	// OnIntermediate receives a sorted snapshot of all items accumulated so
	// far, after every chunk completion.
	OnIntermediate func(items []subtitle.Item)

	OnGlossaryReady func(glossary.Merged)
}

// Request describes one generation run.
type Request struct {
	Source         media.Source
	SourceLanguage string
	TargetLanguage string

	// Chunks overrides planning when non-empty, used by tests and partial
	// reruns. Normally left nil and planned from the source duration.
	Chunks []subtitle.Chunk

	// GlossaryFunc computes the shared glossary; nil disables the future, in
	// which case translation sees an empty glossary immediately. Same for
	// SpeakersFunc.
	GlossaryFunc func(ctx context.Context) (glossary.Merged, error)
	SpeakersFunc func(ctx context.Context) ([]glossary.Speaker, error)

	Callbacks Callbacks
}

// Result is the outcome of a completed run.
type Result struct {
	RunID     string
	Subtitles []subtitle.Item
	Glossary  glossary.Merged
	Speakers  []glossary.Speaker
	Usage     UsageReport
}

// Engine drives chunks through an ordered step chain with a bounded worker
// pool. Steps are injected at construction so the engine stays free of any
// provider coupling.
type Engine struct {
	cfg       *config.Config
	logger    *slog.Logger
	steps     []Step
	artifacts ArtifactSink
}

// NewEngine wires an engine. A nil artifact sink disables artifact capture.
func NewEngine(cfg *config.Config, logger *slog.Logger, steps []Step, artifacts ArtifactSink) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	if artifacts == nil {
		artifacts = NopSink{}
	}
	return &Engine{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		steps:     steps,
		artifacts: artifacts,
	}
}

// Run executes the full pipeline over the source. Cancellation before any
// chunk is scheduled returns ctx.Err() without a single provider call. Per
// chunk failures are isolated; the run fails outright only when every chunk
// fails, and then with the first error observed.
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	chunks := req.Chunks
	if len(chunks) == 0 && req.Source != nil {
		chunks = media.PlanChunks(req.Source.Duration(), e.cfg.Pipeline.ChunkSeconds)
	}
	if len(chunks) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, "pipeline", "plan", "source yields no chunks", nil)
	}

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := e.logger.With(logging.String(logging.FieldRunID, runID))
	logger.Info("run starting",
		logging.Int("chunks", len(chunks)),
		logging.String("target_language", req.TargetLanguage),
	)

	run := &Context{
		RunID:          runID,
		Logger:         logger,
		Config:         e.cfg,
		Usage:          NewUsageTracker(),
		Artifacts:      e.artifacts,
		Gates:          e.buildGates(),
		Glossary:       e.buildGlossaryFuture(req, logger),
		Speakers:       e.buildSpeakersFuture(req, logger),
		Source:         req.Source,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
	}
	run.Glossary.Start(ctx)
	run.Speakers.Start(ctx)

	accumulator := NewAccumulator()
	var (
		progressMu sync.Mutex
		completed  int
		failed     int
		firstErr   error
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(fanout(e.cfg.Pipeline.Concurrency, len(chunks)))

	for _, chunk := range chunks {
		chunk := chunk
		group.Go(func() error {
			chunkCtx := services.WithChunk(groupCtx, chunk.Index)
			state := &ChunkState{Chunk: chunk}

			err := e.runChunk(chunkCtx, run, state)
			if services.IsCancellation(err) {
				return err
			}

			progressMu.Lock()
			completed++
			if err != nil {
				failed++
				if firstErr == nil {
					firstErr = err
				}
			}
			event := ProgressEvent{
				ChunkIndex: chunk.Index,
				Completed:  completed,
				Total:      len(chunks),
				Failed:     err != nil,
				Err:        err,
			}
			progressMu.Unlock()

			run.Usage.RecordChunk(err == nil)
			if err != nil {
				logger.Error("chunk failed",
					logging.Int(logging.FieldChunk, chunk.Index),
					logging.Error(err),
				)
			} else {
				snapshot := accumulator.Add(chunk.Index, state.Items)
				if req.Callbacks.OnIntermediate != nil {
					req.Callbacks.OnIntermediate(snapshot)
				}
			}
			if req.Callbacks.OnProgress != nil {
				req.Callbacks.OnProgress(event)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return Result{}, err
	}
	if failed == len(chunks) && firstErr != nil {
		return Result{}, fmt.Errorf("all %d chunks failed: %w", len(chunks), firstErr)
	}

	result := Result{
		RunID:     runID,
		Subtitles: accumulator.Snapshot(),
		Usage:     run.Usage.Snapshot(),
	}
	if run.Glossary.Resolved() {
		if merged, err := run.Glossary.Await(ctx); err == nil {
			result.Glossary = merged
		}
	}
	if run.Speakers.Resolved() {
		if speakers, err := run.Speakers.Await(ctx); err == nil {
			result.Speakers = speakers
		}
	}

	logger.Info("run finished",
		logging.Int("items", len(result.Subtitles)),
		logging.Int("chunks_failed", failed),
		logging.Int64("total_tokens", result.Usage.TotalTokens()),
	)
	return result, nil
}

func (e *Engine) runChunk(ctx context.Context, run *Context, state *ChunkState) error {
	for _, step := range e.steps {
		if _, err := RunStep(ctx, run, step, state); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) buildGates() Gates {
	p := e.cfg.Pipeline
	return Gates{
		Transcribe: NewGate("transcribe", p.TranscribeLimit),
		Refine:     NewGate("refine", p.RefineLimit),
		Align:      NewGate("align", p.AlignLimit),
		Translate:  NewGate("translate", p.TranslateLimit),
	}
}

// buildGlossaryFuture wraps the compute with the degrade policy: when
// proceed-on-failure is on, an extraction error resolves the future to an
// empty glossary instead of rejecting every waiter.
func (e *Engine) buildGlossaryFuture(req Request, logger *slog.Logger) *Future[glossary.Merged] {
	if req.GlossaryFunc == nil {
		return ResolvedFuture(glossary.Merged{})
	}
	proceed := e.cfg.Glossary.ProceedOnFailure
	onReady := req.Callbacks.OnGlossaryReady
	return NewFuture(func(ctx context.Context) (glossary.Merged, error) {
		merged, err := req.GlossaryFunc(ctx)
		if err != nil {
			if services.IsCancellation(err) || !proceed {
				return glossary.Merged{}, err
			}
			logger.Warn("glossary extraction failed; proceeding without glossary", logging.Error(err))
			return glossary.Merged{}, nil
		}
		if onReady != nil {
			onReady(merged)
		}
		return merged, nil
	})
}

func (e *Engine) buildSpeakersFuture(req Request, logger *slog.Logger) *Future[[]glossary.Speaker] {
	if req.SpeakersFunc == nil {
		return ResolvedFuture[[]glossary.Speaker](nil)
	}
	proceed := e.cfg.Speakers.ProceedOnFailure
	return NewFuture(func(ctx context.Context) ([]glossary.Speaker, error) {
		speakers, err := req.SpeakersFunc(ctx)
		if err != nil {
			if services.IsCancellation(err) || !proceed {
				return nil, err
			}
			logger.Warn("speaker profiling failed; proceeding without speakers", logging.Error(err))
			return nil, nil
		}
		return speakers, nil
	})
}

// fanout bounds the worker pool to the smaller of the configured concurrency
// and the chunk count. Config normalization already enforces the hard cap.
func fanout(concurrency, chunkCount int) int {
	if concurrency < 1 {
		concurrency = 1
	}
	if chunkCount < concurrency {
		return chunkCount
	}
	return concurrency
}
