package pipeline

import (
	"context"
	"log/slog"

	"subweave/internal/config"
	"subweave/internal/glossary"
	"subweave/internal/media"
	"subweave/internal/subtitle"
)

// Artifact is one intermediate stage output worth persisting for later
// inspection or regeneration.
type Artifact struct {
	RunID      string
	ChunkIndex int
	Stage      string
	Payload    []byte
}

// ArtifactSink persists intermediate artifacts. Persistence is best effort:
// the scheduler logs sink errors and moves on, it never fails a chunk over
// them.
type ArtifactSink interface {
	Save(ctx context.Context, artifact Artifact) error
}

// NopSink discards every artifact.
type NopSink struct{}

func (NopSink) Save(context.Context, Artifact) error { return nil }

// Context carries the run-scoped dependencies every step sees. It is built
// once per run and treated as read-only by steps; mutable run state lives in
// the usage tracker and the accumulator, which synchronize internally.
type Context struct {
	RunID  string
	Logger *slog.Logger
	Config *config.Config

	Usage     *UsageTracker
	Artifacts ArtifactSink
	Gates     Gates

	// Glossary and Speakers are shared futures: started once before fan-out,
	// awaited lazily by whichever steps need them.
	Glossary *Future[glossary.Merged]
	Speakers *Future[[]glossary.Speaker]

	Source         media.Source
	SourceLanguage string
	TargetLanguage string
}

// ChunkState is the per-chunk working set threaded through the step chain.
// Exactly one goroutine owns a ChunkState at a time, so steps mutate it
// without locking.
type ChunkState struct {
	Chunk subtitle.Chunk

	// Clip is the extracted audio segment. Empty when the chunk is being
	// regenerated from existing items rather than from audio.
	Clip media.Clip

	Items []subtitle.Item
}
