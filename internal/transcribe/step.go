package transcribe

import (
	"context"
	"encoding/json"

	"subweave/internal/pipeline"
	"subweave/internal/services"
)

// Step is the transcription stage. It extracts the chunk's audio on demand
// and recognizes it. Transcription has no fallback: a chunk without any text
// cannot continue, so a failure here fails the chunk.
type Step struct {
	provider *Provider
}

func NewStep(provider *Provider) *Step {
	return &Step{provider: provider}
}

func (s *Step) Name() string { return "transcribe" }

// Applicable is false for chunks that already carry items, which is how
// regeneration runs skip straight to the text stages.
func (s *Step) Applicable(run *pipeline.Context, state *pipeline.ChunkState) bool {
	return len(state.Items) == 0 && run.Source != nil
}

func (s *Step) Gate(run *pipeline.Context) *pipeline.Gate {
	return run.Gates.Transcribe
}

func (s *Step) Execute(ctx context.Context, run *pipeline.Context, state *pipeline.ChunkState) error {
	clip, err := run.Source.Segment(ctx, state.Chunk.Start, state.Chunk.End)
	if err != nil {
		return err
	}
	state.Clip = clip

	items, err := s.provider.Transcribe(ctx, state.Chunk.Index, clip)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return services.Wrap(services.ErrValidation, "transcribe", "recognize",
			"recognizer returned no segments", nil)
	}
	state.Items = items
	return nil
}

func (s *Step) Fallback(_ context.Context, _ *pipeline.Context, _ *pipeline.ChunkState, cause error) error {
	return cause
}

func (s *Step) Artifact(state *pipeline.ChunkState) ([]byte, bool) {
	if len(state.Items) == 0 {
		return nil, false
	}
	payload, err := json.Marshal(state.Items)
	if err != nil {
		return nil, false
	}
	return payload, true
}
