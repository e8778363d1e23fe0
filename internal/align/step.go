package align

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"subweave/internal/config"
	"subweave/internal/logging"
	"subweave/internal/media"
	"subweave/internal/pipeline"
	"subweave/internal/services"
	"subweave/internal/subtitle"
)

// ModeLocal enables the subprocess aligner; config validation guarantees the
// mode is either this or "none".
const ModeLocal = "local"

// Step is the forced alignment stage.
type Step struct {
	binary string
	runner media.CommandRunner
	logger *slog.Logger
}

// StepOption customizes a Step.
type StepOption func(*Step)

// WithRunner substitutes the subprocess runner, used by tests.
func WithRunner(runner media.CommandRunner) StepOption {
	return func(s *Step) {
		if runner != nil {
			s.runner = runner
		}
	}
}

func NewStep(cfg config.Aligner, logger *slog.Logger, opts ...StepOption) *Step {
	step := &Step{
		binary: cfg.Binary,
		runner: media.DefaultCommandRunner,
		logger: logging.NewComponentLogger(logger, "align"),
	}
	for _, opt := range opts {
		opt(step)
	}
	return step
}

func (s *Step) Name() string { return "align" }

// Applicable requires local mode and an extracted clip; regenerated chunks
// have no clip and skip alignment.
func (s *Step) Applicable(run *pipeline.Context, state *pipeline.ChunkState) bool {
	return run.Config.Aligner.Mode == ModeLocal &&
		state.Clip.Path != "" &&
		len(state.Items) > 0
}

func (s *Step) Gate(run *pipeline.Context) *pipeline.Gate {
	return run.Gates.Align
}

type transcriptLine struct {
	ID    string  `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type alignmentOutput struct {
	Alignments []struct {
		ID    string  `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Score float64 `json:"score"`
	} `json:"alignments"`
}

func (s *Step) Execute(ctx context.Context, run *pipeline.Context, state *pipeline.ChunkState) error {
	transcriptPath, err := s.writeTranscript(state)
	if err != nil {
		return err
	}
	defer os.Remove(transcriptPath)

	output, err := s.runner(ctx, s.binary,
		"--audio", state.Clip.Path,
		"--transcript", transcriptPath,
		"--output-format", "json",
	)
	if err != nil {
		if services.IsCancellation(err) || ctx.Err() != nil {
			return err
		}
		return services.Wrap(services.ErrExternalTool, "align", "run aligner", state.Clip.Path, err)
	}

	var parsed alignmentOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return services.Wrap(services.ErrExternalTool, "align", "parse aligner output", state.Clip.Path, err)
	}

	byID := make(map[string]int, len(state.Items))
	for i, item := range state.Items {
		byID[item.ID] = i
	}

	threshold := run.Config.Aligner.ScoreThreshold
	lowConfidence := 0
	for _, alignment := range parsed.Alignments {
		index, ok := byID[alignment.ID]
		if !ok {
			continue
		}
		item := &state.Items[index]
		// Aligner times are clip-relative; shift back onto the source
		// timeline.
		item.Start = state.Clip.Start + alignment.Start
		item.End = state.Clip.Start + alignment.End
		item.AlignmentScore = alignment.Score
		if alignment.Score < threshold {
			item.LowConfidence = true
			lowConfidence++
		}
	}
	subtitle.SortByStart(state.Items)
	run.Usage.RecordLowConfidence(lowConfidence)

	if lowConfidence > 0 {
		s.logger.Debug("alignment flagged low-confidence lines",
			logging.Int(logging.FieldChunk, state.Chunk.Index),
			logging.Int("low_confidence", lowConfidence),
		)
	}
	return nil
}

// Fallback keeps the refined timings.
func (s *Step) Fallback(_ context.Context, run *pipeline.Context, state *pipeline.ChunkState, cause error) error {
	run.Logger.Warn("alignment unavailable; keeping refined timings",
		logging.Int(logging.FieldChunk, state.Chunk.Index),
		logging.Error(cause),
	)
	return nil
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

// writeTranscript renders the chunk's lines clip-relative for the aligner.
func (s *Step) writeTranscript(state *pipeline.ChunkState) (string, error) {
	lines := make([]transcriptLine, len(state.Items))
	for i, item := range state.Items {
		lines[i] = transcriptLine{
			ID:    item.ID,
			Start: item.Start - state.Clip.Start,
			End:   item.End - state.Clip.Start,
			Text:  item.Original,
		}
	}
	payload, err := json.Marshal(map[string]any{"lines": lines})
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "align", "encode transcript", "", err)
	}

	file, err := os.CreateTemp(filepath.Dir(state.Clip.Path), "transcript-*.json")
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "align", "write transcript", "", err)
	}
	defer file.Close()
	if _, err := file.Write(payload); err != nil {
		os.Remove(file.Name())
		return "", services.Wrap(services.ErrConfiguration, "align", "write transcript", file.Name(), err)
	}
	return file.Name(), nil
}
