package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"subweave/internal/glossary"
	"subweave/internal/logging"
	"subweave/internal/pipeline"
	"subweave/internal/services"
	"subweave/internal/services/llm"
	"subweave/internal/subtitle"
	"subweave/internal/timeline"
)

const refineSystemPrompt = `You refine machine transcriptions into clean subtitle lines.
Merge fragments that belong to one utterance, split run-ons, fix punctuation and obvious
mis-hearings, and assign a speaker from the provided list when one clearly fits.
Never invent content. Keep every timestamp inside the chunk's time range and keep lines
in chronological order. Respond with JSON only:
{"lines":[{"id":"...","start":0.0,"end":0.0,"text":"...","speaker":"...","comment":"..."}]}
Use "comment" only for notes a human reviewer needs, otherwise omit it.`

// Step is the refinement stage.
type Step struct {
	client *llm.Client
}

func NewStep(client *llm.Client) *Step {
	return &Step{client: client}
}

func (s *Step) Name() string { return "refine" }

func (s *Step) Applicable(_ *pipeline.Context, state *pipeline.ChunkState) bool {
	return len(state.Items) > 0
}

func (s *Step) Gate(run *pipeline.Context) *pipeline.Gate {
	return run.Gates.Refine
}

func (s *Step) Execute(ctx context.Context, run *pipeline.Context, state *pipeline.ChunkState) error {
	speakers, err := run.Speakers.Await(ctx)
	if err != nil {
		if services.IsCancellation(err) {
			return err
		}
		speakers = nil
	}

	thresholds := timeline.Thresholds{
		ExcessiveDuration: run.Config.Pipeline.ExcessiveDurationSeconds,
		Regression:        run.Config.Pipeline.RegressionSeconds,
	}
	logger := run.Logger.With(logging.Int(logging.FieldChunk, state.Chunk.Index))
	userPrompt := buildUserPrompt(state, speakers)

	refined, err := pipeline.WithRetry(ctx,
		pipeline.RetryOptions{
			MaxRetries: run.Config.Pipeline.RefineRetries,
			StepName:   s.Name(),
			Logger:     logger,
		},
		func(ctx context.Context) (llm.Completion, error) {
			completion, err := s.client.CompleteJSON(ctx, refineSystemPrompt, userPrompt)
			if err != nil {
				return llm.Completion{}, err
			}
			run.Usage.RecordLLM(s.Name(), completion.Usage)
			return completion, nil
		},
		func(raw llm.Completion, final bool) ([]subtitle.Item, pipeline.PostCheck) {
			items, err := decodeRefinedLines(raw.Content, state)
			if err != nil {
				// A malformed response consumes a retry; on the last attempt
				// the raw transcription stands.
				return state.Items, pipeline.PostCheck{
					Retryable: true,
					Issues:    []string{err.Error()},
				}
			}

			report := timeline.Detect(items, thresholds)
			if report.Valid() {
				return items, pipeline.PostCheck{Valid: true}
			}
			if final || !report.Retryable() {
				timeline.Mark(items, report)
				run.Usage.RecordAnomalies(len(report.Independent), len(report.Corrupted))
			}
			return items, pipeline.PostCheck{
				Retryable: report.Retryable(),
				Issues:    report.Issues(),
			}
		},
	)
	if err != nil {
		return err
	}
	state.Items = refined
	return nil
}

// Fallback keeps the raw transcription so downstream stages still have text.
func (s *Step) Fallback(_ context.Context, run *pipeline.Context, state *pipeline.ChunkState, cause error) error {
	run.Logger.Warn("refinement unavailable; keeping raw transcription",
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

type promptLine struct {
	ID    string  `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func buildUserPrompt(state *pipeline.ChunkState, speakers []glossary.Speaker) string {
	lines := make([]promptLine, len(state.Items))
	for i, item := range state.Items {
		lines[i] = promptLine{ID: item.ID, Start: item.Start, End: item.End, Text: item.Original}
	}
	payload, _ := json.Marshal(map[string]any{"lines": lines})

	var b strings.Builder
	fmt.Fprintf(&b, "Chunk time range: %.2f to %.2f seconds.\n", state.Chunk.Start, state.Chunk.End)
	if len(speakers) > 0 {
		b.WriteString("Known speakers:\n")
		for _, speaker := range speakers {
			if speaker.Traits != "" {
				fmt.Fprintf(&b, "- %s: %s\n", speaker.Name, speaker.Traits)
			} else {
				fmt.Fprintf(&b, "- %s\n", speaker.Name)
			}
		}
	}
	b.WriteString("Transcription:\n")
	b.Write(payload)
	return b.String()
}

type refinedLine struct {
	ID      string  `json:"id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
	Comment string  `json:"comment,omitempty"`
}

func decodeRefinedLines(content string, state *pipeline.ChunkState) ([]subtitle.Item, error) {
	var parsed struct {
		Lines []refinedLine `json:"lines"`
	}
	if err := llm.DecodeJSON(content, &parsed); err != nil {
		return nil, err
	}

	items := make([]subtitle.Item, 0, len(parsed.Lines))
	for i, line := range parsed.Lines {
		text := strings.TrimSpace(line.Text)
		if text == "" {
			continue
		}
		if line.End < line.Start {
			return nil, fmt.Errorf("line %q has end before start", line.ID)
		}
		id := strings.TrimSpace(line.ID)
		if id == "" {
			id = fmt.Sprintf("%d-r%d", state.Chunk.Index, i)
		}
		items = append(items, subtitle.Item{
			ID:         id,
			ChunkIndex: state.Chunk.Index,
			Start:      line.Start,
			End:        line.End,
			Original:   text,
			Speaker:    strings.TrimSpace(line.Speaker),
			Comment:    strings.TrimSpace(line.Comment),
		})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("refinement returned no usable lines")
	}
	return items, nil
}
