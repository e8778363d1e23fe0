package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"subweave/internal/glossary"
	"subweave/internal/language"
	"subweave/internal/logging"
	"subweave/internal/pipeline"
	"subweave/internal/services/llm"
)

const translateSystemPrompt = `You translate subtitle lines. Translate each line into the
target language, preserving tone and register. Honor the glossary exactly: whenever a
glossary term appears, use its given translation. Keep line breaks natural for subtitles.
Respond with JSON only: {"translations":[{"id":"...","text":"..."}]}
Return every requested id exactly once.`

// Step is the translation stage.
type Step struct {
	client *llm.Client
}

func NewStep(client *llm.Client) *Step {
	return &Step{client: client}
}

func (s *Step) Name() string { return "translate" }

// Applicable is false once every line carries a translation, making the step
// idempotent across reruns.
func (s *Step) Applicable(run *pipeline.Context, state *pipeline.ChunkState) bool {
	if run.TargetLanguage == "" || len(state.Items) == 0 {
		return false
	}
	for _, item := range state.Items {
		if item.Translated == "" {
			return true
		}
	}
	return false
}

func (s *Step) Gate(run *pipeline.Context) *pipeline.Gate {
	return run.Gates.Translate
}

func (s *Step) Execute(ctx context.Context, run *pipeline.Context, state *pipeline.ChunkState) error {
	merged, err := run.Glossary.Await(ctx)
	if err != nil {
		return err
	}

	// pending maps line IDs still lacking a translation to their item index.
	// Each retry requests only what is pending, so follow-up requests shrink.
	pending := make(map[string]int)
	for i, item := range state.Items {
		if item.Translated == "" {
			pending[item.ID] = i
		}
	}
	if len(pending) == 0 {
		return nil
	}

	logger := run.Logger.With(logging.Int(logging.FieldChunk, state.Chunk.Index))
	glossaryBlock := formatGlossary(merged)
	targetName := language.DisplayName(run.TargetLanguage)

	_, err = pipeline.WithRetry(ctx,
		pipeline.RetryOptions{
			MaxRetries: run.Config.Pipeline.TranslateRetries,
			StepName:   s.Name(),
			Logger:     logger,
		},
		func(ctx context.Context) (llm.Completion, error) {
			userPrompt := buildUserPrompt(state, pending, glossaryBlock, targetName)
			completion, err := s.client.CompleteJSON(ctx, translateSystemPrompt, userPrompt)
			if err != nil {
				return llm.Completion{}, err
			}
			run.Usage.RecordLLM(s.Name(), completion.Usage)
			return completion, nil
		},
		func(raw llm.Completion, final bool) (int, pipeline.PostCheck) {
			applied := applyTranslations(raw.Content, state, pending)
			if len(pending) == 0 {
				return applied, pipeline.PostCheck{Valid: true}
			}
			if final {
				// Last resort: the original text is better than a blank line.
				for id, index := range pending {
					state.Items[index].Translated = state.Items[index].Original
					delete(pending, id)
				}
			}
			return applied, pipeline.PostCheck{
				Retryable: true,
				Issues:    []string{fmt.Sprintf("%d lines still untranslated", len(pending))},
			}
		},
	)
	return err
}

// Fallback copies originals into the translated track for whatever is still
// missing.
func (s *Step) Fallback(_ context.Context, run *pipeline.Context, state *pipeline.ChunkState, cause error) error {
	filled := 0
	for i := range state.Items {
		if state.Items[i].Translated == "" {
			state.Items[i].Translated = state.Items[i].Original
			filled++
		}
	}
	run.Logger.Warn("translation unavailable; original text used",
		logging.Int(logging.FieldChunk, state.Chunk.Index),
		logging.Int("lines", filled),
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

func buildUserPrompt(state *pipeline.ChunkState, pending map[string]int, glossaryBlock, targetName string) string {
	type requestLine struct {
		ID      string `json:"id"`
		Text    string `json:"text"`
		Speaker string `json:"speaker,omitempty"`
	}
	lines := make([]requestLine, 0, len(pending))
	// Iterate items in order so the model sees lines chronologically.
	for _, item := range state.Items {
		if _, ok := pending[item.ID]; ok {
			lines = append(lines, requestLine{ID: item.ID, Text: item.Original, Speaker: item.Speaker})
		}
	}
	payload, _ := json.Marshal(map[string]any{"lines": lines})

	var b strings.Builder
	fmt.Fprintf(&b, "Target language: %s.\n", targetName)
	if glossaryBlock != "" {
		b.WriteString("Glossary:\n")
		b.WriteString(glossaryBlock)
	}
	b.WriteString("Lines:\n")
	b.Write(payload)
	return b.String()
}

func formatGlossary(merged glossary.Merged) string {
	if merged.Empty() {
		return ""
	}
	var b strings.Builder
	for _, term := range merged.Terms {
		fmt.Fprintf(&b, "- %s => %s", term.Term, term.Translation)
		if term.Note != "" {
			fmt.Fprintf(&b, " (%s)", term.Note)
		}
		b.WriteByte('\n')
	}
	for _, conflict := range merged.Conflicts {
		fmt.Fprintf(&b, "- %s => %s (pick the variant fitting the context)\n",
			conflict.Term, strings.Join(conflict.Translations, " / "))
	}
	return b.String()
}

// applyTranslations fills matched lines and removes them from pending.
// Unknown IDs and empty texts are ignored; a garbled response simply leaves
// pending non-empty.
func applyTranslations(content string, state *pipeline.ChunkState, pending map[string]int) int {
	var parsed struct {
		Translations []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := llm.DecodeJSON(content, &parsed); err != nil {
		return 0
	}
	applied := 0
	for _, translation := range parsed.Translations {
		index, ok := pending[translation.ID]
		if !ok {
			continue
		}
		text := strings.TrimSpace(translation.Text)
		if text == "" {
			continue
		}
		state.Items[index].Translated = text
		delete(pending, translation.ID)
		applied++
	}
	return applied
}
