package glossary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"subweave/internal/language"
	"subweave/internal/logging"
	"subweave/internal/services"
	"subweave/internal/services/llm"
	"subweave/internal/subtitle"
)

const termExtractionPrompt = `You extract glossary terms from a transcript excerpt.
Identify proper nouns, recurring jargon, and named entities whose translation must stay
consistent across the whole work. Respond with JSON only:
{"terms":[{"term":"...","translation":"...","note":"..."}]}
Translate each term into the target language. Omit common words.`

const speakerExtractionPrompt = `You profile the distinct speakers in a transcript excerpt.
Respond with JSON only: {"speakers":[{"name":"...","traits":"..."}]}
Use short stable names (given names if spoken, otherwise roles like "Narrator").`

// SampleSource supplies transcript text for one sampled chunk. The main
// pipeline's transcription provider backs this in production; tests inject
// fakes.
type SampleSource interface {
	SampleText(ctx context.Context, chunk subtitle.Chunk) (string, error)
}

// UsageFunc receives token accounting for each extraction call.
type UsageFunc func(usage llm.Usage)

// Extractor runs sampled term and speaker extraction with its own
// concurrency bound, independent of the main chunk scheduler.
type Extractor struct {
	client      *llm.Client
	source      SampleSource
	logger      *slog.Logger
	concurrency int
	onUsage     UsageFunc
}

// NewExtractor constructs an extractor. A nil onUsage is allowed.
func NewExtractor(client *llm.Client, source SampleSource, logger *slog.Logger, concurrency int, onUsage UsageFunc) *Extractor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Extractor{
		client:      client,
		source:      source,
		logger:      logging.NewComponentLogger(logger, "glossary"),
		concurrency: concurrency,
		onUsage:     onUsage,
	}
}

// ExtractTerms samples chunks per policy, extracts terms from each sample
// concurrently, and merges the results. A failed sample fails the whole
// extraction; the caller decides whether to degrade to an empty glossary.
func (e *Extractor) ExtractTerms(ctx context.Context, chunks []subtitle.Chunk, policy SamplePolicy, targetLanguage string) (Merged, error) {
	samples := SampleChunks(chunks, policy)
	if len(samples) == 0 {
		return Merged{}, nil
	}

	results := make([][]Term, len(samples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, chunk := range samples {
		i, chunk := i, chunk
		g.Go(func() error {
			terms, err := e.extractSampleTerms(gctx, chunk, targetLanguage)
			if err != nil {
				return err
			}
			results[i] = terms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Merged{}, err
	}

	merged := MergeTerms(results)
	e.logger.Info("glossary extraction complete",
		logging.Int("samples", len(samples)),
		logging.Int("terms", len(merged.Terms)),
		logging.Int("conflicts", len(merged.Conflicts)),
	)
	return merged, nil
}

// ExtractSpeakers samples chunks per policy and merges speaker profiles.
func (e *Extractor) ExtractSpeakers(ctx context.Context, chunks []subtitle.Chunk, policy SamplePolicy) ([]Speaker, error) {
	samples := SampleChunks(chunks, policy)
	if len(samples) == 0 {
		return nil, nil
	}

	results := make([][]Speaker, len(samples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, chunk := range samples {
		i, chunk := i, chunk
		g.Go(func() error {
			speakers, err := e.extractSampleSpeakers(gctx, chunk)
			if err != nil {
				return err
			}
			results[i] = speakers
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return MergeSpeakers(results), nil
}

func (e *Extractor) extractSampleTerms(ctx context.Context, chunk subtitle.Chunk, targetLanguage string) ([]Term, error) {
	text, err := e.source.SampleText(ctx, chunk)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "glossary", "sample transcript",
			fmt.Sprintf("chunk %d", chunk.Index), err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	userPrompt := fmt.Sprintf("Target language: %s\n\nTranscript excerpt (%.0fs-%.0fs):\n%s",
		language.DisplayName(targetLanguage), chunk.Start, chunk.End, text)
	completion, err := e.client.CompleteJSON(ctx, termExtractionPrompt, userPrompt)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "glossary", "term extraction",
			fmt.Sprintf("chunk %d", chunk.Index), err)
	}
	if e.onUsage != nil {
		e.onUsage(completion.Usage)
	}

	var parsed struct {
		Terms []Term `json:"terms"`
	}
	if err := llm.DecodeJSON(completion.Content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrValidation, "glossary", "parse terms",
			fmt.Sprintf("chunk %d", chunk.Index), err)
	}
	return parsed.Terms, nil
}

func (e *Extractor) extractSampleSpeakers(ctx context.Context, chunk subtitle.Chunk) ([]Speaker, error) {
	text, err := e.source.SampleText(ctx, chunk)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "speakers", "sample transcript",
			fmt.Sprintf("chunk %d", chunk.Index), err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	userPrompt := fmt.Sprintf("Transcript excerpt (%.0fs-%.0fs):\n%s", chunk.Start, chunk.End, text)
	completion, err := e.client.CompleteJSON(ctx, speakerExtractionPrompt, userPrompt)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "speakers", "profile extraction",
			fmt.Sprintf("chunk %d", chunk.Index), err)
	}
	if e.onUsage != nil {
		e.onUsage(completion.Usage)
	}

	var parsed struct {
		Speakers []Speaker `json:"speakers"`
	}
	if err := llm.DecodeJSON(completion.Content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrValidation, "speakers", "parse profiles",
			fmt.Sprintf("chunk %d", chunk.Index), err)
	}
	return parsed.Speakers, nil
}
