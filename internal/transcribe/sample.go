package transcribe

import (
	"context"
	"strings"

	"subweave/internal/media"
	"subweave/internal/subtitle"
)

// Sampler adapts the provider to the glossary extractor's sample source
// contract: extract a chunk's audio, recognize it, and return the plain text.
type Sampler struct {
	provider *Provider
	source   media.Source
}

func NewSampler(provider *Provider, source media.Source) *Sampler {
	return &Sampler{provider: provider, source: source}
}

// SampleText transcribes one sampled chunk and joins its lines.
func (s *Sampler) SampleText(ctx context.Context, chunk subtitle.Chunk) (string, error) {
	clip, err := s.source.Segment(ctx, chunk.Start, chunk.End)
	if err != nil {
		return "", err
	}
	items, err := s.provider.Transcribe(ctx, chunk.Index, clip)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, item.Original)
	}
	return strings.Join(lines, "\n"), nil
}
