package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"subweave/internal/config"
	"subweave/internal/logging"
	"subweave/internal/media"
	"subweave/internal/services"
	"subweave/internal/subtitle"
)

// Provider wraps a whisper-style recognizer binary. The binary receives one
// extracted clip and prints segment JSON on stdout.
type Provider struct {
	binary   string
	model    string
	language string
	runner   media.CommandRunner
	logger   *slog.Logger
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithRunner substitutes the subprocess runner, used by tests.
func WithRunner(runner media.CommandRunner) ProviderOption {
	return func(p *Provider) {
		if runner != nil {
			p.runner = runner
		}
	}
}

// NewProvider builds a provider from transcriber configuration.
func NewProvider(cfg config.Transcriber, logger *slog.Logger, opts ...ProviderOption) *Provider {
	provider := &Provider{
		binary:   cfg.Binary,
		model:    cfg.Model,
		language: cfg.Language,
		runner:   media.DefaultCommandRunner,
		logger:   logging.NewComponentLogger(logger, "transcribe"),
	}
	for _, opt := range opts {
		opt(provider)
	}
	return provider
}

type segmentOutput struct {
	Segments []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Text    string  `json:"text"`
		Speaker string  `json:"speaker,omitempty"`
	} `json:"segments"`
}

// Transcribe recognizes one clip. Segment times in the binary's output are
// clip-relative; the returned items are shifted onto the source timeline by
// the clip's start offset.
func (p *Provider) Transcribe(ctx context.Context, chunkIndex int, clip media.Clip) ([]subtitle.Item, error) {
	output, err := p.runner(ctx, p.binary,
		"--model", p.model,
		"--language", p.language,
		"--output-format", "json",
		clip.Path,
	)
	if err != nil {
		if services.IsCancellation(err) || ctx.Err() != nil {
			return nil, err
		}
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "run recognizer", clip.Path, err)
	}

	var parsed segmentOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "parse recognizer output", clip.Path, err)
	}

	items := make([]subtitle.Item, 0, len(parsed.Segments))
	for i, segment := range parsed.Segments {
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		items = append(items, subtitle.Item{
			ID:         fmt.Sprintf("%d-%d", chunkIndex, i),
			ChunkIndex: chunkIndex,
			Start:      clip.Start + segment.Start,
			End:        clip.Start + segment.End,
			Original:   text,
			Speaker:    strings.TrimSpace(segment.Speaker),
		})
	}
	p.logger.Debug("clip transcribed",
		logging.Int(logging.FieldChunk, chunkIndex),
		logging.Int("segments", len(items)),
	)
	return items, nil
}
