package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"subweave/internal/align"
	"subweave/internal/artifacts"
	"subweave/internal/config"
	"subweave/internal/glossary"
	"subweave/internal/language"
	"subweave/internal/media"
	"subweave/internal/pipeline"
	"subweave/internal/preflight"
	"subweave/internal/refine"
	"subweave/internal/services/llm"
	"subweave/internal/subtitle"
	"subweave/internal/transcribe"
	"subweave/internal/translate"
)

func newGenerateCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		targetFlag   string
		outputFlag   string
		trackFlag    string
		skipChecks   bool
		skipGlossary bool
	)

	cmd := &cobra.Command{
		Use:   "generate <media-file>",
		Short: "Generate translated subtitles for a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cmdCtx.newLogger()
			if err != nil {
				return err
			}

			target := strings.TrimSpace(targetFlag)
			if target == "" {
				target = cfg.Pipeline.TargetLanguage
			}
			target = language.ToISO2(target)
			if target == "" {
				return fmt.Errorf("no target language configured; pass --target-language")
			}

			track, err := parseTrack(trackFlag)
			if err != nil {
				return err
			}

			if !skipChecks {
				results := preflight.RunAll(cmd.Context(), cfg)
				if !preflight.Passed(results) {
					fmt.Fprintln(cmd.OutOrStdout(), renderPreflight(results))
					return fmt.Errorf("preflight checks failed")
				}
			}

			request := generateRequest{
				mediaPath:    args[0],
				target:       target,
				outputPath:   strings.TrimSpace(outputFlag),
				track:        track,
				skipGlossary: skipGlossary,
			}
			return runGenerate(cmd, cfg, logger, request)
		},
	}

	cmd.Flags().StringVarP(&targetFlag, "target-language", "t", "", "Target language code (overrides config)")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output SRT path (defaults to the output directory)")
	cmd.Flags().StringVar(&trackFlag, "track", "translated", "Text track to write: translated, original, or both")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Skip preflight checks")
	cmd.Flags().BoolVar(&skipGlossary, "no-glossary", false, "Disable glossary and speaker extraction")
	return cmd
}

type trackSelection struct {
	translated bool
	original   bool
}

func parseTrack(value string) (trackSelection, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "translated":
		return trackSelection{translated: true}, nil
	case "original":
		return trackSelection{original: true}, nil
	case "both":
		return trackSelection{translated: true, original: true}, nil
	default:
		return trackSelection{}, fmt.Errorf("track: unsupported value %q", value)
	}
}

type generateRequest struct {
	mediaPath    string
	target       string
	outputPath   string
	track        trackSelection
	skipGlossary bool
}

func runGenerate(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, req generateRequest) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	source, err := media.OpenSource(ctx, req.mediaPath, cfg.Paths.WorkDir)
	if err != nil {
		return err
	}
	defer source.Close()

	client := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	provider := transcribe.NewProvider(cfg.Transcriber, logger)

	sink, closeSink, err := openArtifactSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	steps := []pipeline.Step{
		transcribe.NewStep(provider),
		refine.NewStep(client),
		align.NewStep(cfg.Aligner, logger),
		translate.NewStep(client),
	}
	engine := pipeline.NewEngine(cfg, logger, steps, sink)

	outputPath := req.outputPath
	if outputPath == "" {
		base := strings.TrimSuffix(filepath.Base(req.mediaPath), filepath.Ext(req.mediaPath))
		outputPath = filepath.Join(cfg.Paths.OutputDir, fmt.Sprintf("%s.%s.srt", base, req.target))
	}
	partialPath := outputPath + ".partial"

	request := pipeline.Request{
		Source:         source,
		SourceLanguage: cfg.Transcriber.Language,
		TargetLanguage: req.target,
		Callbacks: pipeline.Callbacks{
			OnProgress: func(event pipeline.ProgressEvent) {
				status := "done"
				if event.Failed {
					status = "failed"
				}
				fmt.Fprintf(out, "chunk %d %s (%d/%d)\n",
					event.ChunkIndex, status, event.Completed, event.Total)
			},
			OnIntermediate: func(items []subtitle.Item) {
				// Progressive output: the partial file is always a valid,
				// time-ordered SRT of everything finished so far.
				content := subtitle.FormatSRT(items, subtitle.TrackTranslated)
				if err := os.WriteFile(partialPath, []byte(content), 0o644); err != nil {
					logger.Warn("write partial output failed", "error", err)
				}
			},
			OnGlossaryReady: func(merged glossary.Merged) {
				fmt.Fprintf(out, "glossary ready: %d terms, %d conflicts\n",
					len(merged.Terms), len(merged.Conflicts))
			},
		},
	}
	if cfg.Glossary.Enabled && !req.skipGlossary {
		sampler := transcribe.NewSampler(provider, source)
		extractor := glossary.NewExtractor(client, sampler, logger, cfg.Glossary.Concurrency, nil)
		chunks := media.PlanChunks(source.Duration(), cfg.Pipeline.ChunkSeconds)
		termPolicy := glossary.SamplePolicy{
			MaxSamples:    cfg.Glossary.MaxSamples,
			SampleSeconds: cfg.Glossary.SampleSeconds,
		}
		request.GlossaryFunc = func(ctx context.Context) (glossary.Merged, error) {
			return extractor.ExtractTerms(ctx, chunks, termPolicy, req.target)
		}
		if cfg.Speakers.Enabled {
			speakerPolicy := glossary.SamplePolicy{MaxSamples: cfg.Speakers.MaxSamples}
			request.SpeakersFunc = func(ctx context.Context) ([]glossary.Speaker, error) {
				return extractor.ExtractSpeakers(ctx, chunks, speakerPolicy)
			}
		}
	}

	result, err := engine.Run(ctx, request)
	if err != nil {
		return err
	}
	defer os.Remove(partialPath)

	if err := writeTracks(outputPath, result.Subtitles, req.track); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nrun %s complete\n", result.RunID)
	fmt.Fprintln(out, renderSummary(result))
	if len(result.Glossary.Conflicts) > 0 {
		fmt.Fprintln(out, renderConflicts(result.Glossary.Conflicts))
	}
	fmt.Fprintf(out, "subtitles written to %s\n", outputPath)
	return nil
}

// openArtifactSink returns a no-op sink when artifacts are disabled.
func openArtifactSink(cfg *config.Config, logger *slog.Logger) (pipeline.ArtifactSink, func(), error) {
	if !cfg.Artifacts.Enabled {
		return pipeline.NopSink{}, func() {}, nil
	}
	store, err := artifacts.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return artifacts.NewSink(store, logger), func() { _ = store.Close() }, nil
}

func writeTracks(outputPath string, items []subtitle.Item, track trackSelection) error {
	if track.translated {
		content := subtitle.FormatSRT(items, subtitle.TrackTranslated)
		if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	if track.original {
		path := outputPath
		if track.translated {
			ext := filepath.Ext(outputPath)
			path = strings.TrimSuffix(outputPath, ext) + ".original" + ext
		}
		content := subtitle.FormatSRT(items, subtitle.TrackOriginal)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write original track: %w", err)
		}
	}
	return nil
}
