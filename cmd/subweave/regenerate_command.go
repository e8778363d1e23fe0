package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"subweave/internal/artifacts"
	"subweave/internal/language"
	"subweave/internal/pipeline"
	"subweave/internal/refine"
	"subweave/internal/services"
	"subweave/internal/services/llm"
	"subweave/internal/subtitle"
	"subweave/internal/translate"
)

func newRegenerateCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		chunksFlag string
		targetFlag string
		outputFlag string
	)

	cmd := &cobra.Command{
		Use:   "regenerate <run-id>",
		Short: "Re-run refinement and translation for marked chunks of a stored run",
		Long: "Regenerate loads a run's stored artifacts and re-runs the text stages for the\n" +
			"selected chunks. Without --chunks, the chunks carrying quality markers are chosen.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Artifacts.Enabled {
				return fmt.Errorf("regeneration requires the artifact store; enable [artifacts] in config")
			}
			logger, err := cmdCtx.newLogger()
			if err != nil {
				return err
			}

			chunkIndexes, err := parseChunkList(chunksFlag)
			if err != nil {
				return err
			}
			target := language.ToISO2(strings.TrimSpace(targetFlag))
			if target == "" {
				target = cfg.Pipeline.TargetLanguage
			}

			store, err := artifacts.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runID := args[0]
			items, err := loadRunItems(cmd.Context(), store, runID)
			if err != nil {
				return err
			}

			client := llm.NewClient(llm.Config{
				APIKey:         cfg.LLM.APIKey,
				BaseURL:        cfg.LLM.BaseURL,
				Model:          cfg.LLM.Model,
				Referer:        cfg.LLM.Referer,
				Title:          cfg.LLM.Title,
				TimeoutSeconds: cfg.LLM.TimeoutSeconds,
			})
			steps := []pipeline.Step{refine.NewStep(client), translate.NewStep(client)}
			engine := pipeline.NewEngine(cfg, logger, steps, artifacts.NewSink(store, logger))

			result, err := engine.Regenerate(cmd.Context(), pipeline.RegenerateRequest{
				Items:          items,
				ChunkIndexes:   chunkIndexes,
				SourceLanguage: cfg.Transcriber.Language,
				TargetLanguage: target,
			})
			if err != nil {
				return err
			}

			outputPath := strings.TrimSpace(outputFlag)
			if outputPath == "" {
				outputPath = filepath.Join(cfg.Paths.OutputDir,
					fmt.Sprintf("%s.regenerated.%s.srt", runID, target))
			}
			content := subtitle.FormatSRT(result.Subtitles, subtitle.TrackTranslated)
			if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderSummary(result))
			fmt.Fprintf(out, "subtitles written to %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&chunksFlag, "chunks", "", "Comma-separated chunk indexes to regenerate (default: marked chunks)")
	cmd.Flags().StringVarP(&targetFlag, "target-language", "t", "", "Target language code (overrides config)")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output SRT path")
	return cmd
}

// stagePreference orders artifact stages from most to least processed; the
// most processed stored state per chunk is the regeneration input.
var stagePreference = []string{"translate", "align", "refine", "transcribe"}

func loadRunItems(ctx context.Context, store *artifacts.Store, runID string) ([]subtitle.Item, error) {
	records, err := store.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no artifacts stored for run %s", runID)
	}

	chunkSet := make(map[int]bool)
	for _, record := range records {
		chunkSet[record.ChunkIndex] = true
	}

	var items []subtitle.Item
	for chunkIndex := range chunkSet {
		payload, err := loadPreferredStage(ctx, store, runID, chunkIndex)
		if err != nil {
			return nil, err
		}
		var chunkItems []subtitle.Item
		if err := json.Unmarshal(payload, &chunkItems); err != nil {
			return nil, fmt.Errorf("decode artifact for chunk %d: %w", chunkIndex, err)
		}
		items = append(items, chunkItems...)
	}
	subtitle.SortByStart(items)
	return items, nil
}

func loadPreferredStage(ctx context.Context, store *artifacts.Store, runID string, chunkIndex int) ([]byte, error) {
	var lastErr error
	for _, stage := range stagePreference {
		payload, err := store.Load(ctx, runID, chunkIndex, stage)
		if err == nil {
			return payload, nil
		}
		if !services.IsNotFound(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func parseChunkList(value string) ([]int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	indexes := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		index, err := strconv.Atoi(part)
		if err != nil || index < 0 {
			return nil, fmt.Errorf("chunks: invalid index %q", part)
		}
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)
	return indexes, nil
}
