package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"subweave/internal/language"
	"subweave/internal/pipeline"
	"subweave/internal/services/llm"
	"subweave/internal/subtitle"
	"subweave/internal/translate"
)

func newTranslateCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		targetFlag string
		outputFlag string
	)

	cmd := &cobra.Command{
		Use:   "translate <srt-file>",
		Short: "Translate an existing SRT file",
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

			target := language.ToISO2(strings.TrimSpace(targetFlag))
			if target == "" {
				target = cfg.Pipeline.TargetLanguage
			}
			if target == "" {
				return fmt.Errorf("no target language configured; pass --target-language")
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read subtitle file: %w", err)
			}
			items := subtitle.ParseSRT(string(raw))
			if len(items) == 0 {
				return fmt.Errorf("%s contains no usable cues", args[0])
			}
			chunkItems(items, cfg.Pipeline.ChunkSeconds)

			client := llm.NewClient(llm.Config{
				APIKey:         cfg.LLM.APIKey,
				BaseURL:        cfg.LLM.BaseURL,
				Model:          cfg.LLM.Model,
				Referer:        cfg.LLM.Referer,
				Title:          cfg.LLM.Title,
				TimeoutSeconds: cfg.LLM.TimeoutSeconds,
			})
			engine := pipeline.NewEngine(cfg, logger,
				[]pipeline.Step{translate.NewStep(client)}, nil)

			result, err := engine.Regenerate(cmd.Context(), pipeline.RegenerateRequest{
				Items:          items,
				ChunkIndexes:   allChunkIndexes(items),
				TargetLanguage: target,
			})
			if err != nil {
				return err
			}

			outputPath := strings.TrimSpace(outputFlag)
			if outputPath == "" {
				ext := filepath.Ext(args[0])
				outputPath = strings.TrimSuffix(args[0], ext) + "." + target + ext
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

	cmd.Flags().StringVarP(&targetFlag, "target-language", "t", "", "Target language code (overrides config)")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output SRT path")
	return cmd
}

// chunkItems assigns chunk indexes by start time so the scheduler can batch
// the file the same way it batches audio.
func chunkItems(items []subtitle.Item, chunkSeconds float64) {
	if chunkSeconds <= 0 {
		chunkSeconds = 300
	}
	for i := range items {
		items[i].ChunkIndex = int(items[i].Start / chunkSeconds)
	}
}

func allChunkIndexes(items []subtitle.Item) []int {
	seen := make(map[int]bool)
	var indexes []int
	for _, item := range items {
		if !seen[item.ChunkIndex] {
			seen[item.ChunkIndex] = true
			indexes = append(indexes, item.ChunkIndex)
		}
	}
	return indexes
}
