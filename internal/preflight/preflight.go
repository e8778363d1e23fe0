package preflight

import (
	"context"

	"subweave/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// Passed reports whether every required check succeeded.
func Passed(results []Result) bool {
	for _, result := range results {
		if !result.Passed && !result.Optional {
			return false
		}
	}
	return true
}

// RunAll executes every applicable check for the given config. Checks for
// disabled features are skipped.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results,
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
	)

	results = append(results,
		CheckBinary("FFmpeg", "ffmpeg", "audio extraction", false),
		CheckBinary("FFprobe", "ffprobe", "media inspection", false),
		CheckBinary("Transcriber", cfg.Transcriber.Binary, "speech recognition", false),
	)
	if cfg.Aligner.Mode == "local" {
		results = append(results,
			CheckBinary("Aligner", cfg.Aligner.Binary, "forced alignment", false))
	}

	results = append(results, CheckLLM(ctx, "LLM API", cfg.LLM))

	if cfg.Artifacts.Enabled {
		results = append(results,
			CheckDirectoryAccess("Artifact directory", cfg.Paths.ArtifactDir),
			CheckFreeSpace("Artifact volume", cfg.Paths.ArtifactDir, cfg.Artifacts.MinFreeMiB),
		)
	}

	return results
}
