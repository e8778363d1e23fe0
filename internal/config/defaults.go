package config

const (
	defaultWorkDir     = "~/.local/share/subweave/work"
	defaultOutputDir   = "~/subtitles"
	defaultLogDir      = "~/.local/share/subweave/logs"
	defaultArtifactDir = "~/.local/share/subweave/artifacts"

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMReferer        = "https://github.com/subweave/subweave"
	defaultLLMTitle          = "Subweave"
	defaultLLMTimeoutSeconds = 60

	defaultTranscriberBinary = "whisper-ctl"
	defaultTranscriberModel  = "large-v3-turbo"

	defaultAlignerMode           = "local"
	defaultAlignerBinary         = "forced-align"
	defaultAlignerScoreThreshold = 0.45

	defaultChunkSeconds     = 300.0
	defaultConcurrency      = 4
	defaultMaxConcurrency   = 16
	defaultTranscribeLimit  = 2
	defaultRefineLimit      = 3
	defaultAlignLimit       = 1
	defaultTranslateLimit   = 3
	defaultRefineRetries    = 2
	defaultTranslateRetries = 2

	// Empirical thresholds for degenerate model output. See the timeline
	// package for how these interact.
	defaultExcessiveDurationSeconds = 10.0
	defaultRegressionSeconds        = 5.0

	defaultTargetLanguage = "en"

	defaultGlossaryMaxSamples    = 3
	defaultGlossaryConcurrency   = 2
	defaultSpeakersMaxSamples    = 3
	defaultSpeakersConcurrency   = 2
	defaultArtifactsMinFreeMiB   = 256
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:     defaultWorkDir,
			OutputDir:   defaultOutputDir,
			LogDir:      defaultLogDir,
			ArtifactDir: defaultArtifactDir,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Transcriber: Transcriber{
			Binary: defaultTranscriberBinary,
			Model:  defaultTranscriberModel,
		},
		Aligner: Aligner{
			Mode:           defaultAlignerMode,
			Binary:         defaultAlignerBinary,
			ScoreThreshold: defaultAlignerScoreThreshold,
		},
		Pipeline: Pipeline{
			ChunkSeconds:             defaultChunkSeconds,
			Concurrency:              defaultConcurrency,
			MaxConcurrency:           defaultMaxConcurrency,
			TranscribeLimit:          defaultTranscribeLimit,
			RefineLimit:              defaultRefineLimit,
			AlignLimit:               defaultAlignLimit,
			TranslateLimit:           defaultTranslateLimit,
			RefineRetries:            defaultRefineRetries,
			TranslateRetries:         defaultTranslateRetries,
			ExcessiveDurationSeconds: defaultExcessiveDurationSeconds,
			RegressionSeconds:        defaultRegressionSeconds,
			TargetLanguage:           defaultTargetLanguage,
		},
		Glossary: Glossary{
			Enabled:          true,
			MaxSamples:       defaultGlossaryMaxSamples,
			Concurrency:      defaultGlossaryConcurrency,
			ProceedOnFailure: true,
		},
		Speakers: Speakers{
			Enabled:          false,
			MaxSamples:       defaultSpeakersMaxSamples,
			Concurrency:      defaultSpeakersConcurrency,
			ProceedOnFailure: true,
		},
		Artifacts: Artifacts{
			Enabled:    true,
			MinFreeMiB: defaultArtifactsMinFreeMiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
