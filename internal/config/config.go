package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir     string `toml:"work_dir"`
	OutputDir   string `toml:"output_dir"`
	LogDir      string `toml:"log_dir"`
	ArtifactDir string `toml:"artifact_dir"`
}

// LLM contains shared connection settings for the refinement, translation,
// and glossary calls.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Transcriber contains configuration for the transcription provider binary.
type Transcriber struct {
	Binary   string `toml:"binary"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// Aligner contains configuration for forced alignment.
//
// Mode selects the aligner: "none" disables alignment entirely (the align
// step is skipped and never touches its concurrency gate), "local" shells
// out to the configured binary.
type Aligner struct {
	Mode           string  `toml:"mode"`
	Binary         string  `toml:"binary"`
	ScoreThreshold float64 `toml:"score_threshold"`
}

// Pipeline contains chunking, concurrency, and retry configuration.
type Pipeline struct {
	ChunkSeconds float64 `toml:"chunk_seconds"`
	// Concurrency caps how many chunks are in flight at once. The effective
	// fan-out is min(Concurrency, chunk count, MaxConcurrency).
	Concurrency    int `toml:"concurrency"`
	MaxConcurrency int `toml:"max_concurrency"`

	TranscribeLimit int `toml:"transcribe_limit"`
	RefineLimit     int `toml:"refine_limit"`
	AlignLimit      int `toml:"align_limit"`
	TranslateLimit  int `toml:"translate_limit"`

	RefineRetries    int `toml:"refine_retries"`
	TranslateRetries int `toml:"translate_retries"`

	// Timeline anomaly thresholds. These encode assumptions about a specific
	// upstream model's failure modes, so they are tunable rather than fixed.
	ExcessiveDurationSeconds float64 `toml:"excessive_duration_seconds"`
	RegressionSeconds        float64 `toml:"regression_seconds"`

	TargetLanguage string `toml:"target_language"`
}

// Glossary contains configuration for sampled glossary extraction.
type Glossary struct {
	Enabled bool `toml:"enabled"`
	// MaxSamples bounds how many chunks are sampled for term extraction.
	MaxSamples int `toml:"max_samples"`
	// SampleSeconds switches to duration-based sampling when positive: chunks
	// are sampled until their combined duration reaches this many seconds.
	SampleSeconds float64 `toml:"sample_seconds"`
	Concurrency   int     `toml:"concurrency"`
	// ProceedOnFailure degrades a failed extraction to "no glossary" instead
	// of failing the run.
	ProceedOnFailure bool `toml:"proceed_on_failure"`
}

// Speakers contains configuration for sampled speaker profiling.
type Speakers struct {
	Enabled          bool `toml:"enabled"`
	MaxSamples       int  `toml:"max_samples"`
	Concurrency      int  `toml:"concurrency"`
	ProceedOnFailure bool `toml:"proceed_on_failure"`
}

// Artifacts contains configuration for the best-effort artifact store.
type Artifacts struct {
	Enabled bool `toml:"enabled"`
	// MinFreeMiB fails the preflight check when the artifact volume has less
	// free space than this.
	MinFreeMiB int `toml:"min_free_mib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for subweave.
//
// Configuration sections by subsystem:
//   - Paths: working, output, log, and artifact directories
//   - LLM: shared connection settings for refinement/translation/glossary
//   - Transcriber: transcription provider binary and model
//   - Aligner: forced alignment mode and scoring
//   - Pipeline: chunking, fan-out, per-stage limits, retries, thresholds
//   - Glossary / Speakers: sampled extraction toggles and policies
//   - Artifacts: best-effort artifact store
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	LLM         LLM         `toml:"llm"`
	Transcriber Transcriber `toml:"transcriber"`
	Aligner     Aligner     `toml:"aligner"`
	Pipeline    Pipeline    `toml:"pipeline"`
	Glossary    Glossary    `toml:"glossary"`
	Speakers    Speakers    `toml:"speakers"`
	Artifacts   Artifacts   `toml:"artifacts"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/subweave/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("subweave.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir, c.Paths.ArtifactDir}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			trimmed = home
		} else if strings.HasPrefix(trimmed, "~/") {
			trimmed = filepath.Join(home, trimmed[2:])
		}
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", pathValue, err)
	}
	return abs, nil
}

// ExpandPath resolves ~ and relative segments in a user-supplied path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
