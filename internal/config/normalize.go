package config

import (
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeAligner()
	c.normalizePipeline()
	c.normalizeSampling()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []*string{
		&c.Paths.WorkDir,
		&c.Paths.OutputDir,
		&c.Paths.LogDir,
		&c.Paths.ArtifactDir,
	}
	for _, field := range fields {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeAligner() {
	c.Aligner.Mode = strings.ToLower(strings.TrimSpace(c.Aligner.Mode))
	if c.Aligner.Mode == "" {
		c.Aligner.Mode = defaultAlignerMode
	}
	c.Aligner.Binary = strings.TrimSpace(c.Aligner.Binary)
	if c.Aligner.Binary == "" {
		c.Aligner.Binary = defaultAlignerBinary
	}
	if c.Aligner.ScoreThreshold <= 0 || c.Aligner.ScoreThreshold >= 1 {
		c.Aligner.ScoreThreshold = defaultAlignerScoreThreshold
	}
}

func (c *Config) normalizePipeline() {
	p := &c.Pipeline
	if p.ChunkSeconds <= 0 {
		p.ChunkSeconds = defaultChunkSeconds
	}
	if p.Concurrency <= 0 {
		p.Concurrency = defaultConcurrency
	}
	if p.MaxConcurrency <= 0 {
		p.MaxConcurrency = defaultMaxConcurrency
	}
	if p.Concurrency > p.MaxConcurrency {
		p.Concurrency = p.MaxConcurrency
	}
	for _, limit := range []*int{&p.TranscribeLimit, &p.RefineLimit, &p.AlignLimit, &p.TranslateLimit} {
		if *limit <= 0 {
			*limit = 1
		}
	}
	if p.RefineRetries < 0 {
		p.RefineRetries = defaultRefineRetries
	}
	if p.TranslateRetries < 0 {
		p.TranslateRetries = defaultTranslateRetries
	}
	if p.ExcessiveDurationSeconds <= 0 {
		p.ExcessiveDurationSeconds = defaultExcessiveDurationSeconds
	}
	if p.RegressionSeconds <= 0 {
		p.RegressionSeconds = defaultRegressionSeconds
	}
	p.TargetLanguage = strings.ToLower(strings.TrimSpace(p.TargetLanguage))
	if p.TargetLanguage == "" {
		p.TargetLanguage = defaultTargetLanguage
	}
}

func (c *Config) normalizeSampling() {
	if c.Glossary.MaxSamples <= 0 {
		c.Glossary.MaxSamples = defaultGlossaryMaxSamples
	}
	if c.Glossary.Concurrency <= 0 {
		c.Glossary.Concurrency = defaultGlossaryConcurrency
	}
	if c.Speakers.MaxSamples <= 0 {
		c.Speakers.MaxSamples = defaultSpeakersMaxSamples
	}
	if c.Speakers.Concurrency <= 0 {
		c.Speakers.Concurrency = defaultSpeakersConcurrency
	}
	if c.Artifacts.MinFreeMiB <= 0 {
		c.Artifacts.MinFreeMiB = defaultArtifactsMinFreeMiB
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
