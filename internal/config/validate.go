package config

import (
	"fmt"
	"strings"
)

// Validate checks cross-field constraints that normalization cannot repair.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateAligner(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return fmt.Errorf("paths.work_dir is required")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return fmt.Errorf("paths.output_dir is required")
	}
	return nil
}

func (c *Config) validateAligner() error {
	switch c.Aligner.Mode {
	case "none", "local":
		return nil
	default:
		return fmt.Errorf("aligner.mode must be \"none\" or \"local\", got %q", c.Aligner.Mode)
	}
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.ChunkSeconds < 10 {
		return fmt.Errorf("pipeline.chunk_seconds must be at least 10, got %.1f", p.ChunkSeconds)
	}
	if p.RegressionSeconds >= p.ExcessiveDurationSeconds {
		return fmt.Errorf(
			"pipeline.regression_seconds (%.1f) must be below pipeline.excessive_duration_seconds (%.1f)",
			p.RegressionSeconds, p.ExcessiveDurationSeconds,
		)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
}
