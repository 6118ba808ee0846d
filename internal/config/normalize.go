package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeInput(); err != nil {
		return err
	}
	c.normalizeManifest()
	c.normalizeArchive()
	c.normalizeWorkflow()
	c.normalizeTool()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("SIEVE_OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputDir = strings.TrimSpace(value)
	}
	var err error
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(strings.TrimSpace(c.Paths.StagingDir)); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeInput() error {
	if value, ok := os.LookupEnv("SIEVE_INPUT_LIST"); ok && strings.TrimSpace(value) != "" {
		c.Input.ListPath = strings.TrimSpace(value)
	}
	var err error
	if c.Input.ListPath, err = expandPath(strings.TrimSpace(c.Input.ListPath)); err != nil {
		return fmt.Errorf("input.list_path: %w", err)
	}
	c.Input.ArchiveSuffixes = normalizeSuffixes(c.Input.ArchiveSuffixes, defaultArchiveSuffixes)
	return nil
}

func (c *Config) normalizeManifest() {
	c.Manifest.Algorithm = strings.ToLower(strings.TrimSpace(c.Manifest.Algorithm))
	if c.Manifest.Algorithm == "" {
		c.Manifest.Algorithm = defaultManifestAlgorithm
	}
	c.Manifest.Suffixes = normalizeSuffixes(c.Manifest.Suffixes, defaultManifestSuffixes)
}

func (c *Config) normalizeArchive() {
	c.Archive.BulkSuffixes = normalizeSuffixes(c.Archive.BulkSuffixes, defaultBulkSuffixes)
	c.Archive.TransientSuffixes = normalizeSuffixes(c.Archive.TransientSuffixes, defaultTransientSuffixes)
	c.Archive.RequiredSuffixes = normalizeSuffixes(c.Archive.RequiredSuffixes, defaultRequiredSuffixes)
	c.Archive.PublishSuffixes = normalizeSuffixes(c.Archive.PublishSuffixes, defaultPublishSuffixes)
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.ValidationWorkers == 0 {
		c.Workflow.ValidationWorkers = defaultValidationWorkers
	}
	if c.Workflow.ToolWorkers == 0 {
		c.Workflow.ToolWorkers = defaultToolWorkers
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.MinFreeGiB < 0 {
		c.Workflow.MinFreeGiB = 0
	}
}

func (c *Config) normalizeTool() {
	c.Tool.Command = strings.TrimSpace(c.Tool.Command)
	args := make([]string, 0, len(c.Tool.Args))
	for _, arg := range c.Tool.Args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Tool.Args = args
	if c.Tool.TimeoutSeconds < 0 {
		c.Tool.TimeoutSeconds = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// normalizeSuffixes lowercases, trims, and dedupes a suffix list, preserving
// order. An empty result falls back to the provided defaults.
func normalizeSuffixes(values []string, fallback []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return cloneStrings(fallback)
	}
	return out
}
