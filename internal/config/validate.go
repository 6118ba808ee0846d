package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	validAlgorithms = []string{"auto", "md5", "sha1", "sha256", "blake3"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateManifest(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateTool(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.OutputDir == c.Paths.StagingDir {
		return errors.New("paths.output_dir and paths.staging_dir must differ")
	}
	return nil
}

func (c *Config) validateManifest() error {
	if !contains(validAlgorithms, c.Manifest.Algorithm) {
		return fmt.Errorf("manifest.algorithm must be one of %s (got %q)", strings.Join(validAlgorithms, ", "), c.Manifest.Algorithm)
	}
	return nil
}

func (c *Config) validateArchive() error {
	for _, bulk := range c.Archive.BulkSuffixes {
		for _, manifest := range c.Manifest.Suffixes {
			if bulk == manifest {
				return fmt.Errorf("archive.bulk_suffixes and manifest.suffixes overlap on %q", bulk)
			}
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.ValidationWorkers < 1 {
		return errors.New("workflow.validation_workers must be at least 1")
	}
	if c.Workflow.ToolWorkers < 1 {
		return errors.New("workflow.tool_workers must be at least 1")
	}
	return nil
}

func (c *Config) validateTool() error {
	if c.Tool.Command == "" && len(c.Tool.Args) > 0 {
		return errors.New("tool.args set without tool.command")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !contains(validLogLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of %s (got %q)", strings.Join(validLogLevels, ", "), c.Logging.Level)
	}
	return nil
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
