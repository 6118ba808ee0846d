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
	OutputDir  string `toml:"output_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Input describes the operator-supplied list of archives.
type Input struct {
	ListPath        string   `toml:"list_path"`
	ArchiveSuffixes []string `toml:"archive_suffixes"`
}

// Manifest configures how the embedded checksum manifest is found and read.
type Manifest struct {
	Algorithm string   `toml:"algorithm"`
	Suffixes  []string `toml:"suffixes"`
}

// Archive holds the member naming conventions used to classify archive content.
type Archive struct {
	// BulkSuffixes mark payload members that stay compressed and are validated by streaming.
	BulkSuffixes []string `toml:"bulk_suffixes"`
	// TransientSuffixes mark transfer markers and temporary files ignored by inspection.
	TransientSuffixes []string `toml:"transient_suffixes"`
	// RequiredSuffixes are appended to the run identifier to name files that must exist after extraction.
	RequiredSuffixes []string `toml:"required_suffixes"`
	// PublishSuffixes select the normalized metadata files copied to the output directory.
	PublishSuffixes []string `toml:"publish_suffixes"`
}

// Workflow contains worker bounds and polling intervals.
type Workflow struct {
	ValidationWorkers  int  `toml:"validation_workers"`
	ToolWorkers        int  `toml:"tool_workers"`
	QueuePollInterval  int  `toml:"queue_poll_interval"`
	ErrorRetryInterval int  `toml:"error_retry_interval"`
	MinFreeGiB         int  `toml:"min_free_gib"`
	CleanupStaging     bool `toml:"cleanup_staging"`
}

// Tool configures the external processing command run after validation.
// An empty Command disables the tool lane; validated items then stay validated.
type Tool struct {
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for sieve.
//
// Configuration sections by subsystem:
//   - Paths: output, staging, and log directories
//   - Input: input list path and the archive suffixes stripped to form run ids
//   - Manifest: digest algorithm and manifest member naming
//   - Archive: bulk/transient/required/publish member conventions
//   - Workflow: worker bounds for the validation and tool lanes
//   - Tool: the external processing command
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Input    Input    `toml:"input"`
	Manifest Manifest `toml:"manifest"`
	Archive  Archive  `toml:"archive"`
	Workflow Workflow `toml:"workflow"`
	Tool     Tool     `toml:"tool"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sieve/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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
		decoder.DisallowUnknownFields()
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
		_, err = os.Stat(expanded)
		if err != nil {
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

	projectPath, err := filepath.Abs("sieve.toml")
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
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the queue database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.LogDir, "queue.db")
}

// LockPath returns the process lock guarding the queue database.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "sieve.lock")
}

// ToolEnabled reports whether an external processing command is configured.
func (c *Config) ToolEnabled() bool {
	return strings.TrimSpace(c.Tool.Command) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}
