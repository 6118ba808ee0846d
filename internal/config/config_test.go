package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"sieve/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "sieve", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Workflow.ValidationWorkers != 1 || cfg.Workflow.ToolWorkers != 1 {
		t.Fatalf("expected single-worker lanes by default, got %d/%d", cfg.Workflow.ValidationWorkers, cfg.Workflow.ToolWorkers)
	}
	if cfg.Manifest.Algorithm != "md5" {
		t.Fatalf("unexpected manifest algorithm: %q", cfg.Manifest.Algorithm)
	}
	if cfg.ToolEnabled() {
		t.Fatal("expected tool lane disabled by default")
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestLoadCustomConfigNormalizesSuffixes(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"output_dir":  "~/out",
			"staging_dir": "~/stage",
			"log_dir":     "~/logs",
		},
		"archive": map[string]any{
			"bulk_suffixes": []string{" .Subreads.BAM ", ".subreads.bam", ""},
		},
		"workflow": map[string]any{
			"validation_workers": 3,
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "Debug",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != cfgPath {
		t.Fatalf("expected config to be read from %q, got %q (exists=%v)", cfgPath, resolved, exists)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "out") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if len(cfg.Archive.BulkSuffixes) != 1 || cfg.Archive.BulkSuffixes[0] != ".subreads.bam" {
		t.Fatalf("expected deduped lowercase bulk suffixes, got %v", cfg.Archive.BulkSuffixes)
	}
	if len(cfg.Archive.RequiredSuffixes) == 0 {
		t.Fatal("expected default required suffixes to survive")
	}
	if cfg.Workflow.ValidationWorkers != 3 {
		t.Fatalf("unexpected validation workers: %d", cfg.Workflow.ValidationWorkers)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestEnvironmentOverridesInputAndOutput(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())
	listPath := filepath.Join(tempHome, "runs.txt")
	t.Setenv("SIEVE_INPUT_LIST", listPath)
	t.Setenv("SIEVE_OUTPUT_DIR", filepath.Join(tempHome, "published"))

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Input.ListPath != listPath {
		t.Fatalf("unexpected input list: %q", cfg.Input.ListPath)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "published") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"negative workers", func(c *config.Config) { c.Workflow.ValidationWorkers = -1 }, "validation_workers"},
		{"unknown algorithm", func(c *config.Config) { c.Manifest.Algorithm = "crc32" }, "manifest.algorithm"},
		{"args without command", func(c *config.Config) { c.Tool.Args = []string{"x"} }, "tool.args"},
		{"same output and staging", func(c *config.Config) { c.Paths.StagingDir = c.Paths.OutputDir }, "must differ"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("expected sample config to load, exists=%v err=%v", exists, err)
	}
}
