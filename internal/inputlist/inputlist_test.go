package inputlist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sieve/internal/services"
)

var suffixes = []string{".raw.tar.gz", ".tar.gz", ".tgz", ".tar.zst", ".tar.lz4", ".tar"}

func TestParseSkipsCommentsAndBlankLines(t *testing.T) {
	input := "sample_001.raw.tar.gz\n# sample_002.raw.tar.gz\n"
	entries, err := Parse(strings.NewReader(input), suffixes)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].RunID != "sample_001" || entries[0].Line != 1 {
		t.Fatalf("unexpected entry %#v", entries[0])
	}
}

func TestRunID(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"sample_001.raw.tar.gz", "sample_001"},
		{"/data/runs/r64012_20200101.tar.gz", "r64012_20200101"},
		{"/data/runs/r1.TGZ", "r1"},
		{"https://example.org/archive/run-7.tar.zst?sig=x", "run-7"},
		{"plain_directory_name", "plain_directory_name"},
		{"run.tar.lz4", "run"},
	}
	for _, tc := range tests {
		if got := RunID(tc.location, suffixes); got != tc.want {
			t.Errorf("RunID(%q) = %q, want %q", tc.location, got, tc.want)
		}
	}
}

func TestParsePreservesOrderAndRejectsDuplicates(t *testing.T) {
	entries, err := Parse(strings.NewReader("\n  b.tar.gz \nc.tar\n\na.tgz\n"), suffixes)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got := []string{entries[0].RunID, entries[1].RunID, entries[2].RunID}
	if strings.Join(got, ",") != "b,c,a" {
		t.Fatalf("unexpected order %v", got)
	}

	if _, err := Parse(strings.NewReader("x.tar.gz\n/other/x.tar\n"), suffixes); err == nil {
		t.Fatal("expected duplicate run id error")
	}
	if _, err := Parse(strings.NewReader("# only comments\n\n"), suffixes); err == nil {
		t.Fatal("expected error for empty list")
	}
}

func TestLoadResolvesRelativeEntries(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "inputs.txt")
	body := "sample_001.raw.tar.gz\n/abs/sample_003.tar.gz\nhttps://host/sample_004.tar.gz\n"
	if err := os.WriteFile(listPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := Load(listPath, suffixes)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if entries[0].Location != filepath.Join(dir, "sample_001.raw.tar.gz") {
		t.Fatalf("expected relative entry resolved, got %q", entries[0].Location)
	}
	if entries[1].Location != "/abs/sample_003.tar.gz" {
		t.Fatalf("absolute entry changed: %q", entries[1].Location)
	}
	if !entries[2].Remote() || entries[2].RunID != "sample_004" {
		t.Fatalf("unexpected remote entry %#v", entries[2])
	}
}

func TestLoadMissingListIsConfigurationError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"), suffixes)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
