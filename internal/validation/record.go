package validation

import (
	"sieve/internal/extract"
	"sieve/internal/manifest"
)

// Outcome is the verdict for one manifest entry.
type Outcome string

const (
	Passed  Outcome = "passed"
	Failed  Outcome = "failed"
	Missing Outcome = "missing"
	Skipped Outcome = "skipped"
)

// Record is the per-entry validation outcome.
type Record struct {
	Member   string            `json:"member"`
	Category manifest.Category `json:"category"`
	Expected string            `json:"expected"`
	Computed string            `json:"computed,omitempty"`
	Outcome  Outcome           `json:"outcome"`
	// File is the extracted work-dir member the entry was checked against.
	File string `json:"file,omitempty"`
	// Reused marks metadata verified from a file left by an earlier run.
	Reused bool  `json:"reused,omitempty"`
	Bytes  int64 `json:"bytes"`
}

// Result aggregates the records for one archive.
type Result struct {
	AssayID        string         `json:"assay_id"`
	WorkDir        string         `json:"work_dir"`
	ManifestMember string         `json:"manifest_member"`
	Records        []Record       `json:"records"`
	Files          []extract.File `json:"files"`
	// BulkMembers are the full archive names of the bulk entries, in manifest order.
	BulkMembers []string `json:"bulk_members"`
	// MissingRequired names required files absent after extraction.
	MissingRequired []string `json:"missing_required,omitempty"`
	// SweepSkipped is set when the metadata sweep was satisfied by existing files.
	SweepSkipped bool `json:"sweep_skipped,omitempty"`
	// SkippedLines counts manifest lines that did not parse.
	SkippedLines int `json:"skipped_lines,omitempty"`
}

// Passed is the logical AND over every record plus the required-file check.
func (r Result) Passed() bool {
	if len(r.Records) == 0 || len(r.MissingRequired) > 0 {
		return false
	}
	for _, record := range r.Records {
		if record.Outcome != Passed {
			return false
		}
	}
	return true
}

// FailedMembers lists members whose outcome is failed or missing.
func (r Result) FailedMembers() []string {
	var members []string
	for _, record := range r.Records {
		if record.Outcome == Failed || record.Outcome == Missing {
			members = append(members, record.Member)
		}
	}
	return members
}

// Counts tallies outcomes.
func (r Result) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, 4)
	for _, record := range r.Records {
		counts[record.Outcome]++
	}
	return counts
}
