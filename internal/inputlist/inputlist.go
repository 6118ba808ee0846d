// Package inputlist reads the operator-supplied list of archive locations.
package inputlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"sieve/internal/services"
)

// Entry is one archive location from the list.
type Entry struct {
	Location string
	RunID    string
	Line     int
}

// Remote reports whether the location is a URL rather than a local path.
func (e Entry) Remote() bool {
	return strings.Contains(e.Location, "://")
}

// Load reads the list at listPath. Failure to read it is a configuration error.
func Load(listPath string, suffixes []string) ([]Entry, error) {
	file, err := os.Open(listPath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "inputlist", "open", "Unable to read input list", err)
	}
	defer file.Close()

	entries, err := Parse(file, suffixes)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "inputlist", "parse", "Unable to read input list", err)
	}
	// Relative local entries resolve against the list's directory.
	base := filepath.Dir(listPath)
	for i := range entries {
		if entries[i].Remote() || filepath.IsAbs(entries[i].Location) {
			continue
		}
		entries[i].Location = filepath.Join(base, entries[i].Location)
	}
	return entries, nil
}

// Parse reads one location per line. Blank lines and lines starting with #
// are ignored.
func Parse(r io.Reader, suffixes []string) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var entries []Entry
	seen := make(map[string]int)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		runID := RunID(line, suffixes)
		if runID == "" {
			return nil, fmt.Errorf("line %d: cannot derive run id from %q", lineNo, line)
		}
		if prev, ok := seen[runID]; ok {
			return nil, fmt.Errorf("line %d: run id %q already listed on line %d", lineNo, runID, prev)
		}
		seen[runID] = lineNo
		entries = append(entries, Entry{Location: line, RunID: runID, Line: lineNo})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("input list has no entries")
	}
	return entries, nil
}

// RunID derives the run identifier of a location: the final path segment with
// the first matching archive suffix removed.
func RunID(location string, suffixes []string) string {
	segment := finalSegment(location)
	for _, suffix := range suffixes {
		if suffix == "" {
			continue
		}
		if strings.HasSuffix(strings.ToLower(segment), strings.ToLower(suffix)) && len(segment) > len(suffix) {
			return segment[:len(segment)-len(suffix)]
		}
	}
	return segment
}

func finalSegment(location string) string {
	location = strings.TrimSpace(location)
	if strings.Contains(location, "://") {
		if parsed, err := url.Parse(location); err == nil {
			location = path.Base(strings.TrimSuffix(parsed.Path, "/"))
		}
	}
	base := filepath.Base(strings.TrimSuffix(location, "/"))
	if base == "." || base == "/" || base == "" {
		return ""
	}
	return base
}
