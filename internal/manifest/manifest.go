package manifest

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strings"
)

// Entry pairs an expected digest with an archive member name.
type Entry struct {
	Digest string `json:"digest"`
	Name   string `json:"name"`
}

// Manifest is the ordered, de-duplicated set of entries read from a manifest file.
type Manifest struct {
	Entries []Entry
	// Skipped holds 1-based line numbers that did not parse or repeated an earlier name.
	Skipped []int
}

// Parse reads whitespace-delimited "<hex-digest> <member-name>" lines.
// Blank lines are ignored. Malformed lines and repeated member names are
// recorded in Skipped rather than failing the parse. A leading '*' on the name
// (md5sum binary mode) is removed.
func Parse(r io.Reader) (Manifest, error) {
	var m Manifest
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		entry, ok := parseLine(text)
		if !ok {
			m.Skipped = append(m.Skipped, line)
			continue
		}
		if _, dup := seen[entry.Name]; dup {
			m.Skipped = append(m.Skipped, line)
			continue
		}
		seen[entry.Name] = struct{}{}
		m.Entries = append(m.Entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return m, nil
}

func parseLine(text string) (Entry, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return Entry{}, false
	}
	digest := NormalizeDigest(fields[0])
	if !isHex(digest) {
		return Entry{}, false
	}
	name := strings.TrimPrefix(fields[1], "*")
	name = strings.TrimPrefix(name, "./")
	if name == "" {
		return Entry{}, false
	}
	return Entry{Digest: digest, Name: name}, true
}

// Lookup returns the entry whose member name matches name.
func (m Manifest) Lookup(name string) (Entry, bool) {
	for _, entry := range m.Entries {
		if entry.Name == name {
			return entry, true
		}
	}
	return Entry{}, false
}

// Len reports the number of usable entries.
func (m Manifest) Len() int { return len(m.Entries) }

// IsManifestName reports whether the base name of member ends with one of suffixes.
func IsManifestName(member string, suffixes []string) bool {
	return hasSuffix(member, suffixes)
}

// BaseName returns the final path segment of an archive member name.
func BaseName(member string) string {
	return path.Base(strings.TrimSuffix(member, "/"))
}

func hasSuffix(member string, suffixes []string) bool {
	base := strings.ToLower(BaseName(member))
	for _, suffix := range suffixes {
		if suffix != "" && strings.HasSuffix(base, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

func isHex(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
