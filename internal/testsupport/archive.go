package testsupport

import (
	"archive/tar"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// TarEntry is one member written by WriteArchive. Dir entries carry no body.
type TarEntry struct {
	Name string
	Body []byte
	Dir  bool
}

// WriteArchive writes entries as a tar stream compressed with codec
// ("gzip", "zstd", "lz4" or "tar").
func WriteArchive(t testing.TB, path, codec string, entries []TarEntry) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer file.Close()

	var sink io.WriteCloser
	switch codec {
	case "gzip", "":
		sink = gzip.NewWriter(file)
	case "zstd":
		enc, err := zstd.NewWriter(file)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		sink = enc
	case "lz4":
		sink = lz4.NewWriter(file)
	case "tar":
		sink = nopWriteCloser{file}
	default:
		t.Fatalf("unknown codec %q", codec)
	}

	tw := tar.NewWriter(sink)
	for _, entry := range entries {
		hdr := &tar.Header{Name: entry.Name, Mode: 0o644, Size: int64(len(entry.Body)), Typeflag: tar.TypeReg}
		if entry.Dir {
			hdr = &tar.Header{Name: strings.TrimSuffix(entry.Name, "/") + "/", Mode: 0o755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", entry.Name, err)
		}
		if !entry.Dir {
			if _, err := tw.Write(entry.Body); err != nil {
				t.Fatalf("tar body %s: %v", entry.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close codec: %v", err)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// MD5Hex returns the lower-case md5 digest of body.
func MD5Hex(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

// RunOptions shapes a synthetic instrument run archive.
type RunOptions struct {
	AssayID string
	// Prefix is prepended to every member, e.g. "r64012_20200101/1_A01/".
	Prefix string
	Codec  string
	// Corrupt lists member names whose manifest digest is deliberately wrong.
	Corrupt []string
	// Omit lists member names declared in the manifest but left out of the archive.
	Omit []string
	// Unlisted lists member names archived but left out of the manifest.
	Unlisted []string
	// Replace swaps a member's archived body after its digest is recorded.
	Replace map[string][]byte
	// Extra entries are appended to the archive without manifest lines.
	Extra []TarEntry
	// BulkSize is the byte length of the subreads BAM payload.
	BulkSize int
}

// RunFixture describes an archive produced by BuildRunArchive.
type RunFixture struct {
	Path         string
	AssayID      string
	ManifestName string
	// Bodies maps depth-relative member names to their archived content.
	Bodies map[string][]byte
}

// BuildRunArchive writes a sequencing-run style archive with a transfer
// marker, a hidden run descriptor, metadata XMLs, an md5 manifest and bulk
// payload members.
func BuildRunArchive(t testing.TB, path string, opts RunOptions) RunFixture {
	t.Helper()

	assay := opts.AssayID
	if assay == "" {
		assay = "m64012_200101_000000"
	}
	bulkSize := opts.BulkSize
	if bulkSize <= 0 {
		bulkSize = 256 * 1024
	}
	payload := bytes.Repeat([]byte("ACGT"), bulkSize/4+1)[:bulkSize]

	manifestName := assay + ".md5"
	ordered := []struct {
		name string
		body []byte
	}{
		{"." + assay + ".run.metadata.xml", []byte(fmt.Sprintf("<Run id=%q/>\n", assay))},
		{assay + ".metadata.xml", []byte(fmt.Sprintf("<Metadata run=%q/>\n", assay))},
		{assay + ".sts.xml", []byte("<PipeStats/>\n")},
		{assay + ".subreadset.xml", []byte("<SubreadSet/>\n")},
		{assay + ".subreads.bam", payload},
		{assay + ".subreads.bam.pbi", []byte("PBI\x01index")},
	}

	corrupt := toSet(opts.Corrupt)
	omit := toSet(opts.Omit)
	unlisted := toSet(opts.Unlisted)

	var manifest strings.Builder
	bodies := make(map[string][]byte)
	for _, member := range ordered {
		digest := MD5Hex(member.body)
		if corrupt[member.name] {
			digest = strings.Repeat("0", 32)
		}
		if !unlisted[member.name] {
			fmt.Fprintf(&manifest, "%s  %s\n", digest, member.name)
		}
		bodies[member.name] = member.body
		if replaced, ok := opts.Replace[member.name]; ok {
			bodies[member.name] = replaced
		}
	}
	bodies[manifestName] = []byte(manifest.String())

	entries := []TarEntry{{Name: opts.Prefix + assay + ".transferdone", Body: nil}}
	if opts.Prefix != "" {
		entries = append([]TarEntry{{Name: opts.Prefix, Dir: true}}, entries...)
	}
	for i, member := range ordered {
		if omit[member.name] {
			continue
		}
		entries = append(entries, TarEntry{Name: opts.Prefix + member.name, Body: bodies[member.name]})
		if i == 2 {
			entries = append(entries, TarEntry{Name: opts.Prefix + manifestName, Body: bodies[manifestName]})
		}
	}
	for _, extra := range opts.Extra {
		if !extra.Dir {
			bodies[extra.Name] = extra.Body
		}
		extra.Name = opts.Prefix + extra.Name
		entries = append(entries, extra)
	}
	for name := range omit {
		delete(bodies, name)
	}

	WriteArchive(t, path, opts.Codec, entries)
	return RunFixture{Path: path, AssayID: assay, ManifestName: manifestName, Bodies: bodies}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		set[value] = true
	}
	return set
}
