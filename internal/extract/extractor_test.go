package extract

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sieve/internal/logging"
	"sieve/internal/manifest"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "work"), manifest.MD5, logging.NewNop())
}

func TestMaterializeEmptyMember(t *testing.T) {
	e := newTestExtractor(t)

	file, err := e.Materialize("run/empty.metadata.xml", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if _, ok := file.Digests.Match(manifest.MD5, "d41d8cd98f00b204e9800998ecf8427e"); !ok {
		t.Fatalf("digest = %v, want md5 of empty input", file.Digests)
	}
	if file.Name != "empty.metadata.xml" || file.Size != 0 {
		t.Fatalf("unexpected file %+v", file)
	}
	info, err := os.Stat(file.Path)
	if err != nil || info.Size() != 0 {
		t.Fatalf("expected zero-byte file on disk: %v", err)
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	e := newTestExtractor(t)
	body := "<Run/>"

	first, err := e.Materialize("m1.run.metadata.xml", strings.NewReader(body))
	if err != nil {
		t.Fatalf("first Materialize: %v", err)
	}
	if first.Unchanged {
		t.Fatal("first write should not be unchanged")
	}
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := os.Chtimes(first.Path, past, past); err != nil {
		t.Fatal(err)
	}

	second, err := e.Materialize("m1.run.metadata.xml", strings.NewReader(body))
	if err != nil {
		t.Fatalf("second Materialize: %v", err)
	}
	if !second.Unchanged {
		t.Fatal("second write of identical bytes should be unchanged")
	}
	info, err := os.Stat(second.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(past) {
		t.Fatalf("destination was rewritten: mtime %v", info.ModTime())
	}

	third, err := e.Materialize("m1.run.metadata.xml", strings.NewReader("<Run changed/>"))
	if err != nil {
		t.Fatalf("third Materialize: %v", err)
	}
	if third.Unchanged {
		t.Fatal("changed content must replace destination")
	}
	assertNoTempFiles(t, e.Dir())
}

func TestMaterializeRejectsTraversal(t *testing.T) {
	e := newTestExtractor(t)
	if _, err := e.Materialize("run/..", strings.NewReader("x")); err == nil {
		t.Fatal("expected traversal rejection")
	}
}

func TestNormalizeHiddenFile(t *testing.T) {
	e := newTestExtractor(t)
	body := []byte("<Run id=\"m1\"/>")

	file, err := e.Materialize("run/.m1.run.metadata.xml", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if !file.Hidden() {
		t.Fatal("expected hidden file")
	}
	normalized, err := e.Normalize(file)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if normalized.Normalized != "m1.run.metadata.xml" {
		t.Fatalf("normalized name = %q", normalized.Normalized)
	}
	for _, name := range []string{".m1.run.metadata.xml", "m1.run.metadata.xml"} {
		got, err := os.ReadFile(filepath.Join(e.Dir(), name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !bytes.Equal(got, body) {
			t.Fatalf("%s content = %q", name, got)
		}
	}

	again, err := e.Normalize(file)
	if err != nil || again.Normalized != normalized.Normalized {
		t.Fatalf("second Normalize = %+v, %v", again, err)
	}
}

func TestNormalizeVisibleFileIsNoop(t *testing.T) {
	e := newTestExtractor(t)
	file, err := e.Materialize("m1.sts.xml", strings.NewReader("<PipeStats/>"))
	if err != nil {
		t.Fatal(err)
	}
	normalized, err := e.Normalize(file)
	if err != nil {
		t.Fatal(err)
	}
	if normalized.Normalized != "m1.sts.xml" {
		t.Fatalf("normalized = %q", normalized.Normalized)
	}
}

func TestReuse(t *testing.T) {
	e := newTestExtractor(t)
	if _, err := e.Materialize("a.xml", strings.NewReader("a")); err != nil {
		t.Fatal(err)
	}
	entries := []manifest.Entry{{Name: "a.xml", Digest: "0cc175b9c0f1b6a831c399e269772661"}}

	files, ok := e.Reuse(entries)
	if !ok || len(files) != 1 || !files[0].Unchanged {
		t.Fatalf("Reuse = %+v, %v", files, ok)
	}
	if _, ok := e.Reuse(append(entries, manifest.Entry{Name: "b.xml", Digest: "92eb5ffee6ae2fec3ad71c777531578f"})); ok {
		t.Fatal("missing file must prevent reuse")
	}
	if _, ok := e.Reuse([]manifest.Entry{{Name: "a.xml", Digest: strings.Repeat("0", 32)}}); ok {
		t.Fatal("digest mismatch must prevent reuse")
	}
	if _, ok := e.Reuse(nil); ok {
		t.Fatal("no entries must not be reusable")
	}
}

func TestPublishCopiesNormalizedNames(t *testing.T) {
	e := newTestExtractor(t)
	hidden, err := e.Materialize(".m1.run.metadata.xml", strings.NewReader("<Run/>"))
	if err != nil {
		t.Fatal(err)
	}
	hidden, err = e.Normalize(hidden)
	if err != nil {
		t.Fatal(err)
	}
	manifestFile, err := e.Materialize("m1.md5", strings.NewReader("digest  name\n"))
	if err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "out", "m1", "metadata")
	published, err := e.Publish([]File{hidden, manifestFile}, dest)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(published) != 2 {
		t.Fatalf("published = %v", published)
	}
	entries, err := os.ReadDir(dest)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	if strings.Join(names, ",") != "m1.md5,m1.run.metadata.xml" {
		t.Fatalf("published names = %v", names)
	}

	if _, err := e.Publish([]File{hidden, manifestFile}, dest); err != nil {
		t.Fatalf("second Publish: %v", err)
	}
}

func TestSafeJoin(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"", ".", "..", "../x", "/etc/passwd"} {
		if _, err := safeJoin(base, name); err == nil {
			t.Fatalf("safeJoin(%q) should fail", name)
		}
	}
	got, err := safeJoin(base, "a.xml")
	if err != nil || got != filepath.Join(base, "a.xml") {
		t.Fatalf("safeJoin = %q, %v", got, err)
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".part") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}
