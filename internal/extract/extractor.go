package extract

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"sieve/internal/fileutil"
	"sieve/internal/logging"
	"sieve/internal/manifest"
)

// File is a metadata member written to the work directory.
type File struct {
	// Member is the depth-relative archive member name.
	Member string `json:"member"`
	// Name is the on-disk base name, possibly dot-prefixed.
	Name string `json:"name"`
	// Normalized is the un-prefixed base name once Normalize has run.
	Normalized string             `json:"normalized,omitempty"`
	Path       string             `json:"path"`
	Size       int64              `json:"size"`
	Digests    manifest.DigestSet `json:"digests,omitempty"`
	// Unchanged is set when the destination already held identical content.
	Unchanged bool `json:"unchanged"`
}

// Hidden reports whether the on-disk name uses the leading-dot convention.
func (f File) Hidden() bool {
	return len(f.Name) > 1 && strings.HasPrefix(f.Name, ".")
}

// PublishedName is the name the file is published under.
func (f File) PublishedName() string {
	if f.Normalized != "" {
		return f.Normalized
	}
	return strings.TrimPrefix(f.Name, ".")
}

// Extractor owns one work directory.
type Extractor struct {
	dir    string
	algo   manifest.Algorithm
	buf    []byte
	logger *slog.Logger
}

// New returns an extractor writing into dir, hashing with algo.
func New(dir string, algo manifest.Algorithm, logger *slog.Logger) *Extractor {
	return &Extractor{
		dir:    dir,
		algo:   algo,
		buf:    make([]byte, 1<<20),
		logger: logging.NewComponentLogger(logger, "extractor"),
	}
}

// Dir returns the work directory.
func (e *Extractor) Dir() string { return e.dir }

// PathFor returns the flattened destination path for an archive member.
func (e *Extractor) PathFor(member string) (string, error) {
	return safeJoin(e.dir, path.Base(member))
}

// Materialize streams r into the work directory under the member's base
// name, hashing the bytes as they are written.
func (e *Extractor) Materialize(member string, r io.Reader) (File, error) {
	dst, err := e.PathFor(member)
	if err != nil {
		return File{}, err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return File{}, fmt.Errorf("create work dir: %w", err)
	}
	tmp, err := os.CreateTemp(e.dir, ".sieve-*.part")
	if err != nil {
		return File{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	discard := func() { _ = os.Remove(tmpName) }

	digests, size, err := manifest.SumAll(e.algo, io.TeeReader(r, tmp), e.buf)
	if err != nil {
		_ = tmp.Close()
		discard()
		return File{}, fmt.Errorf("write %s: %w", member, err)
	}
	if err := tmp.Close(); err != nil {
		discard()
		return File{}, fmt.Errorf("close temp file: %w", err)
	}

	file := File{Member: member, Name: filepath.Base(dst), Path: dst, Size: size, Digests: digests}

	existing, existingSize, err := e.Digest(dst)
	if err == nil && existingSize == size && sameDigests(existing, digests) {
		discard()
		file.Unchanged = true
		e.logger.Debug("metadata member unchanged", logging.String(logging.FieldMember, member))
		return file, nil
	}
	if err := os.Rename(tmpName, dst); err != nil {
		discard()
		return File{}, fmt.Errorf("rename %s: %w", dst, err)
	}
	e.logger.Debug("metadata member written",
		logging.String(logging.FieldMember, member),
		logging.Int64("bytes", size),
	)
	return file, nil
}

// Digest hashes a file on disk with the extractor's algorithm set.
func (e *Extractor) Digest(path string) (manifest.DigestSet, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return manifest.SumAll(e.algo, f, e.buf)
}

// Reuse reports whether every entry already exists in the work directory
// with a matching digest. The files are returned so callers can skip the
// archive sweep entirely.
func (e *Extractor) Reuse(entries []manifest.Entry) ([]File, bool) {
	if len(entries) == 0 {
		return nil, false
	}
	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		dst, err := e.PathFor(entry.Name)
		if err != nil {
			return nil, false
		}
		digests, size, err := e.Digest(dst)
		if err != nil {
			return nil, false
		}
		if _, ok := digests.Match(e.algo, entry.Digest); !ok {
			return nil, false
		}
		files = append(files, File{
			Member:    entry.Name,
			Name:      filepath.Base(dst),
			Path:      dst,
			Size:      size,
			Digests:   digests,
			Unchanged: true,
		})
	}
	return files, true
}

// Normalize copies a hidden file to its un-prefixed name. Both names stay
// resolvable with identical bytes. Non-hidden files are returned as-is.
func (e *Extractor) Normalize(f File) (File, error) {
	if !f.Hidden() {
		f.Normalized = f.Name
		return f, nil
	}
	target := strings.TrimPrefix(f.Name, ".")
	dst, err := safeJoin(e.dir, target)
	if err != nil {
		return f, err
	}
	same, err := fileutil.SameContent(f.Path, dst)
	if err != nil {
		return f, fmt.Errorf("compare %s: %w", target, err)
	}
	if !same {
		if err := fileutil.CopyFileAtomic(f.Path, dst); err != nil {
			return f, fmt.Errorf("normalize %s: %w", f.Name, err)
		}
		e.logger.Debug("normalized hidden member",
			logging.String(logging.FieldMember, f.Member),
			logging.String("normalized", target),
		)
	}
	f.Normalized = target
	return f, nil
}

// Publish copies files into dest under their published names, skipping
// files already present with identical content. It returns the destination
// paths in input order.
func (e *Extractor) Publish(files []File, dest string) ([]string, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("create publish dir: %w", err)
	}
	published := make([]string, 0, len(files))
	for _, f := range files {
		name := f.PublishedName()
		src, err := safeJoin(e.dir, name)
		if err != nil {
			return published, err
		}
		target, err := safeJoin(dest, name)
		if err != nil {
			return published, err
		}
		same, err := fileutil.SameContent(src, target)
		if err != nil {
			return published, fmt.Errorf("compare %s: %w", name, err)
		}
		if !same {
			if err := fileutil.CopyFileAtomic(src, target); err != nil {
				return published, fmt.Errorf("publish %s: %w", name, err)
			}
		}
		published = append(published, target)
	}
	return published, nil
}

func sameDigests(a, b manifest.DigestSet) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for algo, digest := range a {
		if !manifest.DigestsEqual(digest, b[algo]) {
			return false
		}
	}
	return true
}

func safeJoin(base, name string) (string, error) {
	clean := filepath.Clean(strings.TrimSpace(name))
	if clean == "." || clean == "" || clean == ".." {
		return "", fmt.Errorf("invalid member path: %s", name)
	}
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute member path: %s", name)
	}
	target := filepath.Join(base, clean)
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("member path escapes work dir: %s", name)
	}
	return target, nil
}
