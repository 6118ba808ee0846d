package manifest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a digest function used by a manifest.
type Algorithm string

const (
	Auto   Algorithm = "auto"
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// ParseAlgorithm validates a configured algorithm name.
func ParseAlgorithm(value string) (Algorithm, error) {
	switch algo := Algorithm(strings.ToLower(strings.TrimSpace(value))); algo {
	case "":
		return MD5, nil
	case Auto, MD5, SHA1, SHA256, BLAKE3:
		return algo, nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm %q", value)
	}
}

// Resolve picks the concrete algorithm for an expected digest. Auto infers
// from the hex length: 32 is md5, 40 is sha1, 64 is sha256.
func (a Algorithm) Resolve(expected string) (Algorithm, error) {
	if a != Auto {
		return a, nil
	}
	switch len(NormalizeDigest(expected)) {
	case 32:
		return MD5, nil
	case 40:
		return SHA1, nil
	case 64:
		return SHA256, nil
	default:
		return "", fmt.Errorf("cannot infer digest algorithm from %d hex characters", len(expected))
	}
}

// New returns a fresh hasher. Auto must be resolved first.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case MD5, "":
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("digest algorithm %q has no hasher", a)
	}
}

// HasherFor resolves the algorithm for expected and returns a hasher.
func (a Algorithm) HasherFor(expected string) (hash.Hash, error) {
	resolved, err := a.Resolve(expected)
	if err != nil {
		return nil, err
	}
	return resolved.New()
}

// Sum streams r through h using buf and returns the lower-case hex digest and
// the number of bytes read. A nil buf allocates a 1 MiB buffer.
func Sum(h hash.Hash, r io.Reader, buf []byte) (string, int64, error) {
	if buf == nil {
		buf = make([]byte, 1<<20)
	}
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// NormalizeDigest lower-cases and trims a hex digest.
func NormalizeDigest(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// DigestsEqual compares two hex digests case-insensitively.
func DigestsEqual(a, b string) bool {
	a, b = NormalizeDigest(a), NormalizeDigest(b)
	return a != "" && a == b
}

// Candidates lists the concrete algorithms needed to verify digests of any
// length under a. Auto expands to md5, sha1 and sha256.
func (a Algorithm) Candidates() []Algorithm {
	if a == Auto {
		return []Algorithm{MD5, SHA1, SHA256}
	}
	if a == "" {
		return []Algorithm{MD5}
	}
	return []Algorithm{a}
}

// DigestSet holds hex digests of one byte stream under several algorithms.
type DigestSet map[Algorithm]string

// Match resolves a for expected and compares it with the stored digest. It
// returns the computed digest used for the comparison.
func (d DigestSet) Match(a Algorithm, expected string) (string, bool) {
	resolved, err := a.Resolve(expected)
	if err != nil {
		return "", false
	}
	computed := d[resolved]
	return computed, DigestsEqual(computed, expected)
}

// Primary returns the digest under the first candidate of a.
func (d DigestSet) Primary(a Algorithm) string {
	return d[a.Candidates()[0]]
}

// SumAll streams r once through every candidate algorithm of a.
func SumAll(a Algorithm, r io.Reader, buf []byte) (DigestSet, int64, error) {
	candidates := a.Candidates()
	hashers := make([]hash.Hash, len(candidates))
	writers := make([]io.Writer, len(candidates))
	for i, algo := range candidates {
		h, err := algo.New()
		if err != nil {
			return nil, 0, err
		}
		hashers[i] = h
		writers[i] = h
	}
	if buf == nil {
		buf = make([]byte, 1<<20)
	}
	n, err := io.CopyBuffer(io.MultiWriter(writers...), r, buf)
	if err != nil {
		return nil, n, err
	}
	set := make(DigestSet, len(candidates))
	for i, algo := range candidates {
		set[algo] = hex.EncodeToString(hashers[i].Sum(nil))
	}
	return set, n, nil
}
