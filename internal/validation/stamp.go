package validation

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"sieve/internal/archive"
	"sieve/internal/fileutil"
)

// stampName records which archive the work directory was last swept from.
const stampName = ".sieve-sweep.json"

// sampleSize bounds the head and tail windows hashed into the fingerprint.
const sampleSize = 64 << 10

// sweepStamp identifies the archive a metadata sweep was read from. Reuse is
// only allowed while every field still matches the archive on disk.
type sweepStamp struct {
	Archive        string        `json:"archive"`
	Size           int64         `json:"size"`
	ModTime        int64         `json:"mtime_ns"`
	Codec          archive.Codec `json:"codec"`
	Sample         string        `json:"sample"`
	ManifestMember string        `json:"manifest_member"`
	ManifestDigest string        `json:"manifest_digest"`
}

// archiveIdentity stamps the archive at handle.Path. Manifest fields are
// filled in by the caller.
func archiveIdentity(handle archive.Handle) (sweepStamp, error) {
	location, err := filepath.Abs(handle.Path)
	if err != nil {
		return sweepStamp{}, err
	}
	f, err := os.Open(location)
	if err != nil {
		return sweepStamp{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return sweepStamp{}, err
	}

	hasher := blake3.New()
	head := min(info.Size(), sampleSize)
	if _, err := io.CopyN(hasher, f, head); err != nil {
		return sweepStamp{}, fmt.Errorf("sample head: %w", err)
	}
	if tail := min(info.Size()-head, sampleSize); tail > 0 {
		if _, err := f.Seek(-tail, io.SeekEnd); err != nil {
			return sweepStamp{}, err
		}
		if _, err := io.CopyN(hasher, f, tail); err != nil {
			return sweepStamp{}, fmt.Errorf("sample tail: %w", err)
		}
	}
	return sweepStamp{
		Archive: location,
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
		Codec:   handle.Codec,
		Sample:  hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func readStamp(workDir string) (sweepStamp, bool) {
	data, err := os.ReadFile(filepath.Join(workDir, stampName))
	if err != nil {
		return sweepStamp{}, false
	}
	var stamp sweepStamp
	if err := json.Unmarshal(data, &stamp); err != nil {
		return sweepStamp{}, false
	}
	return stamp, true
}

func writeStamp(workDir string, stamp sweepStamp) error {
	data, err := json.MarshalIndent(stamp, "", "  ")
	if err != nil {
		return err
	}
	_, err = fileutil.WriteAtomic(filepath.Join(workDir, stampName), bytes.NewReader(data), 0o644)
	return err
}

func clearStamp(workDir string) error {
	err := os.Remove(filepath.Join(workDir, stampName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
