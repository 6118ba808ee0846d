package archive

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the compression wrapping a tar stream.
type Codec string

const (
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
	CodecLZ4  Codec = "lz4"
	CodecTar  Codec = "tar"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// DetectCodec peeks at the head of br without consuming it.
func DetectCodec(br *bufio.Reader) Codec {
	head, _ := br.Peek(4)
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return CodecZstd
	case bytes.HasPrefix(head, lz4Magic):
		return CodecLZ4
	case bytes.HasPrefix(head, gzipMagic):
		return CodecGzip
	default:
		return CodecTar
	}
}

// decompress wraps r with the decoder for codec. The returned closer releases
// decoder resources and never closes r.
func decompress(codec Codec, r io.Reader) (io.Reader, func() error, error) {
	noop := func() error { return nil }
	switch codec {
	case CodecGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip header: %w", err)
		}
		return zr, zr.Close, nil
	case CodecZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return dec, func() error { dec.Close(); return nil }, nil
	case CodecLZ4:
		return lz4.NewReader(r), noop, nil
	case CodecTar:
		return r, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown codec %q", codec)
	}
}
