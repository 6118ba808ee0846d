package archive

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"sieve/internal/services"
)

const readBufferSize = 1 << 20

// Reader is an open tar stream over an archive file.
type Reader struct {
	*tar.Reader
	Codec Codec
	// Size is the on-disk (compressed) size of the archive.
	Size int64

	file    *os.File
	counter *countingReader
	release func() error
}

// Open opens the archive at location and detects its codec. Remote locations
// are rejected: fetching is outside this package.
func Open(location string) (*Reader, error) {
	if strings.Contains(location, "://") {
		return nil, services.Wrap(services.ErrUnreadableArchive, "archive", "open", "remote location not available locally: "+location, nil)
	}
	file, err := os.Open(location)
	if err != nil {
		return nil, services.Wrap(services.ErrUnreadableArchive, "archive", "open", location, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, services.Wrap(services.ErrUnreadableArchive, "archive", "stat", location, err)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, services.Wrap(services.ErrUnreadableArchive, "archive", "open", location+" is a directory", nil)
	}

	counter := &countingReader{r: file}
	br := bufio.NewReaderSize(counter, readBufferSize)
	codec := DetectCodec(br)
	stream, release, err := decompress(codec, br)
	if err != nil {
		_ = file.Close()
		return nil, services.Wrap(services.ErrUnreadableArchive, "archive", "decode", location, err)
	}
	return &Reader{
		Reader:  tar.NewReader(stream),
		Codec:   codec,
		Size:    info.Size(),
		file:    file,
		counter: counter,
		release: release,
	}, nil
}

// Consumed reports how many compressed bytes have been read from disk.
func (r *Reader) Consumed() int64 {
	if r == nil || r.counter == nil {
		return 0
	}
	return r.counter.n
}

// Close releases the decoder and the underlying file.
func (r *Reader) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.release != nil {
		errs = append(errs, r.release())
	}
	if r.file != nil {
		errs = append(errs, r.file.Close())
	}
	return errors.Join(errs...)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// memberReader surfaces cancellation and tags corrupt-stream failures.
type memberReader struct {
	ctx  context.Context
	name string
	r    io.Reader
}

func (m *memberReader) Read(p []byte) (int, error) {
	if err := m.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := m.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, services.Wrap(services.ErrUnreadableArchive, "archive", "read member", m.name, err)
	}
	return n, err
}

func normalizeMemberName(name string) string {
	for strings.HasPrefix(name, "./") {
		name = strings.TrimPrefix(name, "./")
	}
	return name
}

func wrapNextError(location string, err error) error {
	return services.Wrap(services.ErrUnreadableArchive, "archive", "list", location, fmt.Errorf("tar header: %w", err))
}
