// Package decompress detects a compression envelope from a stream's leading
// bytes and wraps the stream in the matching decompressor.
//
// Detection peeks through a bufio.Reader, so a plain-text stream reaches the
// parser with its first line intact.
package decompress

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/pierrec/lz4/v4"
)

// Format identifies a compression envelope.
type Format int

const (
	// None means the stream is passed through unchanged.
	None Format = iota
	// Gzip is RFC 1952 gzip, possibly multi-member.
	Gzip
	// Zstd is a Zstandard frame.
	Zstd
	// Bzip2 is a bzip2 stream.
	Bzip2
	// LZ4 is an LZ4 frame.
	LZ4
)

// String returns the conventional short name of the format.
func (f Format) String() string {
	switch f {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case Bzip2:
		return "bzip2"
	case LZ4:
		return "lz4"
	default:
		return "none"
	}
}

// Magic numbers for the recognized envelopes.
var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicBzip2 = []byte{'B', 'Z', 'h'}
	magicLZ4   = []byte{0x04, 0x22, 0x4d, 0x18}
)

// sniffLen is the number of leading bytes needed to tell all formats apart.
const sniffLen = 4

// readerBufferSize is the bufio buffer placed in front of the source.
const readerBufferSize = 1 << 20

// Sniff reports the compression format implied by prefix.
// A prefix shorter than a format's magic never matches that format.
func Sniff(prefix []byte) Format {
	switch {
	case bytes.HasPrefix(prefix, magicGzip):
		return Gzip
	case bytes.HasPrefix(prefix, magicZstd):
		return Zstd
	case bytes.HasPrefix(prefix, magicLZ4):
		return LZ4
	case bytes.HasPrefix(prefix, magicBzip2) && len(prefix) >= 4 && prefix[3] >= '1' && prefix[3] <= '9':
		return Bzip2
	default:
		return None
	}
}

// NewReader inspects the leading bytes of r and returns a reader producing
// the decompressed content together with the detected format.
//
// Closing the returned reader releases the decompressor only; r stays owned
// by the caller.
func NewReader(r io.Reader) (io.ReadCloser, Format, error) {
	br, ok := r.(*bufio.Reader)
	if !ok || br.Size() < sniffLen {
		br = bufio.NewReaderSize(r, readerBufferSize)
	}

	// Streams shorter than sniffLen are plain by definition.
	prefix, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, None, fmt.Errorf("read stream prefix: %w", err)
	}
	format := Sniff(prefix)

	switch format {
	case Gzip:
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return nil, format, fmt.Errorf("create gzip reader: %w", err)
		}
		return gz, format, nil
	case Zstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, format, fmt.Errorf("create zstd reader: %w", err)
		}
		return zstdReadCloser{zr}, format, nil
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(br)), format, nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(br)), format, nil
	default:
		return io.NopCloser(br), format, nil
	}
}

// zstdReadCloser adapts zstd.Decoder, whose Close has no error result.
type zstdReadCloser struct {
	dec *zstd.Decoder
}

func (z zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z zstdReadCloser) Close() error {
	z.dec.Close()
	return nil
}
