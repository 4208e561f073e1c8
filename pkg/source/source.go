// Package source opens the byte stream behind a FASTQ source string: a local
// path, "-" for standard input, or an s3://bucket/key URI.
package source

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/eunmann/fastq-stats/pkg/fastq"
	"github.com/eunmann/fastq-stats/pkg/s3fetch"
)

// Stdin is the source string that selects standard input.
const Stdin = "-"

// ErrIsDirectory is returned when a local source names a directory.
var ErrIsDirectory = errors.New("is a directory")

// Options controls how sources are opened.
type Options struct {
	// S3Client serves s3:// sources. Nil builds one from the default AWS
	// configuration on first use.
	S3Client *s3fetch.Client

	// S3Download spools s3:// objects to a temp file with parallel ranged
	// GETs instead of streaming a single GET.
	S3Download bool

	// Downloader configures the spooling download.
	Downloader s3fetch.DownloaderConfig

	// Stdin replaces os.Stdin for the "-" source.
	Stdin io.Reader
}

// Stream is an open source. It counts the bytes read through it so that
// progress can be reported against Size.
type Stream struct {
	// Name is the source string as given by the caller.
	Name string
	// Size is the byte length of the source, or -1 when unknown.
	Size int64

	r      io.Reader
	closer io.Closer
	n      atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.n.Add(int64(n))
	return n, err
}

// BytesRead returns the number of raw (possibly compressed) bytes consumed.
// It may be called from any goroutine.
func (s *Stream) BytesRead() int64 {
	return s.n.Load()
}

// Close releases the underlying file or response body. Standard input is
// left open. Close is idempotent.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}

// Open resolves uri and opens it for reading. Failures are reported as
// *fastq.IOError with Op "open".
func Open(ctx context.Context, uri string, opts Options) (*Stream, error) {
	switch {
	case uri == Stdin:
		in := opts.Stdin
		if in == nil {
			in = os.Stdin
		}
		return FromReader(uri, in), nil
	case s3fetch.IsS3URI(uri):
		return openS3(ctx, uri, opts)
	default:
		return openFile(uri)
	}
}

// FromReader wraps a caller-owned reader as a Stream of unknown size.
// Close does not close r.
func FromReader(name string, r io.Reader) *Stream {
	return &Stream{Name: name, Size: -1, r: r}
}

func openFile(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &fastq.IOError{Op: "open", Source: path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &fastq.IOError{Op: "open", Source: path, Err: err}
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, &fastq.IOError{Op: "open", Source: path, Err: ErrIsDirectory}
	}

	size := int64(-1)
	if info.Mode().IsRegular() {
		size = info.Size()
		adviseSequential(f)
	}
	return &Stream{Name: path, Size: size, r: f, closer: f}, nil
}

func openS3(ctx context.Context, uri string, opts Options) (*Stream, error) {
	loc, err := s3fetch.ParseS3URI(uri)
	if err != nil {
		return nil, &fastq.IOError{Op: "open", Source: uri, Err: err}
	}

	client := opts.S3Client
	if client == nil {
		client, err = s3fetch.NewClient(ctx)
		if err != nil {
			return nil, &fastq.IOError{Op: "open", Source: uri, Err: err}
		}
	}

	var obj *s3fetch.Object
	if opts.S3Download {
		obj, _, err = client.Downloader(opts.Downloader).DownloadToReader(ctx, loc)
	} else {
		obj, err = client.StreamObject(ctx, loc)
	}
	if err != nil {
		return nil, &fastq.IOError{Op: "open", Source: uri, Err: err}
	}
	return &Stream{Name: uri, Size: obj.Size, r: obj, closer: obj}, nil
}
