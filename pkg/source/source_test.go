package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eunmann/fastq-stats/pkg/fastq"
	"github.com/eunmann/fastq-stats/pkg/s3fetch"
)

const sample = "@r1\nACGT\n+\nIIII\n"

type fakeGetter struct {
	body   []byte
	closed bool
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if aws.ToString(in.Key) != "reads.fq" {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{
		Body:          &trackingCloser{Reader: bytes.NewReader(f.body), closed: &f.closed},
		ContentLength: aws.Int64(int64(len(f.body))),
	}, nil
}

type trackingCloser struct {
	io.Reader
	closed *bool
}

func (c *trackingCloser) Close() error {
	*c.closed = true
	return nil
}

func TestOpen_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reads.fq")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := Open(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Name != path || s.Size != int64(len(sample)) {
		t.Errorf("Name=%q Size=%d", s.Name, s.Size)
	}

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != sample {
		t.Errorf("content = %q", got)
	}
	if s.BytesRead() != int64(len(sample)) {
		t.Errorf("BytesRead = %d, want %d", s.BytesRead(), len(sample))
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		uri    string
		wantIs error
	}{
		{"missing file", filepath.Join(dir, "missing.fq"), os.ErrNotExist},
		{"directory", dir, ErrIsDirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(context.Background(), tt.uri, Options{})
			var ioErr *fastq.IOError
			if !errors.As(err, &ioErr) {
				t.Fatalf("expected *fastq.IOError, got %T: %v", err, err)
			}
			if ioErr.Op != "open" || ioErr.Source != tt.uri {
				t.Errorf("IOError = %+v", ioErr)
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("expected %v, got %v", tt.wantIs, err)
			}
		})
	}
}

func TestOpen_Stdin(t *testing.T) {
	in := strings.NewReader(sample)

	s, err := Open(context.Background(), Stdin, Options{Stdin: in})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Size != -1 {
		t.Errorf("Size = %d, want -1", s.Size)
	}
	if _, err := io.ReadAll(s); err != nil {
		t.Fatalf("read: %v", err)
	}
	if s.BytesRead() != int64(len(sample)) {
		t.Errorf("BytesRead = %d", s.BytesRead())
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestOpen_S3Stream(t *testing.T) {
	api := &fakeGetter{body: []byte(sample)}
	opts := Options{S3Client: s3fetch.NewClientWithAPI(api)}

	s, err := Open(context.Background(), "s3://bucket/reads.fq", opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Size != int64(len(sample)) {
		t.Errorf("Size = %d", s.Size)
	}
	got, _ := io.ReadAll(s)
	if string(got) != sample {
		t.Errorf("content = %q", got)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !api.closed {
		t.Error("response body was not closed")
	}
}

func TestOpen_S3Errors(t *testing.T) {
	opts := Options{S3Client: s3fetch.NewClientWithAPI(&fakeGetter{})}

	for _, uri := range []string{"s3://bucket", "s3://bucket/other.fq"} {
		_, err := Open(context.Background(), uri, opts)
		var ioErr *fastq.IOError
		if !errors.As(err, &ioErr) || ioErr.Source != uri {
			t.Errorf("Open(%q): expected IOError, got %v", uri, err)
		}
	}
}
