package fastq

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/eunmann/fastq-stats/pkg/decompress"
)

// lineBufferSize is the bufio buffer used for line scanning. Longer lines are
// assembled in a scratch buffer up to ReaderOptions.MaxLineBytes.
const lineBufferSize = 256 * 1024

// Reader yields validated records from a FASTQ stream.
//
// The sequence it produces is forward-only: after io.EOF or the first error,
// Next keeps returning that same error and the underlying resources are
// already released. A Reader is NOT safe for concurrent use.
type Reader struct {
	name    string
	opts    ReaderOptions
	format  decompress.Format
	br      *bufio.Reader
	closers []io.Closer

	scratch    []byte
	lineNo     int
	offset     int64
	lineOffset int64
	records    int

	err      error
	released bool
	closeErr error
}

// Open opens the FASTQ file at path. A compression envelope is detected from
// the file's leading bytes, not from its name.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Source: path, Err: err}
	}
	r, err := newReader(f, path, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closers = append([]io.Closer{f}, r.closers...)
	return r, nil
}

// NewReader returns a Reader over src. name is used in error messages.
// The caller keeps ownership of src; Close releases only what NewReader
// created.
func NewReader(src io.Reader, name string, opts ReaderOptions) (*Reader, error) {
	return newReader(src, name, opts)
}

func newReader(src io.Reader, name string, opts ReaderOptions) (*Reader, error) {
	opts.Validate()

	dec, format, err := decompress.NewReader(src)
	if err != nil {
		return nil, &IOError{Op: "open", Source: name, Err: err}
	}

	return &Reader{
		name:    name,
		opts:    opts,
		format:  format,
		br:      bufio.NewReaderSize(dec, lineBufferSize),
		closers: []io.Closer{dec},
	}, nil
}

// Next returns the next record, or io.EOF after the last complete record.
func (r *Reader) Next() (Record, error) {
	if r.err != nil {
		return Record{}, r.err
	}

	rec, err := r.next()
	if err != nil {
		r.err = err
		r.release()
		return Record{}, err
	}
	return rec, nil
}

// All returns the remaining records as a lazy sequence. Iteration stops
// silently at io.EOF; any other error is yielded once and ends the sequence.
func (r *Reader) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Close releases the decompressor and, for readers created by Open, the file.
// It is safe to call more than once. The error from releasing is reported
// even when Next already released at EOF or on a failure.
func (r *Reader) Close() error {
	if r.err == nil {
		r.err = ErrClosed
	}
	r.release()
	return r.closeErr
}

// Format returns the compression envelope detected at open.
func (r *Reader) Format() decompress.Format {
	return r.format
}

// RecordCount returns the number of records started so far, including a
// record that failed validation.
func (r *Reader) RecordCount() int {
	return r.records
}

// LineCount returns the number of lines consumed.
func (r *Reader) LineCount() int {
	return r.lineNo
}

// Offset returns the number of decompressed bytes consumed.
func (r *Reader) Offset() int64 {
	return r.offset
}

// release closes layered resources in reverse order of acquisition
// (decompressor before file).
func (r *Reader) release() {
	if r.released {
		return
	}
	r.released = true
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && r.closeErr == nil {
			r.closeErr = err
		}
	}
	r.closers = nil
	r.scratch = nil
}

func (r *Reader) next() (Record, error) {
	var line []byte
	for {
		var err error
		line, err = r.readLine()
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		if err != nil {
			return Record{}, r.wrapLineErr(r.records+1, err)
		}
		// Blank lines between records are tolerated.
		if len(line) > 0 {
			break
		}
	}

	r.records++
	if line[0] != '@' {
		return Record{}, r.formatErr(ErrMissingHeaderMarker, "")
	}
	rec := Record{Header: string(line[1:])}

	line, err := r.recordLine()
	if err != nil {
		return Record{}, err
	}
	if len(line) == 0 {
		return Record{}, r.formatErr(ErrEmptySequence, "")
	}
	rec.Sequence = bytes.Clone(line)

	line, err = r.recordLine()
	if err != nil {
		return Record{}, err
	}
	if len(line) == 0 || line[0] != '+' {
		return Record{}, r.formatErr(ErrMissingSeparatorMarker, "")
	}

	line, err = r.recordLine()
	if err != nil {
		return Record{}, err
	}
	if len(line) != len(rec.Sequence) {
		return Record{}, r.formatErr(ErrLengthMismatch,
			fmt.Sprintf("sequence has %d symbols, quality has %d", len(rec.Sequence), len(line)))
	}

	rec.Quality, err = DecodeQuality(line, r.opts.QualityOffset)
	if err != nil {
		return Record{}, r.formatErr(ErrInvalidQuality, err.Error())
	}
	return rec, nil
}

// recordLine reads a line that must exist because a record is in progress.
func (r *Reader) recordLine() ([]byte, error) {
	line, err := r.readLine()
	if errors.Is(err, io.EOF) {
		return nil, &FormatError{
			Record: r.records,
			Line:   r.lineNo + 1,
			Offset: r.offset,
			Reason: ErrTruncatedRecord,
		}
	}
	if err != nil {
		return nil, r.wrapLineErr(r.records, err)
	}
	return line, nil
}

func (r *Reader) formatErr(reason error, detail string) *FormatError {
	return &FormatError{
		Record: r.records,
		Line:   r.lineNo,
		Offset: r.lineOffset,
		Reason: reason,
		Detail: detail,
	}
}

func (r *Reader) wrapLineErr(record int, err error) error {
	if errors.Is(err, ErrLineTooLong) {
		return &FormatError{
			Record: record,
			Line:   r.lineNo,
			Offset: r.lineOffset,
			Reason: ErrLineTooLong,
			Detail: fmt.Sprintf("limit is %d bytes", r.opts.MaxLineBytes),
		}
	}
	return err
}

// readLine returns the next line without its terminator. The slice is only
// valid until the next call. io.EOF is returned only when no bytes remain.
func (r *Reader) readLine() ([]byte, error) {
	r.lineOffset = r.offset
	r.scratch = r.scratch[:0]

	for {
		chunk, err := r.br.ReadSlice('\n')
		r.offset += int64(len(chunk))

		if err == nil && len(r.scratch) == 0 {
			r.lineNo++
			return r.checkLength(trimEOL(chunk))
		}
		r.scratch = append(r.scratch, chunk...)

		switch {
		case err == nil:
			r.lineNo++
			return r.checkLength(trimEOL(r.scratch))
		case errors.Is(err, bufio.ErrBufferFull):
			// Allow for a trailing "\r" before giving up.
			if len(r.scratch) > r.opts.MaxLineBytes+1 {
				r.lineNo++
				return nil, ErrLineTooLong
			}
		case errors.Is(err, io.EOF):
			if len(r.scratch) == 0 {
				return nil, io.EOF
			}
			r.lineNo++
			return r.checkLength(trimEOL(r.scratch))
		default:
			return nil, &IOError{Op: "read", Source: r.name, Err: err}
		}
	}
}

func (r *Reader) checkLength(line []byte) ([]byte, error) {
	if len(line) > r.opts.MaxLineBytes {
		return nil, ErrLineTooLong
	}
	return line, nil
}

func trimEOL(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
