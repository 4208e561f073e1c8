package fastq

import (
	"errors"
	"fmt"
)

// Reasons a record fails validation. A *FormatError unwraps to one of these.
var (
	// ErrTruncatedRecord indicates the input ended before a record's four lines.
	ErrTruncatedRecord = errors.New("truncated record")
	// ErrMissingHeaderMarker indicates a header line not starting with '@'.
	ErrMissingHeaderMarker = errors.New("header line does not start with '@'")
	// ErrMissingSeparatorMarker indicates a separator line not starting with '+'.
	ErrMissingSeparatorMarker = errors.New("separator line does not start with '+'")
	// ErrLengthMismatch indicates sequence and quality lines of different length.
	ErrLengthMismatch = errors.New("sequence and quality lengths differ")
	// ErrInvalidQuality indicates a quality symbol outside the accepted range.
	ErrInvalidQuality = errors.New("quality symbol out of range")
	// ErrEmptySequence indicates an empty sequence line.
	ErrEmptySequence = errors.New("empty sequence line")
	// ErrLineTooLong indicates a line longer than ReaderOptions.MaxLineBytes.
	ErrLineTooLong = errors.New("line exceeds maximum length")
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("fastq: reader closed")

// FormatError reports a structural violation in the input. It aborts the
// pass; there is no per-record recovery.
type FormatError struct {
	// Record is the 1-based index of the offending record.
	Record int
	// Line is the 1-based line number where the problem was detected.
	Line int
	// Offset is the byte offset of that line in the decompressed stream.
	Offset int64
	// Reason is one of the Err* sentinels in this package.
	Reason error
	// Detail is optional extra context, e.g. the two lengths that differ.
	Detail string
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("fastq: record %d (line %d, offset %d): %v", e.Record, e.Line, e.Offset, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Reason
}

// IOError reports a source that could not be opened or read.
type IOError struct {
	// Op is "open" or "read".
	Op string
	// Source names the path or URI.
	Source string
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("fastq: %s %s: %v", e.Op, e.Source, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
