package fastq

import (
	"github.com/eunmann/fastq-stats/pkg/sysmem"
)

// Phred encodings in common use.
const (
	// Sanger is the Phred+33 encoding used by Illumina 1.8+ and most tools.
	Sanger = 33
	// Illumina13 is the legacy Phred+64 encoding.
	Illumina13 = 64
)

// maxQualitySymbol is the highest printable ASCII symbol ('~').
const maxQualitySymbol = '~'

const (
	minLineBytes = 1 << 20
	maxLineBytes = 64 << 20
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// QualityOffset is subtracted from each quality symbol.
	// Default: Sanger (33).
	QualityOffset int

	// MaxLineBytes caps the length of a single line.
	// Default: 1/256 of system RAM, clamped to [1 MiB, 64 MiB].
	MaxLineBytes int
}

// DefaultReaderOptions returns options for Phred+33 input sized to this machine.
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{
		QualityOffset: Sanger,
		MaxLineBytes:  int(sysmem.Share(sysmem.TotalBytes(), 256, minLineBytes, maxLineBytes)),
	}
}

// Validate fills zero or out-of-range values with defaults.
func (o *ReaderOptions) Validate() {
	if o.QualityOffset <= 0 || o.QualityOffset > maxQualitySymbol {
		o.QualityOffset = Sanger
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = DefaultReaderOptions().MaxLineBytes
	}
}

// WithQualityOffset sets the Phred encoding offset.
func (o ReaderOptions) WithQualityOffset(offset int) ReaderOptions {
	o.QualityOffset = offset
	return o
}

// WithMaxLineBytes sets the line length ceiling.
func (o ReaderOptions) WithMaxLineBytes(n int) ReaderOptions {
	o.MaxLineBytes = n
	return o
}
