// Package fastq reads FASTQ sequencing records from plain or compressed
// streams.
//
// A record is four lines: "@header", the sequence, "+" with optional
// trailing text, and a quality line as long as the sequence. Any structural
// violation ends the stream with a *FormatError.
package fastq

// Record is one validated sequencing read.
//
// Sequence keeps the symbols exactly as read (case included). Quality holds
// decoded Phred scores, one per sequence symbol.
type Record struct {
	// Header is the identifier line without the leading '@'.
	Header string
	// Sequence holds the raw nucleotide symbols.
	Sequence []byte
	// Quality holds Phred scores; len(Quality) == len(Sequence).
	Quality []byte
}

// Len returns the read length.
func (r Record) Len() int {
	return len(r.Sequence)
}

// ID returns the header up to the first space or tab.
func (r Record) ID() string {
	for i := 0; i < len(r.Header); i++ {
		if r.Header[i] == ' ' || r.Header[i] == '\t' {
			return r.Header[:i]
		}
	}
	return r.Header
}
