package fastq

import "fmt"

// QualityError locates the first symbol DecodeQuality rejected.
type QualityError struct {
	// Column is the 1-based position of the symbol in the quality line.
	Column int
	Symbol byte
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("symbol %q at column %d", e.Symbol, e.Column)
}

func (e *QualityError) Unwrap() error {
	return ErrInvalidQuality
}

// DecodeQuality converts encoded quality symbols into Phred scores.
// Symbols below offset or above '~' are rejected.
func DecodeQuality(symbols []byte, offset int) ([]byte, error) {
	scores := make([]byte, len(symbols))
	for i, c := range symbols {
		if int(c) < offset || c > maxQualitySymbol {
			return nil, &QualityError{Column: i + 1, Symbol: c}
		}
		scores[i] = c - byte(offset)
	}
	return scores, nil
}

// EncodeQuality is the inverse of DecodeQuality.
func EncodeQuality(scores []byte, offset int) []byte {
	symbols := make([]byte, len(scores))
	for i, q := range scores {
		symbols[i] = q + byte(offset)
	}
	return symbols
}
