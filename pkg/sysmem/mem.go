// Package sysmem detects total system RAM so that per-line buffers can be
// sized relative to the machine instead of to a fixed constant.
package sysmem

// DefaultMemoryBytes is assumed when the platform gives no answer (4 GiB).
const DefaultMemoryBytes uint64 = 4 * 1024 * 1024 * 1024

// Result holds the detected memory size.
type Result struct {
	// TotalBytes is the total physical memory in bytes.
	TotalBytes uint64

	// Reliable is false when TotalBytes is the DefaultMemoryBytes fallback.
	Reliable bool
}

// Total returns the total system memory, falling back to DefaultMemoryBytes.
func Total() Result {
	bytes, ok := totalSystemMemory()
	if !ok || bytes == 0 {
		return Result{TotalBytes: DefaultMemoryBytes}
	}
	return Result{TotalBytes: bytes, Reliable: true}
}

// TotalBytes returns just the memory value from Total.
func TotalBytes() uint64 {
	return Total().TotalBytes
}

// Share returns total/divisor clamped to [floor, ceiling].
// A zero divisor yields ceiling.
func Share(total, divisor, floor, ceiling uint64) uint64 {
	if divisor == 0 {
		return ceiling
	}
	v := total / divisor
	if v < floor {
		return floor
	}
	if v > ceiling {
		return ceiling
	}
	return v
}
