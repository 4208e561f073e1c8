// Package readindex maps read IDs to their ordinal position in a FASTQ
// source.
//
// The index is a minimal perfect hash over the IDs with a 64-bit fingerprint
// per slot, so absent IDs are rejected without storing the IDs themselves.
// Only the first occurrence of a repeated ID is indexed.
//
// File layout (little-endian):
//
//	magic(4) version(4) count(8) duplicates(8) records(8) mphLen(8)
//	mph[mphLen]
//	fingerprints[count]uint64
//	ordinals[count]uint64
//
// fingerprints and ordinals are stored in hash-slot order.
package readindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"time"

	"github.com/relab/bbhash"

	"github.com/eunmann/fastq-stats/internal/logctx"
	"github.com/eunmann/fastq-stats/pkg/fastq"
	"github.com/eunmann/fastq-stats/pkg/fileutil"
	"github.com/eunmann/fastq-stats/pkg/logging"
)

const (
	magic      = 0x46515849 // "FQIX"
	version    = 1
	headerSize = 40
)

// ErrCorrupt reports an index file that does not match the layout.
var ErrCorrupt = errors.New("readindex: corrupt index file")

// BuildStats summarizes an index build.
type BuildStats struct {
	Records    int64
	Indexed    int64
	Duplicates int64
	Bytes      int64
}

// Build reads every record from rd and writes the index to outPath. rd is
// read to exhaustion but not closed.
func Build(ctx context.Context, rd *fastq.Reader, outPath string) (BuildStats, error) {
	start := time.Now()
	log := logctx.FromContext(ctx)

	var stats BuildStats
	keys := make([]uint64, 0, 1024)
	entries := make(map[uint64]entry)
	done := ctx.Done()

	for {
		select {
		case <-done:
			return stats, ctx.Err()
		default:
		}

		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			return stats, err
		}

		id := rec.ID()
		h := hashID(id)
		if _, dup := entries[h]; dup {
			stats.Duplicates++
		} else {
			entries[h] = entry{ordinal: uint64(stats.Records), fp: fingerprint(id)}
			keys = append(keys, h)
		}
		stats.Records++
	}
	stats.Indexed = int64(len(keys))

	if stats.Duplicates > 0 {
		log.Warn().
			Int64("duplicates", stats.Duplicates).
			Msg("repeated read IDs; only first occurrences are indexed")
	}

	err := fileutil.WriteStream(outPath, func(w io.Writer) error {
		n, err := writeIndex(w, keys, entries, stats)
		stats.Bytes = n
		return err
	})
	if err != nil {
		return stats, fmt.Errorf("write index %s: %w", outPath, err)
	}

	logging.FileCreated(log, "index", time.Since(start)).
		Str("path", outPath).
		Count("records", stats.Records).
		Count("indexed", stats.Indexed).
		Int64("duplicates", stats.Duplicates).
		Bytes("size_bytes", stats.Bytes).
		Log("read index written")
	return stats, nil
}

type entry struct {
	ordinal uint64
	fp      uint64
}

func writeIndex(w io.Writer, keys []uint64, entries map[uint64]entry, stats BuildStats) (int64, error) {
	var mphData []byte
	fps := make([]uint64, len(keys))
	ords := make([]uint64, len(keys))

	if len(keys) > 0 {
		mph, err := bbhash.New(keys, bbhash.Gamma(2.0))
		if err != nil {
			return 0, fmt.Errorf("build MPHF: %w", err)
		}
		mphData, err = mph.MarshalBinary()
		if err != nil {
			return 0, fmt.Errorf("marshal MPHF: %w", err)
		}

		// bbhash slots are 1-based.
		for _, k := range keys {
			slot := mph.Find(k)
			if slot == 0 {
				return 0, fmt.Errorf("MPHF lookup failed for key %#x", k)
			}
			e := entries[k]
			fps[slot-1] = e.fp
			ords[slot-1] = e.ordinal
		}
	}

	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(hdr[0:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:8], version)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(keys)))
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(stats.Duplicates))
	binary.LittleEndian.PutUint64(hdr[24:32], uint64(stats.Records))
	binary.LittleEndian.PutUint64(hdr[32:40], uint64(len(mphData)))

	var written int64
	for _, chunk := range [][]byte{hdr, mphData, u64Bytes(fps), u64Bytes(ords)} {
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Index answers ID lookups from a loaded index file.
type Index struct {
	mph          *bbhash.BBHash2
	fingerprints []uint64
	ordinals     []uint64
	duplicates   int64
	records      int64
}

// Open loads the index at path into memory.
func Open(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (*Index, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if m := binary.LittleEndian.Uint32(data[0:4]); m != magic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrCorrupt, m)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	count := binary.LittleEndian.Uint64(data[8:16])
	idx := &Index{
		duplicates: int64(binary.LittleEndian.Uint64(data[16:24])),
		records:    int64(binary.LittleEndian.Uint64(data[24:32])),
	}
	mphLen := binary.LittleEndian.Uint64(data[32:40])

	body := data[headerSize:]
	n := uint64(len(body))
	if count > n/16 || mphLen != n-16*count {
		return nil, fmt.Errorf("%w: size %d does not match %d entries", ErrCorrupt, len(data), count)
	}

	if count > 0 {
		idx.mph = &bbhash.BBHash2{}
		if err := idx.mph.UnmarshalBinary(body[:mphLen]); err != nil {
			return nil, fmt.Errorf("unmarshal MPHF: %w", err)
		}
	}
	body = body[mphLen:]
	idx.fingerprints = readU64s(body[:8*count])
	idx.ordinals = readU64s(body[8*count:])
	return idx, nil
}

// Lookup returns the 0-based ordinal of the first record whose ID is id.
func (x *Index) Lookup(id string) (ordinal uint64, ok bool) {
	if x.mph == nil {
		return 0, false
	}
	slot := x.mph.Find(hashID(id))
	if slot == 0 || slot > uint64(len(x.fingerprints)) {
		return 0, false
	}
	if x.fingerprints[slot-1] != fingerprint(id) {
		return 0, false
	}
	return x.ordinals[slot-1], true
}

// Len returns the number of indexed IDs.
func (x *Index) Len() int {
	return len(x.ordinals)
}

// Records returns the number of records seen at build time.
func (x *Index) Records() int64 {
	return x.records
}

// Duplicates returns how many records repeated an earlier ID.
func (x *Index) Duplicates() int64 {
	return x.duplicates
}

func hashID(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}

// fingerprint uses a different hash function than hashID.
func fingerprint(id string) uint64 {
	h := fnv.New64()
	h.Write([]byte(id))
	return h.Sum64()
}

func u64Bytes(vals []uint64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(out[8*i:], v)
	}
	return out
}

func readU64s(b []byte) []uint64 {
	out := make([]uint64, len(b)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(b[8*i:])
	}
	return out
}
