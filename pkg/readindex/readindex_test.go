package readindex

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eunmann/fastq-stats/internal/logctx"
	"github.com/eunmann/fastq-stats/pkg/benchutil"
	"github.com/eunmann/fastq-stats/pkg/fastq"
)

func testContext(buf *bytes.Buffer) context.Context {
	return logctx.WithLogger(context.Background(), zerolog.New(buf))
}

func newReader(t *testing.T, data string) *fastq.Reader {
	t.Helper()
	rd, err := fastq.NewReader(strings.NewReader(data), "test.fq", fastq.DefaultReaderOptions())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	t.Cleanup(func() { rd.Close() })
	return rd
}

func fastqText(ids ...string) string {
	var sb strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&sb, "@%s extra comment\nACGT\n+\nIIII\n", id)
	}
	return sb.String()
}

func TestBuildAndLookup(t *testing.T) {
	var logs bytes.Buffer
	path := filepath.Join(t.TempDir(), "reads.fqix")

	ids := []string{"read/1", "read/2", "read/3", "read/2", "read/4"}
	stats, err := Build(testContext(&logs), newReader(t, fastqText(ids...)), path)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Records != 5 || stats.Indexed != 4 || stats.Duplicates != 1 {
		t.Errorf("stats = %+v", stats)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != stats.Bytes {
		t.Errorf("file size %d, stats.Bytes %d", info.Size(), stats.Bytes)
	}

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if idx.Len() != 4 || idx.Records() != 5 || idx.Duplicates() != 1 {
		t.Errorf("Len/Records/Duplicates = %d/%d/%d", idx.Len(), idx.Records(), idx.Duplicates())
	}

	tests := []struct {
		id     string
		want   uint64
		wantOK bool
	}{
		{"read/1", 0, true},
		{"read/2", 1, true},
		{"read/3", 2, true},
		{"read/4", 4, true},
		{"read/5", 0, false},
		{"read/1 extra comment", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := idx.Lookup(tt.id)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Lookup(%q) = %d, %v; want %d, %v", tt.id, got, ok, tt.want, tt.wantOK)
		}
	}

	if !strings.Contains(logs.String(), `"event":"file_created"`) {
		t.Errorf("expected file_created event, got: %s", logs.String())
	}
	if !strings.Contains(logs.String(), `"duplicates":1`) {
		t.Errorf("expected duplicate warning, got: %s", logs.String())
	}
}

func TestBuild_Generated(t *testing.T) {
	data, exp := benchutil.Bytes(benchutil.DefaultConfig(2000))
	rd, err := fastq.NewReader(bytes.NewReader(data), "gen.fq", fastq.DefaultReaderOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()

	path := filepath.Join(t.TempDir(), "gen.fqix")
	ctx := logctx.WithLogger(context.Background(), zerolog.Nop())
	if _, err := Build(ctx, rd, path); err != nil {
		t.Fatalf("Build: %v", err)
	}

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if int64(idx.Len()) != exp.Records {
		t.Fatalf("Len = %d, want %d", idx.Len(), exp.Records)
	}

	// Every ID maps back to the record it came from.
	again, err := fastq.NewReader(bytes.NewReader(data), "gen.fq", fastq.DefaultReaderOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	var ord uint64
	for rec, err := range again.All() {
		if err != nil {
			t.Fatal(err)
		}
		got, ok := idx.Lookup(rec.ID())
		if !ok || got != ord {
			t.Fatalf("Lookup(%q) = %d, %v; want %d", rec.ID(), got, ok, ord)
		}
		ord++
	}
}

func TestBuild_Empty(t *testing.T) {
	var logs bytes.Buffer
	path := filepath.Join(t.TempDir(), "empty.fqix")

	stats, err := Build(testContext(&logs), newReader(t, ""), path)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Records != 0 || stats.Bytes != headerSize {
		t.Errorf("stats = %+v", stats)
	}

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("Len = %d", idx.Len())
	}
	if _, ok := idx.Lookup("anything"); ok {
		t.Error("empty index should not find anything")
	}
}

func TestBuild_FormatError(t *testing.T) {
	var logs bytes.Buffer
	path := filepath.Join(t.TempDir(), "bad.fqix")

	_, err := Build(testContext(&logs), newReader(t, "@r1\nACGT\n+\nII\n"), path)
	if !errors.Is(err, fastq.ErrLengthMismatch) {
		t.Fatalf("expected length mismatch, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("no index should be written for a malformed source")
	}
}

func TestBuild_Canceled(t *testing.T) {
	var logs bytes.Buffer
	ctx, cancel := context.WithCancel(testContext(&logs))
	cancel()

	path := filepath.Join(t.TempDir(), "c.fqix")
	_, err := Build(ctx, newReader(t, fastqText("a", "b")), path)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOpen_Corrupt(t *testing.T) {
	dir := t.TempDir()
	var logs bytes.Buffer
	good := filepath.Join(dir, "good.fqix")
	if _, err := Build(testContext(&logs), newReader(t, fastqText("a", "b", "c")), good); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(good)
	if err != nil {
		t.Fatal(err)
	}

	badMagic := append([]byte{}, data...)
	badMagic[0] ^= 0xff
	badVersion := append([]byte{}, data...)
	badVersion[4] = 9
	hugeCount := append([]byte{}, data...)
	binary.LittleEndian.PutUint64(hugeCount[8:16], 1<<60+1)
	hugeMPH := append([]byte{}, data...)
	binary.LittleEndian.PutUint64(hugeMPH[32:40], ^uint64(0))

	tests := []struct {
		name string
		data []byte
	}{
		{"short", data[:10]},
		{"magic", badMagic},
		{"version", badVersion},
		{"truncated", data[:len(data)-8]},
		{"count overflow", hugeCount},
		{"mph length overflow", hugeMPH},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := os.WriteFile(path, tt.data, 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Open(path); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Open = %v, want ErrCorrupt", err)
			}
		})
	}

	if _, err := Open(filepath.Join(dir, "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open(missing) = %v", err)
	}
}
