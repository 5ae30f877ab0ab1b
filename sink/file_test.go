package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/srchowdhury/taskengine/internal/clock"
)

// sequenceClock returns a distinct, strictly increasing timestamp on
// every call, so repeated rotations within the same test never collide
// on the same rotated file name.
type sequenceClock struct{ n int }

func (c *sequenceClock) WallNowFormatted(layout string) string {
	c.n++
	return fmt.Sprintf("seq%d", c.n)
}

func (c *sequenceClock) Start() *clock.Stopwatch {
	return (clock.System{}).Start()
}

func TestFileSinkPathNormalisation(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSink(DefaultFileSize, "app", dir, "", &sequenceClock{})
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}
	want := filepath.Join(dir, "app.txt")
	if fs.Path() != want {
		t.Fatalf("path = %q; want %q", fs.Path(), want)
	}
}

func TestFileSinkPathNormalisationExplicitExtension(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSink(DefaultFileSize, "app.log", dir, ".out", &sequenceClock{})
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}
	want := filepath.Join(dir, "app.out")
	if fs.Path() != want {
		t.Fatalf("path = %q; want %q", fs.Path(), want)
	}
}

func TestFileSinkMissingPathRejected(t *testing.T) {
	if _, err := NewFileSink(DefaultFileSize, "app", "/no/such/directory", "", &sequenceClock{}); err == nil {
		t.Fatal("expected ErrPathMissing")
	}
}

// TestFileSinkRotation reproduces spec.md §8 scenario 3: max 1 KiB,
// push 3 records of 1 KiB each; afterwards the directory holds the
// active file plus at least one rotated sibling, and concatenating
// them in order reproduces all three records.
func TestFileSinkRotation(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSink(1024, "log.txt", dir, "", &sequenceClock{})
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}

	records := make([]string, 3)
	for i := range records {
		records[i] = strings.Repeat(fmt.Sprintf("%d", i), 1024)
	}
	for _, rec := range records {
		if err := fs.WriteDirect(rec); err != nil {
			t.Fatalf("write direct: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected at least 2 files after rotation, got %d", len(entries))
	}

	var combined strings.Builder
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	// Rotated siblings carry an increasing sequence suffix; sort them
	// before the still-current "log.txt" by construction order.
	for _, name := range names {
		if name == "log.txt" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read rotated file %s: %v", name, err)
		}
		combined.Write(data)
	}
	active, err := os.ReadFile(filepath.Join(dir, "log.txt"))
	if err != nil {
		t.Fatalf("read active file: %v", err)
	}
	combined.Write(active)

	for _, rec := range records {
		if !strings.Contains(combined.String(), rec) {
			t.Fatalf("record %q missing from combined rotated+active content", rec[:8])
		}
	}
	if want := strings.Join(records, "\n") + "\n"; combined.String() != want {
		t.Fatal("combined rotated+active content does not reproduce the three records in order")
	}
}

// TestFileSinkLineRangeRead reproduces spec.md §8 scenario 4: 200
// records of 3 KiB each through a file sink with rotation disabled
// (max size set far above total), then read_line_range(5, 15) returns
// 11 entries equal to records 5..15.
func TestFileSinkLineRangeRead(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSink(1<<30, "log.txt", dir, "", &sequenceClock{})
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}

	const total = 200
	records := make([]string, total)
	for i := 0; i < total; i++ {
		records[i] = fmt.Sprintf("%04d-%s", i+1, strings.Repeat("x", 3*1024-5))
	}
	if err := fs.writeBatch(records); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	lines, err := fs.ReadLineRange(5, 15)
	if err != nil {
		t.Fatalf("read line range: %v", err)
	}
	if len(lines) != 11 {
		t.Fatalf("lines = %d; want 11", len(lines))
	}
	for i, line := range lines {
		if line != records[4+i] {
			t.Fatalf("line %d = %q; want %q", i, line, records[4+i])
		}
	}
}

func TestFileSinkReadLineRangeRejectsInverted(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSink(DefaultFileSize, "log.txt", dir, "", &sequenceClock{})
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}
	if _, err := fs.ReadLineRange(10, 1); err != ErrRangeInvalid {
		t.Fatalf("err = %v; want ErrRangeInvalid", err)
	}
}

func TestFileSinkReadByteRangeRejectsOutOfBounds(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSink(DefaultFileSize, "log.txt", dir, "", &sequenceClock{})
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}
	if err := fs.writeBatch([]string{"hello"}); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if _, err := fs.ReadByteRange(0, 10_000); err != ErrRangeInvalid {
		t.Fatalf("err = %v; want ErrRangeInvalid", err)
	}
}

func TestFileSinkIsEmptyAndExists(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSink(DefaultFileSize, "log.txt", dir, "", &sequenceClock{})
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}
	if fs.Exists() {
		t.Fatal("file should not exist before any write")
	}
	if err := fs.writeBatch([]string{"data"}); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if !fs.Exists() {
		t.Fatal("file should exist after a write")
	}
	if fs.IsEmpty() {
		t.Fatal("file should not report empty after a write")
	}
}

func TestFileSinkPipelineIntegration(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSink(DefaultFileSize, "pipeline.txt", dir, "", &sequenceClock{})
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}
	p := NewPipeline(fs)

	for i := 0; i < 5; i++ {
		if err := p.Write(fmt.Sprintf("line-%d", i)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	p.FlushSync()
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := fs.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	for i := 0; i < 5; i++ {
		if !strings.Contains(string(data), fmt.Sprintf("line-%d", i)) {
			t.Fatalf("missing line-%d in file contents %q", i, data)
		}
	}
}

