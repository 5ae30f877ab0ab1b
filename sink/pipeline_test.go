package sink

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingSink captures every batch handed to it by the pipeline's
// drain goroutine, guarded by its own lock (a minimal Sink for
// pipeline-level tests, independent of FileSink/ConsoleSink).
type recordingSink struct {
	mu       sync.Mutex
	written  []string
	failNext bool
}

func (s *recordingSink) writeBatch(batch []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("synthetic write failure")
	}
	s.written = append(s.written, batch...)
	return nil
}

func (s *recordingSink) WriteDirect(record string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, record)
	return nil
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

func TestPipelineFlushSyncDeliversAllPushedRecords(t *testing.T) {
	rs := &recordingSink{}
	p := NewPipeline(rs)

	for i := 0; i < 10; i++ {
		if err := p.Write("record"); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	p.FlushSync()

	if got := len(rs.snapshot()); got != 10 {
		t.Fatalf("written = %d; want 10", got)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPipelineAutoDrainsAboveThreshold(t *testing.T) {
	rs := &recordingSink{}
	p := NewPipeline(rs)
	defer p.Close()

	for i := 0; i < dataReadyThreshold+5; i++ {
		if err := p.Write("x"); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	deadline := time.After(time.Second)
	for {
		if len(rs.snapshot()) >= dataReadyThreshold+5 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d of %d records drained before deadline", len(rs.snapshot()), dataReadyThreshold+5)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPipelineCapturesWriteErrors(t *testing.T) {
	rs := &recordingSink{failNext: true}
	p := NewPipeline(rs)

	if err := p.Write("doomed"); err != nil {
		t.Fatalf("write: %v", err)
	}
	p.FlushSync()

	if err := p.Errors(); err == nil {
		t.Fatal("expected a captured error")
	}
	if err := p.Close(); err == nil {
		t.Fatal("expected Close to surface the captured error")
	}
}

func TestPipelineChunksLongRecords(t *testing.T) {
	long := make([]byte, maxChunkPayload*2+10)
	for i := range long {
		long[i] = 'a'
	}
	chunks := chunkRecord(string(long))
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d; want 3", len(chunks))
	}
	if len(chunks[0]) != maxChunkPayload || len(chunks[1]) != maxChunkPayload {
		t.Fatalf("chunk lengths = %d, %d; want %d, %d", len(chunks[0]), len(chunks[1]), maxChunkPayload, maxChunkPayload)
	}
}

func TestBitStringEncoding(t *testing.T) {
	got := bitString(0b1010, 8)
	want := "00001010"
	if got != want {
		t.Fatalf("bitString = %q; want %q", got, want)
	}
}

func TestPipelineWriteUint(t *testing.T) {
	rs := &recordingSink{}
	p := NewPipeline(rs)

	if err := p.WriteUint16(5); err != nil {
		t.Fatalf("write uint16: %v", err)
	}
	p.FlushSync()
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	written := rs.snapshot()
	if len(written) != 1 || written[0] != "0000000000000101" {
		t.Fatalf("written = %v; want one 16-bit record for 5", written)
	}
}
