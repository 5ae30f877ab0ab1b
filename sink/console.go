package sink

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

// ConsoleSink is a line-by-line standard-output writer (spec.md §4.6,
// C4). In test mode its output is redirected into an in-memory buffer
// instead of the real stdout, so a pipeline's drain activity can be
// asserted on without capturing the process's actual file descriptor.
type ConsoleSink struct {
	mu            sync.Mutex
	out           io.Writer
	testMode      bool
	buf           bytes.Buffer
	flushEachLine bool
}

// NewConsoleSink returns a ConsoleSink writing to os.Stdout, flushing
// after every line by default — the "latency over throughput" policy
// design notes §9 documents, grounded on the original always calling
// flush() after a console push.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: os.Stdout, flushEachLine: true}
}

// SetFlushEachLine toggles the per-line flush policy.
func (c *ConsoleSink) SetFlushEachLine(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushEachLine = enabled
}

// SetTestMode switches output between the real writer and the
// in-memory capture buffer, clearing the buffer when enabling test
// mode.
func (c *ConsoleSink) SetTestMode(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testMode = enabled
	if enabled {
		c.buf.Reset()
	}
}

// CapturedOutput returns everything written while in test mode.
func (c *ConsoleSink) CapturedOutput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *ConsoleSink) writeBatch(batch []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range batch {
		if err := c.writeLineLocked(line); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkIO, err)
		}
	}
	return nil
}

// WriteDirect writes record and flushes immediately, bypassing the
// pipeline's batching.
func (c *ConsoleSink) WriteDirect(record string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeLineLocked(record); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkIO, err)
	}
	return nil
}

func (c *ConsoleSink) writeLineLocked(line string) error {
	w := c.out
	if c.testMode {
		w = &c.buf
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	if c.flushEachLine {
		if f, ok := w.(*os.File); ok {
			_ = f.Sync()
		}
	}
	return nil
}
