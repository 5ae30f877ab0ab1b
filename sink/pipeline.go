package sink

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/srchowdhury/taskengine/internal/clock"
)

// maxChunkPayload is 4 KiB minus one byte reserved for the original's
// trailing terminator (spec.md §4.4 "Binary writes"/"Data path").
const maxChunkPayload = 4095

// dataReadyThreshold is the chunk-count the producer-side queue must
// cross before a Write signals the drain goroutine on its own,
// independent of an explicit Flush (spec.md §4.4).
const dataReadyThreshold = 256

// errorLogFileName is the fixed name captured pipeline errors are
// flushed to at Close, per spec.md §4.4 "Shutdown sequence" — matching
// original_source/include/LoggingOps.hpp's m_ExcpLogFileName.
const errorLogFileName = "LoggingExceptionsList.txt"

// fieldSep mirrors LoggingOps.hpp's m_FieldSep ("|"), used to delimit
// the timestamp/goroutine-id/message fields of each captured-error line.
const fieldSep = "|"

// Pipeline is the async producer/drain writer path underlying the
// bundled observability subsystem (SPEC_FULL.md §8, C2). Records are
// pushed by any number of producer goroutines, chunked, and queued; a
// single background goroutine drains the queue into batches and hands
// each to the configured Sink. A write failure never aborts the
// pipeline — it is appended to an error list and surfaced at Close.
//
// Grounded on original_source/src/LoggingPipeline.cpp's queue + single
// drain thread + data-ready/shutdown condition variable, adapted to a
// sync.Cond plus a goroutine in place of std::condition_variable and
// std::thread.
type Pipeline struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []string
	markers  []chan struct{}
	shutdown bool

	sink Sink
	wg   sync.WaitGroup

	errsMu sync.Mutex
	errs   error
}

// NewPipeline constructs a Pipeline draining into sink and starts its
// background drain goroutine.
func NewPipeline(sink Sink) *Pipeline {
	p := &Pipeline{sink: sink}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(1)
	go p.drainLoop()
	return p
}

// Write splits record into 4 KiB-minus-one-byte chunks and pushes each
// onto the internal queue. Crossing dataReadyThreshold chunks signals
// the drain goroutine; below that, the batch accumulates until an
// explicit Flush, FlushSync, or Close. Write reports ErrPipelineClosed
// if called after Close, per SPEC_FULL.md §8's `(*Pipeline).Write(rec
// string) error` contract.
func (p *Pipeline) Write(record string) error {
	chunks := chunkRecord(record)
	if len(chunks) == 0 {
		return nil
	}
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return ErrPipelineClosed
	}
	p.queue = append(p.queue, chunks...)
	signal := len(p.queue) >= dataReadyThreshold
	p.mu.Unlock()
	if signal {
		p.cond.Signal()
	}
	return nil
}

// WriteUint8 encodes v as an 8-character '0'/'1' bit-string record.
func (p *Pipeline) WriteUint8(v uint8) error { return p.Write(bitString(uint64(v), 8)) }

// WriteUint16 encodes v as a 16-character '0'/'1' bit-string record.
func (p *Pipeline) WriteUint16(v uint16) error { return p.Write(bitString(uint64(v), 16)) }

// WriteUint32 encodes v as a 32-character '0'/'1' bit-string record.
func (p *Pipeline) WriteUint32(v uint32) error { return p.Write(bitString(uint64(v), 32)) }

// WriteUint64 encodes v as a 64-character '0'/'1' bit-string record.
func (p *Pipeline) WriteUint64(v uint64) error { return p.Write(bitString(v, 64)) }

// WriteUint8Slice writes each element of vs as its own bit-string
// record, mirroring the original's vector overloads. It stops and
// returns the first error encountered.
func (p *Pipeline) WriteUint8Slice(vs []uint8) error {
	for _, v := range vs {
		if err := p.WriteUint8(v); err != nil {
			return err
		}
	}
	return nil
}

// WriteUint16Slice writes each element of vs as its own bit-string
// record. It stops and returns the first error encountered.
func (p *Pipeline) WriteUint16Slice(vs []uint16) error {
	for _, v := range vs {
		if err := p.WriteUint16(v); err != nil {
			return err
		}
	}
	return nil
}

// WriteUint32Slice writes each element of vs as its own bit-string
// record. It stops and returns the first error encountered.
func (p *Pipeline) WriteUint32Slice(vs []uint32) error {
	for _, v := range vs {
		if err := p.WriteUint32(v); err != nil {
			return err
		}
	}
	return nil
}

// WriteUint64Slice writes each element of vs as its own bit-string
// record. It stops and returns the first error encountered.
func (p *Pipeline) WriteUint64Slice(vs []uint64) error {
	for _, v := range vs {
		if err := p.WriteUint64(v); err != nil {
			return err
		}
	}
	return nil
}

// Flush signals the drain goroutine and yields briefly so it has a
// chance to run. This is best-effort, not a barrier: Flush can return
// before the drain goroutine has actually handed the batch to the
// sink. Design notes §9 flags this as weak; FlushSync below is the
// real barrier it proposes.
func (p *Pipeline) Flush() {
	p.cond.Signal()
	time.Sleep(200 * time.Microsecond)
}

// FlushSync blocks until every record pushed before this call has been
// handed to the sink's writeBatch and that call has returned. Unlike
// Flush, this is a genuine barrier: it registers a marker the drain
// goroutine closes immediately after it finishes the batch that marker
// was queued alongside.
func (p *Pipeline) FlushSync() {
	done := make(chan struct{})
	p.mu.Lock()
	p.markers = append(p.markers, done)
	p.mu.Unlock()
	p.cond.Signal()
	<-done
}

// Close signals shutdown, waits for the drain goroutine to drain the
// remaining queue and exit, then flushes any captured write errors to
// errorLogFileName — the Go stand-in for the original's destructor
// writing LoggingExceptionsList.txt.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()
	p.cond.Signal()
	p.wg.Wait()

	combined := p.Errors()
	if combined == nil {
		return nil
	}

	var sb strings.Builder
	gid := strconv.FormatInt(goroutineID(), 10)
	clk := clock.System{}
	for _, err := range multierr.Errors(combined) {
		sb.WriteString(fieldSep)
		sb.WriteString(clk.WallNowFormatted("20060102_150405"))
		sb.WriteString(fieldSep)
		sb.WriteString(gid)
		sb.WriteString(fieldSep)
		sb.WriteString(">> ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	f, openErr := os.OpenFile(errorLogFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if openErr == nil {
		_, _ = f.WriteString(sb.String())
		_ = f.Close()
	}
	return combined
}

// goroutineID extracts the calling goroutine's numeric id from its own
// stack trace header, mirroring internal/clock's identical helper —
// duplicated here rather than exported from clock, since it is purely
// a cosmetic field in the captured-error log line, not an ownership
// token like clock.Stopwatch's use of it.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := string(buf[:n])
	const prefix = "goroutine "
	if !strings.HasPrefix(b, prefix) {
		return -1
	}
	b = b[len(prefix):]
	if i := strings.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(b, 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// Errors returns the combined captured sink-write errors, or nil if
// none occurred.
func (p *Pipeline) Errors() error {
	p.errsMu.Lock()
	defer p.errsMu.Unlock()
	return p.errs
}

func (p *Pipeline) recordErr(err error) {
	p.errsMu.Lock()
	p.errs = multierr.Append(p.errs, err)
	p.errsMu.Unlock()
}

// drainLoop waits on data-ready (queue non-empty or a pending marker)
// or shutdown; on wake it atomically takes the entire queue as a batch,
// releases the lock, and hands the batch to the sink — exactly the
// sequence spec.md §4.4 describes.
func (p *Pipeline) drainLoop() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && len(p.markers) == 0 && !p.shutdown {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.shutdown {
			markers := p.markers
			p.markers = nil
			p.mu.Unlock()
			closeMarkers(markers)
			return
		}
		batch := p.queue
		p.queue = nil
		markers := p.markers
		p.markers = nil
		p.mu.Unlock()

		if len(batch) > 0 {
			if err := p.sink.writeBatch(batch); err != nil {
				p.recordErr(fmt.Errorf("%w: %v", ErrSinkIO, err))
			}
		}
		closeMarkers(markers)
	}
}

func closeMarkers(markers []chan struct{}) {
	for _, m := range markers {
		close(m)
	}
}

func chunkRecord(record string) []string {
	if record == "" {
		return nil
	}
	var chunks []string
	for len(record) > maxChunkPayload {
		chunks = append(chunks, record[:maxChunkPayload])
		record = record[maxChunkPayload:]
	}
	chunks = append(chunks, record)
	return chunks
}

func bitString(v uint64, bits int) string {
	b := make([]byte, bits)
	for i := 0; i < bits; i++ {
		shift := uint(bits - 1 - i)
		if (v>>shift)&1 == 1 {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b)
}
