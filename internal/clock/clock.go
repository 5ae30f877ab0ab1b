// Package clock implements the boundary contract of the Clock external
// collaborator described in SPEC_FULL.md §12: a monotonic stopwatch plus
// wall-clock timestamp formatting. It is deliberately minimal — the
// original t_pool/logger library treats Clock as an outside dependency
// and only specifies its interface (spec.md §4.7), and no package in the
// retrieval pack offers a goroutine-identity primitive, so the
// thread/goroutine-ownership rule is implemented directly on top of
// runtime.Stack rather than an imported library.
package clock

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

// Clock is the boundary contract consumed by the sink subsystem for
// rotation timestamps and the captured-error log's timestamp field.
type Clock interface {
	// WallNowFormatted renders the current wall-clock time using layout
	// (a Go time layout string, e.g. "20060102_150405").
	WallNowFormatted(layout string) string

	// Start begins a new stopwatch owned by the calling goroutine.
	Start() *Stopwatch
}

// System is the default Clock, backed by time.Now.
type System struct{}

func (System) WallNowFormatted(layout string) string {
	return time.Now().Format(layout)
}

func (System) Start() *Stopwatch {
	return &Stopwatch{owner: goroutineID(), started: time.Now()}
}

// Stopwatch measures elapsed wall-clock time from Start to Stop.
//
// Per spec.md §4.7, a stopwatch belongs to the goroutine that started
// it; Stop called from any other goroutine is a no-op that returns zero.
type Stopwatch struct {
	owner   int64
	started time.Time
	stopped atomic.Bool
	elapsed time.Duration
}

// Stop records the elapsed duration since Start and returns it. Calling
// Stop from a goroutine other than the one that started the stopwatch
// is a no-op and returns zero.
func (s *Stopwatch) Stop() time.Duration {
	if goroutineID() != s.owner {
		return 0
	}
	if s.stopped.CompareAndSwap(false, true) {
		s.elapsed = time.Since(s.started)
	}
	return s.elapsed
}

// Elapsed reports the stopped duration expressed as a count of unit
// (e.g. time.Millisecond). Elapsed is safe to call before Stop, in
// which case it reports the running elapsed time instead.
func (s *Stopwatch) Elapsed(unit time.Duration) float64 {
	d := s.elapsed
	if !s.stopped.Load() {
		d = time.Since(s.started)
	}
	return float64(d) / float64(unit)
}

// goroutineID extracts the calling goroutine's numeric id by parsing the
// header line of its own stack trace ("goroutine 123 [running]: ..."),
// the standard low-overhead trick for goroutine identity absent a
// runtime-exposed accessor. It is used purely as an ownership token, not
// for stack inspection, and is cheap enough to call on every Start/Stop.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return -1
	}
	b = b[len(prefix):]
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
