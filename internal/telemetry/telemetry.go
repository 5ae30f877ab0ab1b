// Package telemetry provides the structured logging call shape used
// across the engine and the sink subsystem.
//
// The teacher package (github.com/Andrej220/go-utils/wpool) logs through
// a thin context-scoped wrapper, lg "github.com/Andrej220/go-utils/zlog",
// e.g. lg.FromContext(ctx).Info(msg, lg.Any("job", payload)). That wrapper
// lives outside the retrieval pack, so this package reproduces the same
// call-site shape directly on top of go.uber.org/zap, the teacher's own
// logging backend.
package telemetry

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type ctxKey struct{}

var (
	defaultOnce   sync.Once
	defaultLogger *zap.Logger
)

func defaultLoggerInstance() *zap.Logger {
	defaultOnce.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		defaultLogger = l
	})
	return defaultLogger
}

// NewContext returns a context carrying logger as its scoped logger.
func NewContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger scoped to ctx, or the package default
// (a production zap.Logger) if none was attached.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return defaultLoggerInstance()
}

// SetDefault overrides the package default logger, e.g. to swap in a
// development or no-op logger for tests.
func SetDefault(logger *zap.Logger) {
	defaultOnce.Do(func() {})
	defaultLogger = logger
}

// Field constructor aliases, mirroring the teacher's lg.Any/lg.Int/...
// call sites so pool.go and dag.go read the same way wpool.go did.
var (
	Any      = zap.Any
	Int      = zap.Int
	Int32    = zap.Int32
	Int64    = zap.Int64
	Uint32   = zap.Uint32
	String   = zap.String
	Error    = zap.Error
	Bool     = zap.Bool
	Duration = zap.Duration
)
