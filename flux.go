// Package flux is a thin real-time rendering engine layered over Vulkan.
// It manages GPU frame pacing, a declarative graph of render passes and
// image attachments, and the lifecycle of GPU-resident resources.
//
// The root package holds cross-cutting concerns shared by every engine
// sub-package; the engine itself lives under engine/ and its
// sub-packages (device, resource, rendergraph, frame, shader, pipeline,
// window, loader).
package flux

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that discards all records. Enabled
// returns false so callers skip message formatting entirely when
// logging is disabled.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := slog.New(nopHandler{})
	loggerPtr.Store(l)
}

// SetLogger configures the logger used by flux and all of its
// sub-packages. By default flux produces no log output. Pass nil to
// restore the default silent behavior.
//
// Levels used by the engine:
//   - [slog.LevelDebug]: per-object lifecycle (image allocations, layout transitions)
//   - [slog.LevelInfo]: device selection, swapchain (re)creation, graph builds
//   - [slog.LevelWarn]: suboptimal surface results, teardown anomalies
//
// SetLogger is safe for concurrent use.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger. Engine sub-packages call this to
// share one logger configuration without import cycles.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
