package renderer

import (
	"context"
	"sync/atomic"

	"golang.org/x/exp/slog"
)

// nopHandler is a slog.Handler that silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger sets the logger used by the renderer. By default nothing is logged.
// Pass nil to go back to the silent default.
//
// Levels used:
//   - debug: object creation and destruction, per-frame decisions
//   - info: device selection, swapchain rebuilds
//   - warn: rollbacks and failures during teardown
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the logger used by the renderer.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
