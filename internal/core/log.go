package core

import (
	"log/slog"
	"sync/atomic"
)

// logger is the package-level logger. Named "logger" instead of "log" to
// avoid shadowing the stdlib package. Nil means "use the cached default".
var logger atomic.Pointer[slog.Logger]

// defaultLogger caches slog.Default() with the component attribute so it is
// not rebuilt on every call. SetLogger(nil) clears it, which lets callers pick
// up a later slog.SetDefault.
var defaultLogger atomic.Pointer[slog.Logger]

// Logger returns the logger set with SetLogger or, failing that, the cached
// default. Safe for concurrent use.
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := slog.Default().With("component", "enginectl")
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	if l2 := defaultLogger.Load(); l2 != nil {
		return l2
	}
	return l
}

// SetLogger replaces the package-level logger. Nil restores the default.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	defaultLogger.Store(nil)
}
