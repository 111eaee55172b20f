package enginectl

import (
	"log/slog"

	"github.com/giantswarm/enginectl/internal/core"
)

// SetLogger replaces the package-level logger used by enginectl. The
// provided logger should already carry any desired attributes; enginectl
// only adds per-call "action" and "action_id" attributes.
//
// If l is nil, the logger resets to slog.Default() with a "component"
// attribute, re-derived on the next use. Call SetLogger(nil) after
// slog.SetDefault() to pick up the change.
//
// SetLogger is safe to call concurrently with Start and Stop, but a call
// already in progress keeps the logger it started with. A Controller built
// with WithLogger ignores the package-level logger.
//
// Example:
//
//	enginectl.SetLogger(myLogger.With("component", "enginectl"))
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
