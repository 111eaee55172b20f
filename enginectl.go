package enginectl

import (
	"context"

	"github.com/giantswarm/enginectl/internal/core"
)

// Compile-time interface satisfaction checks.
var (
	_ Controller    = (*controllerWrapper)(nil)
	_ LivenessState = (*Liveness)(nil)
)

// controllerWrapper wraps core.Controller to implement the Controller
// interface. The core.Controller is stored as a named field rather than
// embedded so callers cannot reach internal methods by type assertion.
type controllerWrapper struct {
	ctrl *core.Controller
}

// Start wraps core.Controller.Start.
func (w *controllerWrapper) Start(ctx context.Context) error {
	return w.ctrl.Start(ctx)
}

// Stop wraps core.Controller.Stop.
func (w *controllerWrapper) Stop(ctx context.Context) error {
	return w.ctrl.Stop(ctx)
}

// History reads the journal configured with WithJournal.
func (w *controllerWrapper) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	j := w.ctrl.Journal()
	if j == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return j.Recent(ctx, limit)
}

// Close wraps core.Controller.Close.
func (w *controllerWrapper) Close() error {
	return w.ctrl.Close()
}

// NewController returns a Controller that reads its commands from source
// and reports liveness to state. It performs no I/O; the journal and lock
// file are opened on first use.
//
// Panics if source or state is nil, or if any option receives an invalid
// value. See individual With* functions for constraints.
//
//nolint:ireturn // Returns Controller interface by design for testability (mockable).
func NewController(source CommandSource, state LivenessState, opts ...Option) Controller {
	cfg := defaultControllerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &controllerWrapper{ctrl: core.NewController(source, state, cfg.toCoreConfig())}
}
