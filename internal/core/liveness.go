package core

import "sync/atomic"

// Liveness is the process-wide "storage engine is alive" flag. The
// controller is its only writer; any number of goroutines may read it.
// The zero value reports not alive.
type Liveness struct {
	alive atomic.Bool
}

// SetAlive records whether the storage engine is believed to be running.
func (l *Liveness) SetAlive(alive bool) {
	l.alive.Store(alive)
}

// Alive reports the value of the most recent SetAlive.
func (l *Liveness) Alive() bool {
	return l.alive.Load()
}
