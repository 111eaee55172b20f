// Package cli implements the enginectl command: one-shot start and stop of
// the storage engine from a YAML configuration, plus a view of the action
// journal.
package cli
