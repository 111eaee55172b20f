// Package metrics exposes Prometheus collectors for lifecycle actions and
// the believed liveness of the storage engine.
package metrics
