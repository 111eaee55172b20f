// Package core implements the storage engine lifecycle controller behind the
// public enginectl API: command construction, privileged execution, the
// bounded termination wait, output capture and liveness propagation.
package core
