// Package lockfile serializes lifecycle actions across agent processes on
// one host with an exclusive flock(2) lock on a well-known file.
package lockfile
