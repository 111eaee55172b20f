// Package sentinel defines Error, a string-backed error type that can be
// declared as a const. enginectl uses it for every sentinel error so that
// callers cannot reassign them and errors.Is keeps working through %w chains.
package sentinel
