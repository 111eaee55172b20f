// Package command turns the raw start/stop script strings supplied by a
// storage engine into an argument vector, prefixing the privilege
// escalation tool when the agent does not run as the privileged account.
package command
