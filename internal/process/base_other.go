//go:build !linux

package process

import "os/exec"

// configureSysProcAttr is a no-op outside Linux.
func configureSysProcAttr(_ *exec.Cmd) {}
