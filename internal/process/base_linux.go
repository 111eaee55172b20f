//go:build linux

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr puts the child in its own process group so that
// terminal signals delivered to the agent's group (e.g. Ctrl-C while running
// the CLI) do not also reach the storage engine it just started.
// Pdeathsig is deliberately not set: a started engine must outlive the agent.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
