package command

import (
	"fmt"
	"os/user"
)

// Escalation returns the tokens to prepend to a command. It is called with
// the result of a PrivilegeCheck and must return nil when privileged is true
// and no escalation is wanted.
type Escalation func(privileged bool) []string

// PrivilegeCheck reports whether the agent already runs as the privileged
// account.
type PrivilegeCheck func() (bool, error)

// Sudo returns an Escalation that prefixes unprivileged commands with
// "<tool> -n -E". -n makes the tool fail instead of prompting for a password
// (there is no terminal to prompt on) and -E keeps the caller's environment
// in the elevated process.
//
// Panics if tool is empty.
func Sudo(tool string) Escalation {
	if tool == "" {
		panic("enginectl: escalation tool must not be empty")
	}
	return func(privileged bool) []string {
		if privileged {
			return nil
		}
		return []string{tool, "-n", "-E"}
	}
}

// RunsAs returns a PrivilegeCheck comparing the current user's login name
// with account.
func RunsAs(account string) PrivilegeCheck {
	return func() (bool, error) {
		u, err := user.Current()
		if err != nil {
			return false, fmt.Errorf("look up current user: %w", err)
		}
		return u.Username == account, nil
	}
}

// Always returns a PrivilegeCheck with a fixed answer.
func Always(privileged bool) PrivilegeCheck {
	return func() (bool, error) {
		return privileged, nil
	}
}
