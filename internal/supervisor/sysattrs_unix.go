//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the child in its own process group so the
// whole tree can be signaled together on stop.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// shellCommand wraps a script in the platform shell.
func shellCommand(script string) *exec.Cmd {
	// #nosec G204 -- commands come from the operator's config
	return exec.Command("/bin/sh", "-c", script)
}
