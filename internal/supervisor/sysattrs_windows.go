//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr creates the child in a new process group so it can be
// terminated independently of the console.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// shellCommand wraps a script in the platform shell.
func shellCommand(script string) *exec.Cmd {
	// #nosec G204 -- commands come from the operator's config
	return exec.Command("cmd", "/C", script)
}
