//go:build windows

package supervisor

import (
	"os/exec"
)

// signalStop terminates the child. Windows has no SIGTERM; graceful and
// forced termination collapse into TerminateProcess.
func (h *childHandle) signalStop() {
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

// kill force-terminates the child.
func (h *childHandle) kill() {
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

// exitSignal never matches on Windows; processes always report exit codes.
func exitSignal(_ *exec.ExitError) (string, bool) {
	return "", false
}
