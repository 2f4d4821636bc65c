//go:build windows

package executor

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}

// Windows has no SIGTERM; both stages kill.
func signalTerminate(cmd *exec.Cmd) error {
	return forceKill(cmd)
}

func forceKill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
