//go:build windows

package process

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

// Windows has no terminate signal; both steps kill.
func terminate(cmd *exec.Cmd) error {
	return kill(cmd)
}

func kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
