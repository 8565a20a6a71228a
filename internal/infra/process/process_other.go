//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func setupProcessHandling(cmd *exec.Cmd) Cleanup {
	return func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

func interrupt(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return proc.Kill()
}
