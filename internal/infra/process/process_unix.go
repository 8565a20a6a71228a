//go:build unix

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setupProcessHandling puts the child in its own process group so that
// `go run` and the binary it spawns stop together.
func setupProcessHandling(cmd *exec.Cmd) Cleanup {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd.Process, syscall.SIGKILL)
	}
	return func() {
		_ = signalGroup(cmd.Process, syscall.SIGKILL)
	}
}

func interrupt(proc *os.Process) error {
	return signalGroup(proc, syscall.SIGTERM)
}

func signalGroup(proc *os.Process, sig syscall.Signal) error {
	if proc == nil {
		return nil
	}
	if err := syscall.Kill(-proc.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
