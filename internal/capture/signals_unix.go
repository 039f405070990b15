//go:build !windows

package capture

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureCommand places the capture in its own process group so a
// terminal interrupt reaches the daemon only; the daemon then runs the
// staged shutdown.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func interruptProcess(p *os.Process) error {
	return unix.Kill(p.Pid, unix.SIGINT)
}

func terminateProcess(p *os.Process) error {
	return unix.Kill(p.Pid, unix.SIGTERM)
}

func exitCode(state *os.ProcessState) int {
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return state.ExitCode()
}
