//go:build windows

package capture

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// configureCommand gives the capture its own console process group so it
// can receive CTRL_BREAK without the daemon receiving it too.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

func interruptProcess(p *os.Process) error {
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(p.Pid))
}

// terminateProcess has no softer equivalent than TerminateProcess on Windows.
func terminateProcess(p *os.Process) error {
	return p.Kill()
}

func exitCode(state *os.ProcessState) int {
	return state.ExitCode()
}
