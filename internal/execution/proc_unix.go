//go:build !windows

package execution

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcAttr puts the child in its own process group so termination can
// reach the whole tree, not just the direct child.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateTree(proc *os.Process) error {
	return syscall.Kill(-proc.Pid, syscall.SIGTERM)
}

func killTree(proc *os.Process) error {
	return syscall.Kill(-proc.Pid, syscall.SIGKILL)
}
