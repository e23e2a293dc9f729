//go:build windows

package execution

import (
	"os"
	"os/exec"
)

// Windows has no process groups in the POSIX sense; handle-based kill of
// the direct child is the best portable behavior here.
func setProcAttr(cmd *exec.Cmd) {}

func terminateTree(proc *os.Process) error {
	return proc.Kill()
}

func killTree(proc *os.Process) error {
	return proc.Kill()
}
