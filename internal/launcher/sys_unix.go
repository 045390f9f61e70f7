//go:build !windows

package launcher

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group so terminal
// signals aimed at stagerun are not delivered to it twice.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate asks p to shut down with SIGTERM.
func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
