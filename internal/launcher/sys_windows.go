//go:build windows

package launcher

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// terminate kills p. Windows has no SIGTERM to deliver.
func terminate(p *os.Process) error {
	return p.Kill()
}
