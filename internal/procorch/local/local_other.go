//go:build !unix

package locallauncher

import (
	"os"
	"os/exec"
)

func detach(cmd *exec.Cmd) {}

func killGroup(pid int) error {
	return killPid(pid)
}

func killPid(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Kill()
}

func isNoSuchProcess(err error) bool {
	return false
}
