//go:build unix

package locallauncher

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killGroup(pid int) error {
	return unix.Kill(-pid, unix.SIGKILL)
}

func killPid(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, unix.ESRCH)
}
