//go:build windows

package consolelauncher

import (
	"os/exec"
	"syscall"
)

func runCommandLine(commandLine string) ([]byte, error) {
	cmd := exec.Command("cmd")
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: commandLine}
	return cmd.CombinedOutput()
}
