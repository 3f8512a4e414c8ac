package terminallauncher

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch"
	"github.com/hashicorp/go-hclog"
)

// TerminalLauncher opens a new Terminal.app window per participant. The
// window's shell owns the process, so handles carry no pid and are matched
// by their config path when killed.
type TerminalLauncher struct {
	options procorch.LauncherOptions
	run     procorch.CommandRunner
	logger  hclog.Logger
}

func NewTerminalLauncher(options procorch.LauncherOptions, logger hclog.Logger) *TerminalLauncher {
	return &TerminalLauncher{
		options: options,
		run:     procorch.ExecRunner,
		logger:  logger,
	}
}

// SetRunner replaces the program runner, used to launch osascript and ps.
func (launcher *TerminalLauncher) SetRunner(run procorch.CommandRunner) {
	launcher.run = run
}

func (launcher *TerminalLauncher) Name() string {
	return common.LAUNCHER_TERMINAL
}

func (launcher *TerminalLauncher) Launch(request procorch.LaunchRequest) (*procorch.Handle, error) {
	args, err := launcher.options.Args(request.ConfigPath)
	if err != nil {
		return nil, err
	}

	script := launcher.shellLine(args, request.OutputPath)
	appleScript := fmt.Sprintf(`tell application "Terminal" to do script %s`, appleScriptQuote(script))

	if output, err := launcher.run("osascript", "-e", appleScript); err != nil {
		return nil, fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(output)))
	}

	return &procorch.Handle{
		Scenario:   request.Scenario,
		Index:      request.Index,
		ConfigPath: request.ConfigPath,
		Launcher:   common.LAUNCHER_TERMINAL,
		StartedAt:  time.Now(),
	}, nil
}

func (launcher *TerminalLauncher) shellLine(args []string, outputPath string) string {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		quoted = append(quoted, shellQuote(arg))
	}

	line := strings.Join(quoted, " ")
	if launcher.options.WorkDir != "" {
		line = "cd " + shellQuote(launcher.options.WorkDir) + " && " + line
	}
	if outputPath != "" {
		line = line + " 2>&1 | tee " + shellQuote(outputPath)
	}
	return line
}

func (launcher *TerminalLauncher) Kill(handle *procorch.Handle) error {
	if handle.Pid > 0 {
		return killPid(handle.Pid)
	}

	killed, err := launcher.KillByPattern(handle.ConfigPath)
	if err != nil {
		return err
	}
	if killed == 0 {
		launcher.logger.Debug(fmt.Sprintf("No process left for participant %d", handle.Index))
	}
	return nil
}

func (launcher *TerminalLauncher) KillByPattern(pattern string) (int, error) {
	pids, err := procorch.ScanProcessTable(launcher.run, pattern)
	if err != nil {
		return 0, err
	}
	return killPids(pids)
}

// KillByPorts kills the processes listening on any of ports. Participants
// started in a terminal window have no known pid, so this finds the ones
// that outlived their window.
func (launcher *TerminalLauncher) KillByPorts(ports []int) (int, error) {
	pids, err := procorch.ScanPortTable(launcher.run, ports)
	if err != nil {
		return 0, err
	}
	return killPids(pids)
}

func killPids(pids []int) (int, error) {
	killed := 0
	var errs []error
	for _, pid := range pids {
		if err := killPid(pid); err != nil {
			errs = append(errs, fmt.Errorf("pid %d: %w", pid, err))
			continue
		}
		killed++
	}

	return killed, errors.Join(errs...)
}

func killPid(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	err = process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
