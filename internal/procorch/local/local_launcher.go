package locallauncher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch"
	"github.com/hashicorp/go-hclog"
)

// LocalLauncher starts each participant as a detached background job in its
// own process group, with stdout and stderr sent to the request's output file.
type LocalLauncher struct {
	options procorch.LauncherOptions
	run     procorch.CommandRunner
	logger  hclog.Logger
}

func NewLocalLauncher(options procorch.LauncherOptions, logger hclog.Logger) *LocalLauncher {
	return &LocalLauncher{
		options: options,
		run:     procorch.ExecRunner,
		logger:  logger,
	}
}

// SetRunner replaces the program runner used to read the process table.
func (launcher *LocalLauncher) SetRunner(run procorch.CommandRunner) {
	launcher.run = run
}

func (launcher *LocalLauncher) Name() string {
	return common.LAUNCHER_LOCAL
}

func (launcher *LocalLauncher) Launch(request procorch.LaunchRequest) (*procorch.Handle, error) {
	args, err := launcher.options.Args(request.ConfigPath)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = launcher.options.WorkDir
	detach(cmd)

	var output *os.File
	if request.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(request.OutputPath), 0755); err != nil {
			return nil, err
		}
		output, err = os.OpenFile(request.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, err
		}
		cmd.Stdout = output
		cmd.Stderr = output
	}

	err = cmd.Start()
	if output != nil {
		// the child holds its own descriptor
		output.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("start participant %d: %w", request.Index, err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			launcher.logger.Debug(fmt.Sprintf("Participant %d exited: %s", request.Index, err.Error()))
		}
	}()

	return &procorch.Handle{
		Scenario:   request.Scenario,
		Index:      request.Index,
		ConfigPath: request.ConfigPath,
		Pid:        cmd.Process.Pid,
		Launcher:   common.LAUNCHER_LOCAL,
		StartedAt:  time.Now(),
	}, nil
}

// Kill terminates the whole process group of the participant. A group that
// has already exited counts as terminated.
func (launcher *LocalLauncher) Kill(handle *procorch.Handle) error {
	if handle.Pid <= 0 {
		return fmt.Errorf("participant %d has no pid", handle.Index)
	}

	err := killGroup(handle.Pid)
	if errors.Is(err, os.ErrProcessDone) || isNoSuchProcess(err) {
		return nil
	}
	return err
}

func (launcher *LocalLauncher) KillByPattern(pattern string) (int, error) {
	pids, err := procorch.ScanProcessTable(launcher.run, pattern)
	if err != nil {
		return 0, err
	}
	return killPids(pids)
}

// KillByPorts kills the processes listening on any of ports.
func (launcher *LocalLauncher) KillByPorts(ports []int) (int, error) {
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
			if !isNoSuchProcess(err) {
				errs = append(errs, fmt.Errorf("pid %d: %w", pid, err))
			}
			continue
		}
		killed++
	}

	return killed, errors.Join(errs...)
}
