package procorch

import (
	"errors"
	"time"
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrEmptyCommand        = errors.New("participant command is empty")
)

// LaunchRequest asks a launcher for one participant process. ConfigPath is
// the only argument handed to the process.
type LaunchRequest struct {
	Scenario   string
	Index      int
	ConfigPath string
	OutputPath string
}

// Handle identifies a launched participant. Pid is 0 when the launcher has
// no way to know it, as with processes started in a new terminal window.
type Handle struct {
	Scenario   string
	Index      int
	ConfigPath string
	Pid        int
	Launcher   string
	StartedAt  time.Time
}

type IProcessLauncher interface {
	Name() string
	Launch(request LaunchRequest) (*Handle, error)
	Kill(handle *Handle) error
	KillByPattern(pattern string) (int, error)
}

// IPortKiller is implemented by launchers that can find processes by the TCP
// port they listen on.
type IPortKiller interface {
	KillByPorts(ports []int) (int, error)
}

// LauncherOptions configures the participant program. The config path is
// appended to Command.
type LauncherOptions struct {
	Command []string
	WorkDir string
}

// Args returns the full argument vector for one participant.
func (options LauncherOptions) Args(configPath string) ([]string, error) {
	if len(options.Command) == 0 || options.Command[0] == "" {
		return nil, ErrEmptyCommand
	}

	args := make([]string, 0, len(options.Command)+1)
	args = append(args, options.Command...)
	return append(args, configPath), nil
}
