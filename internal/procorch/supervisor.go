package procorch

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/observability"
	"github.com/hashicorp/go-hclog"
)

// ProcessSupervisor launches participants through a launcher and keeps every
// handle it got back, so teardown targets exactly the processes it started.
type ProcessSupervisor struct {
	launcher  IProcessLauncher
	eventBus  *events.EventBus
	metrics   *observability.Collector
	logger    hclog.Logger
	outputDir string
	scenario  string

	mu      sync.Mutex
	handles []*Handle
}

func NewProcessSupervisor(launcher IProcessLauncher, eventBus *events.EventBus, metrics *observability.Collector,
	logger hclog.Logger) *ProcessSupervisor {
	return &ProcessSupervisor{
		launcher: launcher,
		eventBus: eventBus,
		metrics:  metrics,
		logger:   logger,
		handles:  []*Handle{},
	}
}

// SetOutputDir sets where participant_<index>.out files are written.
func (supervisor *ProcessSupervisor) SetOutputDir(dir string) {
	supervisor.mu.Lock()
	defer supervisor.mu.Unlock()
	supervisor.outputDir = dir
}

// SetScenario names the scenario that later launches belong to.
func (supervisor *ProcessSupervisor) SetScenario(name string) {
	supervisor.mu.Lock()
	defer supervisor.mu.Unlock()
	supervisor.scenario = name
}

func (supervisor *ProcessSupervisor) LauncherName() string {
	return supervisor.launcher.Name()
}

// Spawn asks the launcher for one participant process and returns as soon as
// the launch was accepted.
func (supervisor *ProcessSupervisor) Spawn(index int, configPath string) (*Handle, error) {
	supervisor.mu.Lock()
	outputDir := supervisor.outputDir
	scenario := supervisor.scenario
	supervisor.mu.Unlock()

	request := LaunchRequest{
		Scenario:   scenario,
		Index:      index,
		ConfigPath: configPath,
	}
	if outputDir != "" {
		request.OutputPath = filepath.Join(outputDir, common.ParticipantOutputName(index))
	}

	handle, err := supervisor.launcher.Launch(request)
	supervisor.metrics.RecordSpawn(err)
	if err != nil {
		supervisor.logger.Error(fmt.Sprintf("Unable to launch participant %d with %s: %s", index, configPath, err.Error()))
		return nil, err
	}

	supervisor.mu.Lock()
	supervisor.handles = append(supervisor.handles, handle)
	supervisor.mu.Unlock()

	supervisor.logger.Info(fmt.Sprintf("Launched participant %d (pid %d) via %s", index, handle.Pid, handle.Launcher))

	if supervisor.eventBus != nil {
		supervisor.eventBus.Publish(events.Event{
			Type: common.PARTICIPANT_SPAWNED_EVENT_TYPE,
			Data: events.ParticipantSpawnedEvent{
				Index:      index,
				Pid:        handle.Pid,
				ConfigPath: configPath,
			},
		})
	}

	return handle, nil
}

// TerminateAll kills every registered process and forgets them. Failures are
// logged and skipped; the count of successful kills is returned.
func (supervisor *ProcessSupervisor) TerminateAll() int {
	supervisor.mu.Lock()
	handles := supervisor.handles
	supervisor.handles = []*Handle{}
	supervisor.mu.Unlock()

	killed := 0
	for _, handle := range handles {
		if err := supervisor.launcher.Kill(handle); err != nil {
			supervisor.logger.Warn(fmt.Sprintf("Unable to terminate participant %d (pid %d): %s",
				handle.Index, handle.Pid, err.Error()))
			continue
		}
		killed++
	}

	supervisor.metrics.RecordTerminated(killed)
	supervisor.logger.Info(fmt.Sprintf("Terminated %d of %d participants", killed, len(handles)))

	return killed
}

// TerminateByNamePattern kills every process whose command line contains
// pattern, whether this supervisor started it or not. The match is
// approximate and racy.
func (supervisor *ProcessSupervisor) TerminateByNamePattern(pattern string) int {
	if pattern == "" {
		return 0
	}

	killed, err := supervisor.launcher.KillByPattern(pattern)
	if err != nil {
		supervisor.logger.Warn(fmt.Sprintf("Kill by pattern %q incomplete: %s", pattern, err.Error()))
	}

	supervisor.metrics.RecordTerminated(killed)
	supervisor.logger.Info(fmt.Sprintf("Killed %d processes matching %q", killed, pattern))

	return killed
}

// TerminateByPorts kills every process listening on one of ports, whether
// this supervisor started it or not. Launchers without a port table are
// skipped.
func (supervisor *ProcessSupervisor) TerminateByPorts(ports []int) int {
	if len(ports) == 0 {
		return 0
	}

	portKiller, ok := supervisor.launcher.(IPortKiller)
	if !ok {
		supervisor.logger.Warn(fmt.Sprintf("Launcher %s cannot kill by port, skipping sweep of %d ports",
			supervisor.launcher.Name(), len(ports)))
		return 0
	}

	killed, err := portKiller.KillByPorts(ports)
	if err != nil {
		supervisor.logger.Warn(fmt.Sprintf("Kill by ports %v incomplete: %s", ports, err.Error()))
	}

	supervisor.metrics.RecordTerminated(killed)
	supervisor.logger.Info(fmt.Sprintf("Killed %d processes listening on %v", killed, ports))

	return killed
}

func (supervisor *ProcessSupervisor) Handles() []*Handle {
	supervisor.mu.Lock()
	defer supervisor.mu.Unlock()

	handles := make([]*Handle, len(supervisor.handles))
	copy(handles, supervisor.handles)
	return handles
}
