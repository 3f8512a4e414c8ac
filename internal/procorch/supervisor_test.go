package procorch_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/observability"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch"
	dummylauncher "github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch/dummy"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSupervisor(t *testing.T) (*procorch.ProcessSupervisor, *dummylauncher.DummyLauncher, *events.EventBus, *observability.Collector) {
	t.Helper()

	collector, err := observability.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	launcher := dummylauncher.NewDummyLauncher()
	eventBus := events.NewEventBus()
	supervisor := procorch.NewProcessSupervisor(launcher, eventBus, collector, hclog.NewNullLogger())

	return supervisor, launcher, eventBus, collector
}

func TestSpawnRegistersHandles(t *testing.T) {
	supervisor, launcher, eventBus, collector := newSupervisor(t)
	supervisor.SetOutputDir("logs")

	spawned := make(chan events.Event, 4)
	eventBus.Subscribe(common.PARTICIPANT_SPAWNED_EVENT_TYPE, spawned)

	for _, index := range []int{2, 0, 1} {
		handle, err := supervisor.Spawn(index, filepath.Join("configs", common.ParticipantFileName(index)))
		require.NoError(t, err)
		assert.Equal(t, index, handle.Index)
		assert.Equal(t, "dummy", handle.Launcher)
	}

	assert.Equal(t, []int{2, 0, 1}, launcher.LaunchOrder())
	assert.Len(t, supervisor.Handles(), 3)
	assert.Equal(t, filepath.Join("logs", "participant_2.out"), launcher.Requests()[0].OutputPath)
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.ParticipantsSpawned))

	event := <-spawned
	assert.Equal(t, events.ParticipantSpawnedEvent{Index: 2, Pid: 1000, ConfigPath: filepath.Join("configs", "participant_2.json")}, event.Data)
	assert.False(t, event.Timestamp.IsZero())
}

func TestSpawnFailureIsReported(t *testing.T) {
	supervisor, launcher, _, collector := newSupervisor(t)
	launcher.FailOn(1, errors.New("exec format error"))

	_, err := supervisor.Spawn(1, "participant_1.json")
	assert.Error(t, err)

	_, err = supervisor.Spawn(2, "participant_2.json")
	require.NoError(t, err)

	assert.Len(t, supervisor.Handles(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.SpawnFailures))
}

func TestTerminateAllTargetsEverySpawnedProcess(t *testing.T) {
	supervisor, launcher, _, collector := newSupervisor(t)

	for index := 0; index < 3; index++ {
		_, err := supervisor.Spawn(index, common.ParticipantFileName(index))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, supervisor.TerminateAll())
	assert.ElementsMatch(t, []int{0, 1, 2}, launcher.Killed())
	assert.Equal(t, 0, launcher.Live())
	assert.Empty(t, supervisor.Handles())
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.ParticipantsTerminated))

	assert.Equal(t, 0, supervisor.TerminateAll())
}

func TestTerminateAllSkipsFailures(t *testing.T) {
	supervisor, launcher, _, _ := newSupervisor(t)

	first, err := supervisor.Spawn(0, "participant_0.json")
	require.NoError(t, err)
	_, err = supervisor.Spawn(1, "participant_1.json")
	require.NoError(t, err)

	// the process vanished behind the supervisor's back
	require.NoError(t, launcher.Kill(first))

	assert.Equal(t, 1, supervisor.TerminateAll())
}

func TestTerminateByNamePattern(t *testing.T) {
	supervisor, launcher, _, _ := newSupervisor(t)

	_, err := supervisor.Spawn(0, "/tmp/a/participant_0.json")
	require.NoError(t, err)
	_, err = supervisor.Spawn(1, "/tmp/b/participant_1.json")
	require.NoError(t, err)

	assert.Equal(t, 0, supervisor.TerminateByNamePattern(""))
	assert.Equal(t, 1, supervisor.TerminateByNamePattern("/tmp/a/"))
	assert.Equal(t, []int{0}, launcher.Killed())
}

// launcherWithoutPorts hides the port sweep of the launcher it wraps.
type launcherWithoutPorts struct {
	procorch.IProcessLauncher
}

func TestTerminateByPorts(t *testing.T) {
	supervisor, launcher, _, _ := newSupervisor(t)

	assert.Equal(t, 0, supervisor.TerminateByPorts(nil))
	assert.Equal(t, 0, supervisor.TerminateByPorts([]int{45000, 45001}))
	assert.Equal(t, [][]int{{45000, 45001}}, launcher.PortSweeps())

	wrapped := dummylauncher.NewDummyLauncher()
	portless := procorch.NewProcessSupervisor(launcherWithoutPorts{wrapped}, nil, nil, hclog.NewNullLogger())
	assert.Equal(t, 0, portless.TerminateByPorts([]int{45000}))
	assert.Empty(t, wrapped.PortSweeps())
}

func TestSpawnCarriesScenario(t *testing.T) {
	supervisor, launcher, _, _ := newSupervisor(t)
	supervisor.SetScenario("demo")

	handle, err := supervisor.Spawn(0, "participant_0.json")
	require.NoError(t, err)
	assert.Equal(t, "demo", handle.Scenario)
	assert.Equal(t, "demo", launcher.Requests()[0].Scenario)
}

func TestLauncherOptionsArgs(t *testing.T) {
	args, err := procorch.LauncherOptions{Command: []string{"python3", "node.py"}}.Args("participant_0.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"python3", "node.py", "participant_0.json"}, args)

	_, err = procorch.LauncherOptions{}.Args("participant_0.json")
	assert.ErrorIs(t, err, procorch.ErrEmptyCommand)
}
