package dummylauncher

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch"
)

const firstPid = 1000

// DummyLauncher pretends to start processes. It records every request, which
// makes it the launcher of dry runs and tests.
type DummyLauncher struct {
	mu       sync.Mutex
	nextPid  int
	launched []procorch.LaunchRequest
	live     map[int]*procorch.Handle
	killed   []int
	failures map[int]error
	sweeps   [][]int
}

func NewDummyLauncher() *DummyLauncher {
	return &DummyLauncher{
		nextPid:  firstPid,
		launched: []procorch.LaunchRequest{},
		live:     make(map[int]*procorch.Handle),
		killed:   []int{},
		failures: make(map[int]error),
	}
}

func (launcher *DummyLauncher) Name() string {
	return common.LAUNCHER_DUMMY
}

// FailOn makes the launch of index fail with err.
func (launcher *DummyLauncher) FailOn(index int, err error) {
	launcher.mu.Lock()
	defer launcher.mu.Unlock()
	launcher.failures[index] = err
}

func (launcher *DummyLauncher) Launch(request procorch.LaunchRequest) (*procorch.Handle, error) {
	launcher.mu.Lock()
	defer launcher.mu.Unlock()

	if err, found := launcher.failures[request.Index]; found {
		return nil, err
	}

	handle := &procorch.Handle{
		Scenario:   request.Scenario,
		Index:      request.Index,
		ConfigPath: request.ConfigPath,
		Pid:        launcher.nextPid,
		Launcher:   common.LAUNCHER_DUMMY,
		StartedAt:  time.Now(),
	}
	launcher.nextPid++
	launcher.launched = append(launcher.launched, request)
	launcher.live[handle.Pid] = handle

	return handle, nil
}

func (launcher *DummyLauncher) Kill(handle *procorch.Handle) error {
	launcher.mu.Lock()
	defer launcher.mu.Unlock()

	if _, found := launcher.live[handle.Pid]; !found {
		return fmt.Errorf("no live process with pid %d", handle.Pid)
	}
	delete(launcher.live, handle.Pid)
	launcher.killed = append(launcher.killed, handle.Index)

	return nil
}

func (launcher *DummyLauncher) KillByPattern(pattern string) (int, error) {
	launcher.mu.Lock()
	defer launcher.mu.Unlock()

	killed := 0
	for pid, handle := range launcher.live {
		if strings.Contains(handle.ConfigPath, pattern) {
			delete(launcher.live, pid)
			launcher.killed = append(launcher.killed, handle.Index)
			killed++
		}
	}

	return killed, nil
}

// KillByPorts only records the sweep, dummy processes listen nowhere.
func (launcher *DummyLauncher) KillByPorts(ports []int) (int, error) {
	launcher.mu.Lock()
	defer launcher.mu.Unlock()

	sweep := make([]int, len(ports))
	copy(sweep, ports)
	launcher.sweeps = append(launcher.sweeps, sweep)

	return 0, nil
}

func (launcher *DummyLauncher) PortSweeps() [][]int {
	launcher.mu.Lock()
	defer launcher.mu.Unlock()

	sweeps := make([][]int, len(launcher.sweeps))
	copy(sweeps, launcher.sweeps)
	return sweeps
}

// LaunchOrder returns the participant indices in the order they were launched.
func (launcher *DummyLauncher) LaunchOrder() []int {
	launcher.mu.Lock()
	defer launcher.mu.Unlock()

	order := make([]int, 0, len(launcher.launched))
	for _, request := range launcher.launched {
		order = append(order, request.Index)
	}
	return order
}

func (launcher *DummyLauncher) Requests() []procorch.LaunchRequest {
	launcher.mu.Lock()
	defer launcher.mu.Unlock()

	requests := make([]procorch.LaunchRequest, len(launcher.launched))
	copy(requests, launcher.launched)
	return requests
}

func (launcher *DummyLauncher) Killed() []int {
	launcher.mu.Lock()
	defer launcher.mu.Unlock()

	killed := make([]int, len(launcher.killed))
	copy(killed, launcher.killed)
	return killed
}

func (launcher *DummyLauncher) Live() int {
	launcher.mu.Lock()
	defer launcher.mu.Unlock()
	return len(launcher.live)
}
