package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/florch"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/observability"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch"
	dummylauncher "github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch/dummy"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler  *Handler
	server   *httptest.Server
	cfg      *config.Config
	launcher *dummylauncher.DummyLauncher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ConfigRoot = filepath.Join(root, "config")
	cfg.Paths.LogRoot = filepath.Join(root, "logs")
	cfg.Launcher.Kind = common.LAUNCHER_DUMMY
	cfg.Topology.Seed = 3

	collector, err := observability.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	logger := hclog.NewNullLogger()
	eventBus := events.NewEventBus()
	noWait := func(ctx context.Context, d time.Duration) error { return nil }

	ts := &testServer{cfg: cfg}
	ts.handler = NewHandler(logger, eventBus, collector, cfg, florch.WithWait(noWait), florch.WithRenderer(nil))
	ts.handler.SetSupervisorFactory(func(cfg *config.Config) (florch.IProcessSupervisor, error) {
		ts.launcher = dummylauncher.NewDummyLauncher()
		return procorch.NewProcessSupervisor(ts.launcher, eventBus, collector, logger), nil
	})
	ts.server = httptest.NewServer(ts.handler.Router())
	t.Cleanup(ts.server.Close)

	return ts
}

func (ts *testServer) do(t *testing.T, method string, path string, body string) (*http.Response, string) {
	t.Helper()

	request, err := http.NewRequest(method, ts.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)

	response, err := ts.server.Client().Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	content, err := io.ReadAll(response.Body)
	require.NoError(t, err)

	return response, string(content)
}

func (ts *testServer) start(t *testing.T, body string) StartScenarioResponse {
	t.Helper()

	response, content := ts.do(t, http.MethodPost, "/scenario/start", body)
	require.Equal(t, http.StatusOK, response.StatusCode, content)

	started := StartScenarioResponse{}
	require.NoError(t, fromJSON(&started, strings.NewReader(content)))
	return started
}

func TestStartAndStopScenario(t *testing.T) {
	ts := newTestServer(t)

	started := ts.start(t, `{"name": "api_run", "topology": "ring", "participants": 4, "startIndex": 1}`)
	_, err := uuid.Parse(started.RunId)
	require.NoError(t, err)
	assert.Equal(t, "api_run", started.Scenario)
	assert.Equal(t, string(florch.StateRunning), started.State)
	assert.Equal(t, []int{0, 2, 3, 1}, ts.launcher.LaunchOrder())

	response, content := ts.do(t, http.MethodGet, "/scenario/run/"+started.RunId, "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	status := ScenarioStatus{}
	require.NoError(t, fromJSON(&status, strings.NewReader(content)))
	assert.Equal(t, 4, status.Participants)
	assert.Equal(t, 1, status.StartIndex)

	response, content = ts.do(t, http.MethodPost, "/scenario/stop/"+started.RunId, "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	stopped := StopScenarioResponse{}
	require.NoError(t, fromJSON(&stopped, strings.NewReader(content)))
	assert.Equal(t, 4, stopped.Killed)
	assert.Zero(t, ts.launcher.Live())
}

func TestRunIdTagsScenarioEvents(t *testing.T) {
	ts := newTestServer(t)
	states := make(chan events.Event, 16)
	ts.handler.eventBus.Subscribe(common.SCENARIO_STATE_CHANGED_EVENT_TYPE, states)

	started := ts.start(t, `{"name": "tagged_run"}`)
	assert.Equal(t, started.RunId, ts.handler.lookup(started.RunId).RunId())

	require.NotEmpty(t, states)
	for len(states) > 0 {
		changed := (<-states).Data.(events.ScenarioStateChangedEvent)
		assert.Equal(t, started.RunId, changed.RunId)
	}
}

func TestStopSweepsPortsOnRequest(t *testing.T) {
	ts := newTestServer(t)
	started := ts.start(t, `{"name": "swept", "participants": 2, "startIndex": 0, "killPorts": true}`)

	response, _ := ts.do(t, http.MethodPost, "/scenario/stop/"+started.RunId, "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, [][]int{{45000, 45001}}, ts.launcher.PortSweeps())
	assert.False(t, ts.cfg.Start.KillPorts, "base configuration is left alone")
}

func TestStopUnknownRun(t *testing.T) {
	ts := newTestServer(t)

	response, content := ts.do(t, http.MethodPost, "/scenario/stop/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	assert.Contains(t, content, "no run with the given ID")

	response, _ = ts.do(t, http.MethodGet, "/scenario/run/unknown", "")
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}

func TestStartRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t)

	response, _ := ts.do(t, http.MethodPost, "/scenario/start", `{"participants": `)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, content := ts.do(t, http.MethodPost, "/scenario/start", `{"federation": "HFL"}`)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Contains(t, content, "Federation")

	response, content = ts.do(t, http.MethodPost, "/scenario/start", `{"name": "star_run", "topology": "star"}`)
	assert.Equal(t, http.StatusInternalServerError, response.StatusCode)
	assert.Contains(t, content, "topology not valid for federation")
	assert.Empty(t, ts.launcher.LaunchOrder())
}

func TestRemoveScenario(t *testing.T) {
	ts := newTestServer(t)
	started := ts.start(t, `{"name": "api_run"}`)

	response, _ := ts.do(t, http.MethodDelete, "/scenario/api_run", "")
	assert.Equal(t, http.StatusConflict, response.StatusCode)
	assert.DirExists(t, filepath.Join(ts.cfg.Paths.ConfigRoot, "api_run"))

	response, _ = ts.do(t, http.MethodPost, "/scenario/stop/"+started.RunId, "")
	require.Equal(t, http.StatusOK, response.StatusCode)

	response, _ = ts.do(t, http.MethodDelete, "/scenario/api_run", "")
	assert.Equal(t, http.StatusNoContent, response.StatusCode)
	assert.NoDirExists(t, filepath.Join(ts.cfg.Paths.ConfigRoot, "api_run"))
	assert.NoDirExists(t, filepath.Join(ts.cfg.Paths.LogRoot, "api_run"))
}

func TestRemoveConfigs(t *testing.T) {
	ts := newTestServer(t)
	ts.start(t, `{"name": "api_run", "simulation": false}`)

	response, content := ts.do(t, http.MethodDelete, "/scenario/configs", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	removed := RemoveConfigsResponse{}
	require.NoError(t, fromJSON(&removed, strings.NewReader(content)))
	assert.Zero(t, removed.Removed)
	assert.DirExists(t, filepath.Join(ts.cfg.Paths.ConfigRoot, "api_run"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.start(t, `{}`)

	response, content := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Contains(t, content, "dfl_participants_spawned_total 3")
	assert.Contains(t, content, `dfl_scenario_state{state="Running"} 1`)
}

func TestStopAll(t *testing.T) {
	ts := newTestServer(t)
	first := ts.start(t, `{"name": "first"}`)
	firstLauncher := ts.launcher
	ts.start(t, `{"name": "second", "participants": 2, "startIndex": 0}`)

	assert.Equal(t, 5, ts.handler.StopAll())
	assert.Zero(t, firstLauncher.Live())
	assert.Zero(t, ts.launcher.Live())

	assert.Equal(t, florch.StateTerminated, ts.handler.lookup(first.RunId).State())
}
