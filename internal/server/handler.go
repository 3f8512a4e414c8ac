package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/florch"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/observability"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
)

// SupervisorFactory creates the process supervisor of one run.
type SupervisorFactory func(cfg *config.Config) (florch.IProcessSupervisor, error)

type Handler struct {
	logger            hclog.Logger
	eventBus          *events.EventBus
	metrics           *observability.Collector
	baseConfig        *config.Config
	supervisorFactory SupervisorFactory
	options           []florch.Option

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	orchestrators map[string]*florch.DflOrchestrator
}

func NewHandler(logger hclog.Logger, eventBus *events.EventBus, metrics *observability.Collector, baseConfig *config.Config,
	options ...florch.Option) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	handler := &Handler{
		logger:        logger,
		eventBus:      eventBus,
		metrics:       metrics,
		baseConfig:    baseConfig,
		options:       options,
		ctx:           ctx,
		cancel:        cancel,
		orchestrators: map[string]*florch.DflOrchestrator{},
	}
	handler.supervisorFactory = func(cfg *config.Config) (florch.IProcessSupervisor, error) {
		return florch.NewSupervisor(cfg, eventBus, metrics, logger)
	}
	return handler
}

func (handler *Handler) SetSupervisorFactory(factory SupervisorFactory) {
	handler.supervisorFactory = factory
}

// Router wires the scenario endpoints and the metrics endpoint.
func (handler *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/scenario/start", handler.StartScenario).Methods(http.MethodPost)
	router.HandleFunc("/scenario/stop/{runId}", handler.StopScenario).Methods(http.MethodPost)
	router.HandleFunc("/scenario/run/{runId}", handler.GetScenario).Methods(http.MethodGet)
	router.HandleFunc("/scenario/configs", handler.RemoveConfigs).Methods(http.MethodDelete)
	router.HandleFunc("/scenario/{name}", handler.RemoveScenario).Methods(http.MethodDelete)
	router.Handle("/metrics", handler.metrics.Handler()).Methods(http.MethodGet)
	return router
}

func (handler *Handler) StartScenario(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	request := &StartScenarioRequest{}
	if err := fromJSON(request, r.Body); err != nil {
		handler.logger.Error("error decoding scenario request", "error", err)
		writeError(rw, http.StatusBadRequest, err)
		return
	}

	cfg := *handler.baseConfig
	request.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}

	supervisor, err := handler.supervisorFactory(&cfg)
	if err != nil {
		handler.logger.Error("error creating process supervisor", "error", err)
		writeError(rw, http.StatusBadRequest, err)
		return
	}

	runId := uuid.New().String()
	options := append([]florch.Option{florch.WithRunId(runId)}, handler.options...)
	orch := florch.NewDflOrchestrator(&cfg, supervisor, handler.eventBus, handler.metrics,
		handler.logger.Named("run").With("runId", runId), options...)

	handler.mu.Lock()
	handler.orchestrators[runId] = orch
	handler.mu.Unlock()

	handler.logger.Info(fmt.Sprintf("Starting scenario run %s with %s topology and %s federation", runId,
		cfg.Topology.Kind, cfg.Scenario.Federation))

	if err := orch.Start(handler.ctx); err != nil {
		handler.logger.Error("error starting scenario", "runId", runId, "error", err)
		writeError(rw, http.StatusInternalServerError, err)
		return
	}

	rw.WriteHeader(http.StatusOK)
	toJSON(&StartScenarioResponse{
		RunId:    runId,
		Scenario: orch.Scenario().Name,
		State:    string(orch.State()),
	}, rw)
}

func (handler *Handler) StopScenario(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runId := getURLParameter(r, "runId")

	handler.logger.Info(fmt.Sprintf("Stopping scenario with run ID: %s", runId))

	orch := handler.lookup(runId)
	if orch == nil {
		writeError(rw, http.StatusNotFound, errors.New("no run with the given ID"))
		return
	}

	killed := orch.Stop()
	rw.WriteHeader(http.StatusOK)
	toJSON(&StopScenarioResponse{RunId: runId, Killed: killed}, rw)
}

func (handler *Handler) GetScenario(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runId := getURLParameter(r, "runId")
	orch := handler.lookup(runId)
	if orch == nil {
		writeError(rw, http.StatusNotFound, errors.New("no run with the given ID"))
		return
	}

	status := &ScenarioStatus{RunId: runId, State: string(orch.State()), StartIndex: -1}
	if scenario := orch.Scenario(); scenario != nil {
		status.Scenario = scenario.Name
		status.Participants = len(scenario.Participants)
		status.StartIndex = scenario.StartIndex
	}

	rw.WriteHeader(http.StatusOK)
	toJSON(status, rw)
}

func (handler *Handler) RemoveScenario(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	name := getURLParameter(r, "name")
	if handler.isActive(name) {
		writeError(rw, http.StatusConflict, fmt.Errorf("scenario %s is still running", name))
		return
	}

	err := florch.RemoveScenarioFiles(handler.baseConfig.Paths.ConfigRoot, handler.baseConfig.Paths.LogRoot, name)
	if errors.Is(err, florch.ErrUnsafeScenarioName) {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		handler.logger.Error("error removing scenario files", "scenario", name, "error", err)
		writeError(rw, http.StatusInternalServerError, err)
		return
	}

	handler.logger.Info(fmt.Sprintf("Removed files of scenario %s", name))
	rw.WriteHeader(http.StatusNoContent)
}

func (handler *Handler) RemoveConfigs(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	removed, err := florch.RemoveConfigFiles(handler.baseConfig.Paths.ConfigRoot)
	if err != nil {
		handler.logger.Error("error removing configuration files", "error", err)
		writeError(rw, http.StatusInternalServerError, err)
		return
	}

	rw.WriteHeader(http.StatusOK)
	toJSON(&RemoveConfigsResponse{Removed: removed}, rw)
}

// StopAll interrupts pending starts and stops every run. It returns the
// number of processes killed.
func (handler *Handler) StopAll() int {
	handler.cancel()

	handler.mu.Lock()
	runIds := make([]string, 0, len(handler.orchestrators))
	for runId := range handler.orchestrators {
		runIds = append(runIds, runId)
	}
	handler.mu.Unlock()
	sort.Strings(runIds)

	killed := 0
	for _, runId := range runIds {
		killed += handler.lookup(runId).Stop()
	}

	handler.logger.Info(fmt.Sprintf("Stopped %d runs, %d processes killed", len(runIds), killed))
	return killed
}

func (handler *Handler) lookup(runId string) *florch.DflOrchestrator {
	handler.mu.Lock()
	defer handler.mu.Unlock()
	return handler.orchestrators[runId]
}

func (handler *Handler) isActive(name string) bool {
	handler.mu.Lock()
	defer handler.mu.Unlock()

	for _, orch := range handler.orchestrators {
		scenario := orch.Scenario()
		if scenario != nil && scenario.Name == name && orch.State() != florch.StateTerminated {
			return true
		}
	}
	return false
}

func writeError(rw http.ResponseWriter, status int, err error) {
	rw.WriteHeader(status)
	toJSON(&ErrorResponse{Error: err.Error()}, rw)
}

func getURLParameter(r *http.Request, parameter string) string {
	vars := mux.Vars(r)
	id := vars[parameter]
	return id
}
