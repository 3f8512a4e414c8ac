package florch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/assembler"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/observability"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/registry"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/render"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/topology"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrInvalidState = errors.New("invalid orchestrator state")

type IProcessSupervisor interface {
	SetOutputDir(dir string)
	SetScenario(name string)
	Spawn(index int, configPath string) (*procorch.Handle, error)
	TerminateAll() int
	TerminateByNamePattern(pattern string) int
	TerminateByPorts(ports []int) int
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

type Option func(orch *DflOrchestrator)

func WithRenderer(renderer render.IGraphRenderer) Option {
	return func(orch *DflOrchestrator) { orch.renderer = renderer }
}

func WithClock(now func() time.Time) Option {
	return func(orch *DflOrchestrator) { orch.now = now }
}

func WithWait(wait WaitFunc) Option {
	return func(orch *DflOrchestrator) { orch.wait = wait }
}

func WithReadinessProbe(probe procorch.ProbeFunc) Option {
	return func(orch *DflOrchestrator) { orch.notifier.SetProbe(probe) }
}

func WithRand(rng *rand.Rand) Option {
	return func(orch *DflOrchestrator) { orch.rng = rng }
}

// WithRunId names the run. Without it a random identifier is used.
func WithRunId(runId string) Option {
	return func(orch *DflOrchestrator) { orch.runId = runId }
}

// DflOrchestrator drives one scenario through assembly and the staged start
// of its participants, then tears every spawned process down on Stop.
type DflOrchestrator struct {
	runId      string
	cfg        *config.Config
	registry   *registry.ParticipantRegistry
	supervisor IProcessSupervisor
	notifier   *procorch.ReadinessNotifier
	eventBus   *events.EventBus
	metrics    *observability.Collector
	logger     hclog.Logger
	tracer     trace.Tracer
	renderer   render.IGraphRenderer
	rng        *rand.Rand
	now        func() time.Time
	wait       WaitFunc

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	scenario *model.Scenario
	topology *topology.Topology

	// held while spawning so that a shutdown never misses a fresh handle
	spawnMu sync.Mutex
}

func NewDflOrchestrator(cfg *config.Config, supervisor IProcessSupervisor, eventBus *events.EventBus,
	metrics *observability.Collector, logger hclog.Logger, options ...Option) *DflOrchestrator {
	orch := &DflOrchestrator{
		runId:      uuid.New().String(),
		cfg:        cfg,
		registry:   registry.NewParticipantRegistry(logger),
		supervisor: supervisor,
		notifier:   procorch.NewReadinessNotifier(eventBus, metrics, logger),
		eventBus:   eventBus,
		metrics:    metrics,
		logger:     logger,
		tracer:     otel.Tracer(observability.TracerName),
		renderer:   render.NewPngRenderer(),
		now:        time.Now,
		wait:       sleepContext,
		state:      StateIdle,
	}

	for _, option := range options {
		option(orch)
	}

	if orch.rng == nil {
		seed := cfg.Topology.Seed
		if seed == 0 {
			seed = orch.now().UnixNano()
		}
		orch.rng = rand.New(rand.NewSource(seed))
	}

	orch.notifier.SetRunId(orch.runId)
	orch.metrics.SetState(string(StateIdle), allStates)

	return orch
}

func (orch *DflOrchestrator) RunId() string {
	return orch.runId
}

func (orch *DflOrchestrator) State() State {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.state
}

func (orch *DflOrchestrator) Scenario() *model.Scenario {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.scenario
}

func (orch *DflOrchestrator) Topology() *topology.Topology {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.topology
}

// Start assembles the scenario and launches its participants: every peer
// first, the start node last. It returns once the start node was launched.
// A failed assembly terminates the run before anything is spawned.
func (orch *DflOrchestrator) Start(ctx context.Context) error {
	if err := orch.transition(StateIdle, StateAssembling, nil); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	orch.mu.Lock()
	orch.cancel = cancel
	orch.mu.Unlock()

	scenario, err := orch.assemble(ctx)
	if err != nil {
		orch.logger.Error(fmt.Sprintf("Scenario assembly failed: %s", err.Error()))
		orch.transition(StateAssembling, StateTerminated, err)
		return err
	}

	if !orch.cfg.Scenario.Simulation {
		orch.logger.Info(fmt.Sprintf("Simulation disabled, waiting for nodes to start with configurations in %s", scenario.ConfigDir))
		return orch.transition(StateAssembling, StateRunning, nil)
	}

	if err := orch.transition(StateAssembling, StateStartingPeers, nil); err != nil {
		return err
	}

	peers, err := orch.startPeers(ctx, scenario)
	if err != nil {
		return err
	}

	if err := orch.transition(StateStartingPeers, StateStartingInitiator, nil); err != nil {
		return err
	}

	if err := orch.awaitPeers(ctx, peers); err != nil {
		orch.logger.Warn(fmt.Sprintf("Start of scenario %s interrupted: %s", scenario.Name, err.Error()))
		return err
	}

	if err := orch.startInitiator(ctx, scenario); err != nil {
		return err
	}

	return orch.transition(StateStartingInitiator, StateRunning, nil)
}

// Stop kills every process spawned for the scenario, then sweeps the process
// table for the configured kill pattern. It returns the number of processes
// killed. Stopping a run that never started only marks it terminated.
func (orch *DflOrchestrator) Stop() int {
	orch.mu.Lock()
	from := orch.state
	switch {
	case from == StateIdle:
		orch.state = StateTerminated
	case from.Stoppable():
		orch.state = StateShuttingDown
	default:
		orch.mu.Unlock()
		return 0
	}
	to := orch.state
	cancel := orch.cancel
	orch.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	orch.announce(from, to, nil)
	if to == StateTerminated {
		return 0
	}

	_, span := orch.tracer.Start(context.Background(), "scenario.shutdown")
	defer span.End()

	orch.notifier.Stop()

	orch.spawnMu.Lock()
	killed := orch.supervisor.TerminateAll()
	orch.spawnMu.Unlock()

	if pattern := orch.cfg.Start.KillPattern; pattern != "" {
		killed += orch.supervisor.TerminateByNamePattern(pattern)
	}
	if orch.cfg.Start.KillPorts {
		killed += orch.supervisor.TerminateByPorts(orch.participantPorts())
	}

	span.SetAttributes(attribute.Int("dfl.killed", killed))
	orch.transition(StateShuttingDown, StateTerminated, nil)

	return killed
}

func (orch *DflOrchestrator) participantPorts() []int {
	scenario := orch.Scenario()
	if scenario == nil {
		return nil
	}

	ports := make([]int, 0, len(scenario.Participants))
	for _, participant := range scenario.Participants {
		ports = append(ports, participant.NetworkArgs.Port)
	}
	return ports
}

func (orch *DflOrchestrator) assemble(ctx context.Context) (*model.Scenario, error) {
	_, span := orch.tracer.Start(ctx, "scenario.assemble")
	defer span.End()

	begin := time.Now()
	scenario, err := orch.buildScenario()
	orch.metrics.ObserveAssembly(time.Since(begin))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("dfl.scenario", scenario.Name),
		attribute.Int("dfl.participants", len(scenario.Participants)),
		attribute.Int("dfl.start_index", scenario.StartIndex),
	)

	return scenario, nil
}

func (orch *DflOrchestrator) buildScenario() (*model.Scenario, error) {
	scenario, err := newScenario(orch.cfg, orch.now())
	if err != nil {
		return nil, err
	}

	orch.mu.Lock()
	orch.scenario = scenario
	orch.mu.Unlock()

	orch.logger.Info(fmt.Sprintf("Assembling scenario %s in %s", scenario.Name, scenario.ConfigDir))

	if err := populateScenario(orch.cfg, orch.registry, scenario); err != nil {
		return nil, err
	}

	participants, err := orch.registry.Load(scenario.ConfigDir)
	if err != nil {
		return nil, err
	}

	t, err := topology.Generate(topology.Kind(orch.cfg.Topology.Kind), len(participants), topologyParams(orch.cfg))
	if err != nil {
		return nil, err
	}

	scenarioAssembler := assembler.NewScenarioAssembler(orch.registry, orch.renderer, orch.rng, orch.logger)
	if err := scenarioAssembler.Assemble(scenario, t, participants); err != nil {
		return nil, err
	}

	orch.mu.Lock()
	orch.topology = t
	orch.mu.Unlock()

	return scenario, nil
}

// startPeers launches every participant except the start node in ascending
// index order. A failed launch is logged and the remaining peers still start.
func (orch *DflOrchestrator) startPeers(ctx context.Context, scenario *model.Scenario) ([]procorch.Peer, error) {
	_, span := orch.tracer.Start(ctx, "scenario.start_peers")
	defer span.End()

	orch.supervisor.SetOutputDir(scenario.LogDir)
	orch.supervisor.SetScenario(scenario.Name)

	peers := []procorch.Peer{}
	for _, participant := range scenario.Participants {
		index := participant.DeviceArgs.Idx
		if index == scenario.StartIndex {
			continue
		}

		spawned, err := orch.spawn(index, participant.Path)
		if err != nil {
			return nil, err
		}
		if !spawned {
			continue
		}

		peers = append(peers, procorch.Peer{Index: index, Address: participant.Address()})
	}

	span.SetAttributes(attribute.Int("dfl.peers", len(peers)))
	orch.logger.Info(fmt.Sprintf("Launched %d of %d peers", len(peers), len(scenario.Participants)-1))

	return peers, nil
}

func (orch *DflOrchestrator) startInitiator(ctx context.Context, scenario *model.Scenario) error {
	_, span := orch.tracer.Start(ctx, "scenario.start_initiator")
	defer span.End()

	start := scenario.Participants[scenario.StartIndex]
	spawned, err := orch.spawn(start.DeviceArgs.Idx, start.Path)
	if err != nil {
		return err
	}
	if !spawned {
		orch.logger.Warn(fmt.Sprintf("Start node %d did not launch, the federation will not begin", start.DeviceArgs.Idx))
	}

	return nil
}

// spawn launches one participant unless a shutdown already began. Launch
// failures are reported by the supervisor and only reflected in the result.
func (orch *DflOrchestrator) spawn(index int, configPath string) (bool, error) {
	orch.spawnMu.Lock()
	defer orch.spawnMu.Unlock()

	if state := orch.State(); state == StateShuttingDown || state == StateTerminated {
		return false, fmt.Errorf("%w: spawn of participant %d during %s", ErrInvalidState, index, state)
	}

	_, err := orch.supervisor.Spawn(index, configPath)
	return err == nil, nil
}

// awaitPeers holds the start node back. In delay mode it waits the grace
// interval; in handshake mode it waits until every peer accepts connections,
// falling back to proceeding once the readiness timeout expires.
func (orch *DflOrchestrator) awaitPeers(ctx context.Context, peers []procorch.Peer) error {
	if orch.cfg.Start.Mode != common.START_MODE_HANDSHAKE {
		orch.logger.Info(fmt.Sprintf("Waiting %s before launching the start node", orch.cfg.Start.GraceInterval))
		return orch.wait(ctx, orch.cfg.Start.GraceInterval)
	}

	if len(peers) == 0 {
		return nil
	}

	peerReadyChan := make(chan events.Event, len(peers)+1)
	orch.eventBus.Subscribe(common.PEER_READY_EVENT_TYPE, peerReadyChan)
	defer orch.eventBus.Unsubscribe(common.PEER_READY_EVENT_TYPE, peerReadyChan)

	orch.notifier.Watch(peers)
	if err := orch.notifier.Start(); err != nil {
		return err
	}
	defer orch.notifier.Stop()

	// peers that are up already need not wait for the first tick
	orch.notifier.Poll()

	remaining := make(map[int]bool, len(peers))
	for _, peer := range peers {
		remaining[peer.Index] = true
	}

	timeout := time.NewTimer(orch.cfg.Start.ReadinessTimeout)
	defer timeout.Stop()

	orch.logger.Info(fmt.Sprintf("Waiting up to %s for %d peers to listen", orch.cfg.Start.ReadinessTimeout, len(peers)))

	for len(remaining) > 0 {
		select {
		case event := <-peerReadyChan:
			peerReady, ok := event.Data.(events.PeerReadyEvent)
			if !ok || peerReady.RunId != orch.runId {
				continue
			}
			delete(remaining, peerReady.Index)
		case <-timeout.C:
			orch.logger.Warn(fmt.Sprintf("%d peers not listening after %s, launching the start node anyway",
				len(remaining), orch.cfg.Start.ReadinessTimeout))
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	orch.logger.Info("All peers are listening")
	return nil
}

func (orch *DflOrchestrator) transition(from State, to State, cause error) error {
	orch.mu.Lock()
	if orch.state != from || !canTransition(from, to) {
		current := orch.state
		orch.mu.Unlock()
		return fmt.Errorf("%w: %s to %s while %s", ErrInvalidState, from, to, current)
	}
	orch.state = to
	orch.mu.Unlock()

	orch.announce(from, to, cause)
	return nil
}

// announce logs a state change, exports it and publishes it on the bus.
func (orch *DflOrchestrator) announce(from State, to State, cause error) {
	name := ""
	if scenario := orch.Scenario(); scenario != nil {
		name = scenario.Name
	}

	message := ""
	if cause != nil {
		message = cause.Error()
	}

	orch.logger.Info(fmt.Sprintf("Scenario %s: %s -> %s", name, from, to))
	orch.metrics.SetState(string(to), allStates)
	orch.eventBus.Publish(events.Event{
		Type: common.SCENARIO_STATE_CHANGED_EVENT_TYPE,
		Data: events.ScenarioStateChangedEvent{
			RunId:    orch.runId,
			Scenario: name,
			From:     string(from),
			To:       string(to),
			Error:    message,
		},
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
