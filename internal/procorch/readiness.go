package procorch

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/observability"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
)

type Peer struct {
	Index   int
	Address string
}

// ProbeFunc reports whether a peer accepts connections on address.
type ProbeFunc func(address string) bool

func TCPProbe(timeout time.Duration) ProbeFunc {
	return func(address string) bool {
		conn, err := net.DialTimeout("tcp", address, timeout)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// ReadinessNotifier polls the listening address of each watched peer on a
// cron schedule and publishes one PeerReady event per peer once it answers.
type ReadinessNotifier struct {
	eventBus      *events.EventBus
	metrics       *observability.Collector
	logger        hclog.Logger
	cronScheduler *cron.Cron
	schedule      string
	probe         ProbeFunc
	runId         string

	mu      sync.Mutex
	pending map[int]string
}

func NewReadinessNotifier(eventBus *events.EventBus, metrics *observability.Collector, logger hclog.Logger) *ReadinessNotifier {
	return &ReadinessNotifier{
		eventBus:      eventBus,
		metrics:       metrics,
		logger:        logger,
		cronScheduler: cron.New(cron.WithSeconds()),
		schedule:      common.DEFAULT_READINESS_SCHEDULE,
		probe:         TCPProbe(500 * time.Millisecond),
		pending:       make(map[int]string),
	}
}

func (notifier *ReadinessNotifier) SetProbe(probe ProbeFunc) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.probe = probe
}

// SetRunId tags every PeerReady event, so runs sharing a bus can tell their
// peers apart.
func (notifier *ReadinessNotifier) SetRunId(runId string) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.runId = runId
}

func (notifier *ReadinessNotifier) SetSchedule(schedule string) {
	notifier.schedule = schedule
}

// Watch adds peers to the set being polled.
func (notifier *ReadinessNotifier) Watch(peers []Peer) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()

	for _, peer := range peers {
		notifier.pending[peer.Index] = peer.Address
	}
}

func (notifier *ReadinessNotifier) Pending() []int {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()

	indices := make([]int, 0, len(notifier.pending))
	for index := range notifier.pending {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

// Poll probes every pending peer once.
func (notifier *ReadinessNotifier) Poll() {
	notifier.mu.Lock()
	probe := notifier.probe
	runId := notifier.runId
	pending := make(map[int]string, len(notifier.pending))
	for index, address := range notifier.pending {
		pending[index] = address
	}
	notifier.mu.Unlock()

	indices := make([]int, 0, len(pending))
	for index := range pending {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	for _, index := range indices {
		address := pending[index]
		if !probe(address) {
			continue
		}

		notifier.mu.Lock()
		_, stillPending := notifier.pending[index]
		delete(notifier.pending, index)
		notifier.mu.Unlock()
		if !stillPending {
			continue
		}

		notifier.logger.Debug(fmt.Sprintf("Participant %d is listening on %s", index, address))
		notifier.metrics.RecordPeerReady()
		notifier.eventBus.Publish(events.Event{
			Type: common.PEER_READY_EVENT_TYPE,
			Data: events.PeerReadyEvent{
				RunId:   runId,
				Index:   index,
				Address: address,
			},
		})
	}
}

func (notifier *ReadinessNotifier) Start() error {
	if _, err := notifier.cronScheduler.AddFunc(notifier.schedule, notifier.Poll); err != nil {
		return fmt.Errorf("invalid readiness schedule %q: %w", notifier.schedule, err)
	}

	notifier.cronScheduler.Start()
	return nil
}

func (notifier *ReadinessNotifier) Stop() {
	<-notifier.cronScheduler.Stop().Done()
}
