package assembler

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/render"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/topology"
	"github.com/hashicorp/go-hclog"
)

var (
	ErrMultipleStartNodes        = errors.New("multiple start nodes")
	ErrNoStartNode               = errors.New("no start node")
	ErrParticipantCountMismatch  = errors.New("participant count does not match topology")
	ErrParticipantPersistFailure = errors.New("failed to persist participant configuration")
)

type IParticipantStore interface {
	SaveAll(participants []*model.ParticipantConfig) error
}

// GeoBounds is the box random participant locations are drawn from.
type GeoBounds struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

// DefaultGeoBounds roughly covers the Iberian peninsula.
var DefaultGeoBounds = GeoBounds{
	MinLatitude:  35.9,
	MaxLatitude:  43.8,
	MinLongitude: -9.3,
	MaxLongitude: 3.3,
}

type ScenarioAssembler struct {
	store    IParticipantStore
	renderer render.IGraphRenderer
	rng      *rand.Rand
	bounds   GeoBounds
	logger   hclog.Logger
}

// NewScenarioAssembler creates an assembler; renderer may be nil to skip the
// topology image.
func NewScenarioAssembler(store IParticipantStore, renderer render.IGraphRenderer, rng *rand.Rand,
	logger hclog.Logger) *ScenarioAssembler {
	return &ScenarioAssembler{
		store:    store,
		renderer: renderer,
		rng:      rng,
		bounds:   DefaultGeoBounds,
		logger:   logger,
	}
}

func (assembler *ScenarioAssembler) SetGeoBounds(bounds GeoBounds) {
	assembler.bounds = bounds
}

// Assemble enriches every participant with the scenario metadata, its
// neighbours in t, its uid and location, then persists the records as one
// batch. All checks run before the first write, so a rejected scenario leaves
// its files untouched.
func (assembler *ScenarioAssembler) Assemble(scenario *model.Scenario, t *topology.Topology,
	participants []*model.ParticipantConfig) error {
	if len(participants) != t.NodeCount {
		return fmt.Errorf("%w: %d participants, %d nodes", ErrParticipantCountMismatch, len(participants), t.NodeCount)
	}

	startIndex := -1
	for i, participant := range participants {
		if participant.DeviceArgs.Start {
			if startIndex >= 0 {
				return fmt.Errorf("%w: participants %d and %d are both flagged as start", ErrMultipleStartNodes, startIndex, i)
			}
			startIndex = i
		}

		if err := assembler.enrich(scenario, t, participants, i); err != nil {
			return err
		}
	}

	if startIndex < 0 {
		return fmt.Errorf("%w: none of the %d participants is flagged as start", ErrNoStartNode, len(participants))
	}

	if err := assembler.store.SaveAll(participants); err != nil {
		return fmt.Errorf("%w: %v", ErrParticipantPersistFailure, err)
	}

	scenario.Participants = participants
	scenario.StartIndex = startIndex

	assembler.logger.Info(fmt.Sprintf("Assembled scenario %s with %d participants, start node is %d",
		scenario.Name, len(participants), startIndex))

	assembler.annotate(scenario, t)

	return nil
}

func (assembler *ScenarioAssembler) enrich(scenario *model.Scenario, t *topology.Topology,
	participants []*model.ParticipantConfig, i int) error {
	participant := participants[i]

	neighborIndices, err := t.Neighbors(i)
	if err != nil {
		return err
	}
	neighbors := make(model.NeighborList, 0, len(neighborIndices))
	for _, j := range neighborIndices {
		peer := participants[j].NetworkArgs
		neighbors = append(neighbors, common.NeighborAddress(peer.Ip, peer.Port))
	}

	participant.DeviceArgs.Idx = i
	participant.DeviceArgs.Uid = common.ParticipantUid(participant.NetworkArgs.Ip, participant.NetworkArgs.Port, scenario.Name)
	participant.NetworkArgs.Neighbors = neighbors

	participant.ScenarioArgs.Federation = scenario.Federation
	participant.ScenarioArgs.NNodes = len(participants)
	participant.ScenarioArgs.Name = scenario.Name
	participant.ScenarioArgs.StartTime = common.FormatStartTime(scenario.StartTime)

	participant.TrackingArgs.LogDir = scenario.LogDir
	participant.TrackingArgs.ConfigDir = scenario.ConfigDir

	if !participant.GeoArgs.Pinned {
		participant.GeoArgs.Latitude = assembler.uniform(assembler.bounds.MinLatitude, assembler.bounds.MaxLatitude)
		participant.GeoArgs.Longitude = assembler.uniform(assembler.bounds.MinLongitude, assembler.bounds.MaxLongitude)
	}

	assembler.logger.Debug(fmt.Sprintf("Participant %d: %s, neighbors %v", i, participant.Address(), neighbors))

	return nil
}

func (assembler *ScenarioAssembler) uniform(min float64, max float64) float64 {
	return min + assembler.rng.Float64()*(max-min)
}

// annotate labels the topology nodes and hands it to the renderer. A failed
// render only costs the image.
func (assembler *ScenarioAssembler) annotate(scenario *model.Scenario, t *topology.Topology) {
	roles := make([]string, len(scenario.Participants))
	for i, participant := range scenario.Participants {
		switch {
		case i == scenario.StartIndex:
			roles[i] = common.ROLE_START
		case t.Kind == topology.Star && i == t.Params.ServerIndex:
			roles[i] = common.ROLE_SERVER
		case participant.DeviceArgs.Role != "":
			roles[i] = participant.DeviceArgs.Role
		default:
			roles[i] = common.ROLE_PARTICIPANT
		}
	}

	if err := t.SetRoles(roles); err != nil {
		assembler.logger.Warn(fmt.Sprintf("Unable to label topology: %s", err.Error()))
		return
	}

	if assembler.renderer == nil || scenario.LogDir == "" {
		return
	}

	imagePath := filepath.Join(scenario.LogDir, common.TOPOLOGY_IMAGE_NAME)
	if err := assembler.renderer.Render(imagePath, t); err != nil {
		assembler.logger.Warn(fmt.Sprintf("Unable to render topology to %s: %s", imagePath, err.Error()))
		return
	}

	assembler.logger.Debug(fmt.Sprintf("Topology image written to %s", imagePath))
}
