package assembler

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/topology"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	saved []*model.ParticipantConfig
	err   error
}

func (store *memoryStore) SaveAll(participants []*model.ParticipantConfig) error {
	if store.err != nil {
		return store.err
	}
	store.saved = append(store.saved, participants...)
	return nil
}

type recordingRenderer struct {
	path  string
	roles []string
	err   error
}

func (renderer *recordingRenderer) Render(path string, t *topology.Topology) error {
	renderer.path = path
	for i := 0; i < t.NodeCount; i++ {
		renderer.roles = append(renderer.roles, t.Role(i))
	}
	return renderer.err
}

func newParticipants(n int, start ...int) []*model.ParticipantConfig {
	participants := make([]*model.ParticipantConfig, n)
	for i := range participants {
		participants[i] = &model.ParticipantConfig{
			NetworkArgs: model.NetworkArgs{Ip: "127.0.0.1", Port: 45000 + i},
			Path:        filepath.Join("configs", common.ParticipantFileName(i)),
		}
	}
	for _, i := range start {
		participants[i].DeviceArgs.Start = true
	}
	return participants
}

func newScenario() *model.Scenario {
	return &model.Scenario{
		Name:       "dfl_DFL_01_02_2024_10_00_00",
		Federation: common.FEDERATION_DFL,
		ConfigDir:  "configs",
		LogDir:     "logs",
		StartTime:  time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newTestAssembler(store IParticipantStore, renderer *recordingRenderer) *ScenarioAssembler {
	if renderer == nil {
		return NewScenarioAssembler(store, nil, rand.New(rand.NewSource(1)), hclog.NewNullLogger())
	}
	return NewScenarioAssembler(store, renderer, rand.New(rand.NewSource(1)), hclog.NewNullLogger())
}

func TestAssembleFullyConnected(t *testing.T) {
	fully, err := topology.Generate(topology.Fully, 3, topology.Params{BSymmetric: true})
	require.NoError(t, err)

	store := &memoryStore{}
	renderer := &recordingRenderer{}
	scenario := newScenario()
	participants := newParticipants(3, 0)

	require.NoError(t, newTestAssembler(store, renderer).Assemble(scenario, fully, participants))

	assert.Equal(t, 0, scenario.StartIndex)
	assert.Len(t, scenario.Participants, 3)
	assert.Len(t, store.saved, 3)

	expected := []model.NeighborList{
		{"127.0.0.1:45001", "127.0.0.1:45002"},
		{"127.0.0.1:45000", "127.0.0.1:45002"},
		{"127.0.0.1:45000", "127.0.0.1:45001"},
	}
	for i, participant := range participants {
		assert.Equal(t, i, participant.DeviceArgs.Idx)
		assert.Equal(t, expected[i], participant.NetworkArgs.Neighbors)
		assert.Equal(t, common.FEDERATION_DFL, participant.ScenarioArgs.Federation)
		assert.Equal(t, 3, participant.ScenarioArgs.NNodes)
		assert.Equal(t, scenario.Name, participant.ScenarioArgs.Name)
		assert.Equal(t, "01/02/2024 10:00:00", participant.ScenarioArgs.StartTime)
		assert.Equal(t, "logs", participant.TrackingArgs.LogDir)
		assert.Equal(t, "configs", participant.TrackingArgs.ConfigDir)
		assert.Equal(t, common.ParticipantUid("127.0.0.1", 45000+i, scenario.Name), participant.DeviceArgs.Uid)

		assert.GreaterOrEqual(t, participant.GeoArgs.Latitude, DefaultGeoBounds.MinLatitude)
		assert.LessOrEqual(t, participant.GeoArgs.Latitude, DefaultGeoBounds.MaxLatitude)
		assert.GreaterOrEqual(t, participant.GeoArgs.Longitude, DefaultGeoBounds.MinLongitude)
		assert.LessOrEqual(t, participant.GeoArgs.Longitude, DefaultGeoBounds.MaxLongitude)
	}

	assert.Equal(t, filepath.Join("logs", "topology.png"), renderer.path)
	assert.Equal(t, []string{"start", "participant", "participant"}, renderer.roles)
}

func TestAssembleUidIsDeterministic(t *testing.T) {
	fully, err := topology.Generate(topology.Fully, 2, topology.Params{BSymmetric: true})
	require.NoError(t, err)

	first := newParticipants(2, 1)
	second := newParticipants(2, 1)
	require.NoError(t, newTestAssembler(&memoryStore{}, nil).Assemble(newScenario(), fully, first))
	require.NoError(t, newTestAssembler(&memoryStore{}, nil).Assemble(newScenario(), fully, second))

	for i := range first {
		assert.Equal(t, first[i].DeviceArgs.Uid, second[i].DeviceArgs.Uid)
		assert.Len(t, first[i].DeviceArgs.Uid, 40)
	}
	assert.NotEqual(t, first[0].DeviceArgs.Uid, first[1].DeviceArgs.Uid)
}

func TestAssembleStartNodeInvariant(t *testing.T) {
	tests := []struct {
		name  string
		start []int
		err   error
	}{
		{"two start nodes", []int{0, 2}, ErrMultipleStartNodes},
		{"three start nodes", []int{0, 1, 2}, ErrMultipleStartNodes},
		{"no start node", nil, ErrNoStartNode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring, err := topology.Generate(topology.Ring, 3, topology.Params{BSymmetric: true})
			require.NoError(t, err)

			store := &memoryStore{}
			renderer := &recordingRenderer{}
			scenario := newScenario()

			err = newTestAssembler(store, renderer).Assemble(scenario, ring, newParticipants(3, tt.start...))
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, store.saved)
			assert.Empty(t, scenario.Participants)
			assert.Empty(t, renderer.path)
		})
	}
}

func TestAssembleKeepsPinnedLocation(t *testing.T) {
	fully, err := topology.Generate(topology.Fully, 2, topology.Params{BSymmetric: true})
	require.NoError(t, err)

	participants := newParticipants(2, 0)
	participants[1].GeoArgs = model.GeoArgs{Latitude: 51.5, Longitude: -0.12, Pinned: true}

	assembler := newTestAssembler(&memoryStore{}, nil)
	assembler.SetGeoBounds(GeoBounds{MinLatitude: 10, MaxLatitude: 11, MinLongitude: 20, MaxLongitude: 21})
	require.NoError(t, assembler.Assemble(newScenario(), fully, participants))

	assert.Equal(t, 51.5, participants[1].GeoArgs.Latitude)
	assert.Equal(t, -0.12, participants[1].GeoArgs.Longitude)
	assert.InDelta(t, 10.5, participants[0].GeoArgs.Latitude, 0.5)
	assert.InDelta(t, 20.5, participants[0].GeoArgs.Longitude, 0.5)
}

func TestAssembleStarRoles(t *testing.T) {
	star, err := topology.Generate(topology.Star, 4, topology.Params{Federation: common.FEDERATION_CFL, ServerIndex: 1})
	require.NoError(t, err)

	participants := newParticipants(4, 3)
	participants[2].DeviceArgs.Role = "aggregator"
	renderer := &recordingRenderer{}

	scenario := newScenario()
	scenario.Federation = common.FEDERATION_CFL
	require.NoError(t, newTestAssembler(&memoryStore{}, renderer).Assemble(scenario, star, participants))

	assert.Equal(t, []string{"participant", "server", "aggregator", "start"}, renderer.roles)
	assert.Equal(t, model.NeighborList{"127.0.0.1:45000", "127.0.0.1:45002", "127.0.0.1:45003"}, participants[1].NetworkArgs.Neighbors)
	assert.Equal(t, model.NeighborList{"127.0.0.1:45001"}, participants[3].NetworkArgs.Neighbors)
}

func TestAssembleRenderFailureIsNotFatal(t *testing.T) {
	fully, err := topology.Generate(topology.Fully, 2, topology.Params{BSymmetric: true})
	require.NoError(t, err)

	renderer := &recordingRenderer{err: errors.New("no display")}
	store := &memoryStore{}
	require.NoError(t, newTestAssembler(store, renderer).Assemble(newScenario(), fully, newParticipants(2, 0)))
	assert.Len(t, store.saved, 2)
}

func TestAssembleErrors(t *testing.T) {
	fully, err := topology.Generate(topology.Fully, 3, topology.Params{BSymmetric: true})
	require.NoError(t, err)

	err = newTestAssembler(&memoryStore{}, nil).Assemble(newScenario(), fully, newParticipants(2, 0))
	assert.ErrorIs(t, err, ErrParticipantCountMismatch)

	failing := &memoryStore{err: errors.New("disk full")}
	scenario := newScenario()
	err = newTestAssembler(failing, nil).Assemble(scenario, fully, newParticipants(3, 0))
	assert.ErrorIs(t, err, ErrParticipantPersistFailure)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, failing.saved)
	assert.Empty(t, scenario.Participants)
}
