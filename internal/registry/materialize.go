package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/model"
)

// Blueprint describes a set of participants generated from scratch, used when
// a scenario is started without participant templates.
type Blueprint struct {
	Count      int    `validate:"min=1"`
	Host       string `validate:"required,ip|hostname"`
	BasePort   int    `validate:"min=1,max=65535"`
	StartIndex int    `validate:"min=0"`
}

// Materialize writes one participant file per blueprint entry into dir. Ports
// are assigned consecutively from BasePort; only StartIndex carries the start
// flag.
func (registry *ParticipantRegistry) Materialize(dir string, blueprint Blueprint) ([]string, error) {
	if err := validate.Struct(blueprint); err != nil {
		return nil, fmt.Errorf("invalid participant blueprint: %w", formatValidationError(err))
	}
	if blueprint.StartIndex >= blueprint.Count {
		return nil, fmt.Errorf("invalid participant blueprint: start index %d not in [0, %d)",
			blueprint.StartIndex, blueprint.Count)
	}
	if blueprint.BasePort+blueprint.Count-1 > 65535 {
		return nil, fmt.Errorf("invalid participant blueprint: %d ports from %d exceed 65535",
			blueprint.Count, blueprint.BasePort)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, blueprint.Count)
	for i := 0; i < blueprint.Count; i++ {
		participant := &model.ParticipantConfig{
			DeviceArgs: model.DeviceArgs{
				Idx:   i,
				Start: i == blueprint.StartIndex,
			},
			NetworkArgs: model.NetworkArgs{
				Ip:        blueprint.Host,
				Port:      blueprint.BasePort + i,
				IpDemo:    blueprint.Host,
				Neighbors: model.NeighborList{},
			},
			Path: filepath.Join(dir, common.ParticipantFileName(i)),
		}

		if err := registry.Save(participant); err != nil {
			return nil, err
		}
		paths = append(paths, participant.Path)
	}

	registry.logger.Debug(fmt.Sprintf("Materialized %d participant files in %s", blueprint.Count, dir))

	return paths, nil
}
