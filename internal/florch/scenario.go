package florch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/registry"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/topology"
)

// newScenario names the run and creates its configuration and log
// directories.
func newScenario(cfg *config.Config, startTime time.Time) (*model.Scenario, error) {
	name := cfg.Scenario.Name
	if name == "" {
		name = common.ScenarioName(cfg.Scenario.Prefix, cfg.Scenario.Federation, startTime)
	}

	scenario := &model.Scenario{
		Name:       name,
		Federation: cfg.Scenario.Federation,
		ConfigDir:  filepath.Join(cfg.Paths.ConfigRoot, name),
		LogDir:     filepath.Join(cfg.Paths.LogRoot, name),
		StartTime:  startTime,
		StartIndex: -1,
	}

	for _, dir := range []string{scenario.ConfigDir, scenario.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	return scenario, nil
}

// populateScenario fills an empty scenario directory, from the templates when
// configured and from the participant blueprint otherwise. A directory that
// already holds participant files is used as it is.
func populateScenario(cfg *config.Config, participantRegistry *registry.ParticipantRegistry, scenario *model.Scenario) error {
	existing, err := common.ListParticipantFiles(scenario.ConfigDir)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	if cfg.Paths.Templates != "" {
		_, err := CopyTemplates(cfg.Paths.Templates, scenario.ConfigDir)
		return err
	}

	_, err = participantRegistry.Materialize(scenario.ConfigDir, registry.Blueprint{
		Count:      cfg.Participants.Count,
		Host:       cfg.Participants.Host,
		BasePort:   cfg.Participants.BasePort,
		StartIndex: cfg.Participants.StartIndex,
	})
	return err
}

// CopyTemplates copies the participant files of templatesDir into dir.
func CopyTemplates(templatesDir string, dir string) (int, error) {
	files, err := common.ListParticipantFiles(templatesDir)
	if err != nil {
		return 0, fmt.Errorf("%w: templates %s: %w", registry.ErrConfigNotFound, templatesDir, err)
	}

	for _, file := range files {
		if err := copyFile(file.Path, filepath.Join(dir, filepath.Base(file.Path))); err != nil {
			return 0, err
		}
	}

	return len(files), nil
}

func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func topologyParams(cfg *config.Config) topology.Params {
	return topology.Params{
		UndirectedNeighborNum: cfg.Topology.NeighborNum,
		BSymmetric:            cfg.Topology.Symmetric,
		IncreaseConvergence:   cfg.Topology.IncreaseConvergence,
		Seed:                  cfg.Topology.Seed,
		Federation:            cfg.Scenario.Federation,
		ServerIndex:           cfg.Topology.ServerIndex,
		Matrix:                cfg.Topology.Matrix,
	}
}
