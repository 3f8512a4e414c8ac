package florch

import (
	"runtime"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/observability"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch/platform"
	"github.com/hashicorp/go-hclog"
)

// NewSupervisor builds the process supervisor of one run with the launcher
// the configuration selects for this platform.
func NewSupervisor(cfg *config.Config, eventBus *events.EventBus, metrics *observability.Collector,
	logger hclog.Logger) (*procorch.ProcessSupervisor, error) {
	options := procorch.LauncherOptions{
		Command: cfg.Launcher.Command,
		WorkDir: cfg.Launcher.WorkDir,
	}

	launcher, err := platform.NewLauncher(cfg.Launcher.Kind, runtime.GOOS, options, logger)
	if err != nil {
		return nil, err
	}

	return procorch.NewProcessSupervisor(launcher, eventBus, metrics, logger.Named("supervisor")), nil
}
