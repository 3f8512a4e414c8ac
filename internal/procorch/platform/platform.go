package platform

import (
	"fmt"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch"
	consolelauncher "github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch/console"
	dummylauncher "github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch/dummy"
	locallauncher "github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch/local"
	terminallauncher "github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch/terminal"
	"github.com/hashicorp/go-hclog"
)

var unixLike = map[string]bool{
	"linux":     true,
	"freebsd":   true,
	"openbsd":   true,
	"netbsd":    true,
	"dragonfly": true,
	"solaris":   true,
	"illumos":   true,
	"aix":       true,
}

// ResolveKind maps the configured launcher kind onto a concrete one for goos.
func ResolveKind(kind string, goos string) (string, error) {
	switch kind {
	case "", common.LAUNCHER_AUTO:
		switch {
		case goos == "darwin":
			return common.LAUNCHER_TERMINAL, nil
		case goos == "windows":
			return common.LAUNCHER_CONSOLE, nil
		case unixLike[goos]:
			return common.LAUNCHER_LOCAL, nil
		}
	case common.LAUNCHER_LOCAL:
		if goos == "darwin" || unixLike[goos] {
			return kind, nil
		}
	case common.LAUNCHER_TERMINAL:
		if goos == "darwin" {
			return kind, nil
		}
	case common.LAUNCHER_CONSOLE:
		if goos == "windows" {
			return kind, nil
		}
	case common.LAUNCHER_DUMMY:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: unknown launcher %q", procorch.ErrUnsupportedPlatform, kind)
	}

	return "", fmt.Errorf("%w: launcher %q is not available on %s", procorch.ErrUnsupportedPlatform, kind, goos)
}

// NewLauncher selects the process launcher once, at initialization.
func NewLauncher(kind string, goos string, options procorch.LauncherOptions, logger hclog.Logger) (procorch.IProcessLauncher, error) {
	resolved, err := ResolveKind(kind, goos)
	if err != nil {
		return nil, err
	}

	logger.Debug(fmt.Sprintf("Using %s launcher on %s", resolved, goos))

	switch resolved {
	case common.LAUNCHER_LOCAL:
		return locallauncher.NewLocalLauncher(options, logger.Named("local")), nil
	case common.LAUNCHER_TERMINAL:
		return terminallauncher.NewTerminalLauncher(options, logger.Named("terminal")), nil
	case common.LAUNCHER_CONSOLE:
		return consolelauncher.NewConsoleLauncher(options, logger.Named("console")), nil
	default:
		return dummylauncher.NewDummyLauncher(), nil
	}
}
