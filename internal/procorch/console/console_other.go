//go:build !windows

package consolelauncher

import (
	"fmt"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch"
)

func runCommandLine(commandLine string) ([]byte, error) {
	return nil, fmt.Errorf("%w: consoles need cmd.exe", procorch.ErrUnsupportedPlatform)
}
