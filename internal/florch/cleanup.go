package florch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
)

var ErrUnsafeScenarioName = errors.New("unsafe scenario name")

// RemoveConfigFiles deletes the .json and .png files lying directly in
// configRoot. Scenario directories below it are left alone.
func RemoveConfigFiles(configRoot string) (int, error) {
	entries, err := os.ReadDir(configRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != common.PARTICIPANT_FILE_EXT && ext != filepath.Ext(common.TOPOLOGY_IMAGE_NAME) {
			continue
		}

		if err := os.Remove(filepath.Join(configRoot, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

// RemoveScenarioFiles deletes the configuration and log directories of one
// scenario.
func RemoveScenarioFiles(configRoot string, logRoot string, name string) error {
	if !common.IsSafeName(name) {
		return fmt.Errorf("%w: %q", ErrUnsafeScenarioName, name)
	}

	var errs []error
	for _, root := range []string{configRoot, logRoot} {
		if root == "" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, name)); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
