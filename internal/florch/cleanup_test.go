package florch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))
}

func TestRemoveConfigFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "participant_0.json"))
	touch(t, filepath.Join(root, "topology.png"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, "run1", "participant_0.json"))

	removed, err := RemoveConfigFiles(root)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.NoFileExists(t, filepath.Join(root, "participant_0.json"))
	assert.NoFileExists(t, filepath.Join(root, "topology.png"))
	assert.FileExists(t, filepath.Join(root, "notes.txt"))
	assert.FileExists(t, filepath.Join(root, "run1", "participant_0.json"))

	removed, err = RemoveConfigFiles(filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRemoveScenarioFiles(t *testing.T) {
	configRoot := t.TempDir()
	logRoot := t.TempDir()
	touch(t, filepath.Join(configRoot, "run1", "participant_0.json"))
	touch(t, filepath.Join(logRoot, "run1", "participant_0.out"))
	touch(t, filepath.Join(configRoot, "run2", "participant_0.json"))

	require.NoError(t, RemoveScenarioFiles(configRoot, logRoot, "run1"))

	assert.NoDirExists(t, filepath.Join(configRoot, "run1"))
	assert.NoDirExists(t, filepath.Join(logRoot, "run1"))
	assert.DirExists(t, filepath.Join(configRoot, "run2"))

	// removing it again is not an error
	assert.NoError(t, RemoveScenarioFiles(configRoot, logRoot, "run1"))
}

func TestRemoveScenarioFilesRejectsUnsafeNames(t *testing.T) {
	configRoot := t.TempDir()
	touch(t, filepath.Join(configRoot, "participant_0.json"))

	for _, name := range []string{"", ".", "..", "../etc", "a/b"} {
		assert.ErrorIs(t, RemoveScenarioFiles(configRoot, "", name), ErrUnsafeScenarioName, name)
	}
	assert.FileExists(t, filepath.Join(configRoot, "participant_0.json"))
}
