package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dfl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 7*time.Second, cfg.Start.GraceInterval)
	assert.Equal(t, "DFL", cfg.Scenario.Federation)
	assert.True(t, cfg.Topology.Symmetric)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
scenario:
  federation: CFL
topology:
  kind: star
  server_index: 2
  matrix:
    - [0, 1]
    - [1, 0]
participants:
  count: 5
start:
  mode: handshake
  grace_interval: 2s
  readiness_timeout: 1m30s
launcher:
  command: ["python3", "-m", "fl.node"]
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "CFL", cfg.Scenario.Federation)
	assert.Equal(t, "star", cfg.Topology.Kind)
	assert.Equal(t, 2, cfg.Topology.ServerIndex)
	assert.Equal(t, [][]int{{0, 1}, {1, 0}}, cfg.Topology.Matrix)
	assert.Equal(t, 5, cfg.Participants.Count)
	assert.Equal(t, "handshake", cfg.Start.Mode)
	assert.Equal(t, 2*time.Second, cfg.Start.GraceInterval)
	assert.Equal(t, 90*time.Second, cfg.Start.ReadinessTimeout)
	assert.Equal(t, []string{"python3", "-m", "fl.node"}, cfg.Launcher.Command)

	// untouched keys keep their defaults
	assert.Equal(t, "127.0.0.1", cfg.Participants.Host)
	assert.Equal(t, "app/config", cfg.Paths.ConfigRoot)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadFile(writeConfig(t, "topology: [not, a, map]"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		message string
	}{
		{"federation", func(cfg *Config) { cfg.Scenario.Federation = "HFL" }, "Federation"},
		{"topology", func(cfg *Config) { cfg.Topology.Kind = "mesh" }, "Kind"},
		{"start mode", func(cfg *Config) { cfg.Start.Mode = "eventually" }, "Mode"},
		{"launcher", func(cfg *Config) { cfg.Launcher.Kind = "k8s" }, "Kind"},
		{"port", func(cfg *Config) { cfg.Participants.BasePort = 0 }, "BasePort"},
		{"host", func(cfg *Config) { cfg.Participants.Host = "" }, "Host"},
		{"log level", func(cfg *Config) { cfg.Telemetry.LogLevel = "loud" }, "LogLevel"},
		{"no participants", func(cfg *Config) { cfg.Participants.Count = 0 }, "participants.count"},
		{"start index", func(cfg *Config) { cfg.Participants.StartIndex = 3 }, "start_index"},
		{"command", func(cfg *Config) { cfg.Launcher.Command = nil }, "launcher.command"},
		{"unsafe name", func(cfg *Config) { cfg.Scenario.Name = "../etc" }, "scenario.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	cfg := Default()
	cfg.Participants.Count = 0
	cfg.Paths.Templates = "templates"
	assert.NoError(t, cfg.Validate())
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
topology:
  kind: ring
participants:
  count: 8
`)

	set := pflag.NewFlagSet("dfl", pflag.ContinueOnError)
	flags := RegisterFlags(set)
	require.NoError(t, set.Parse([]string{"--config", path, "-n", "4", "--grace=3s", "--command", "python3,node.py", "--kill-ports"}))

	cfg, err := flags.Resolve()
	require.NoError(t, err)

	assert.Equal(t, "ring", cfg.Topology.Kind)
	assert.Equal(t, 4, cfg.Participants.Count)
	assert.Equal(t, 3*time.Second, cfg.Start.GraceInterval)
	assert.Equal(t, []string{"python3", "node.py"}, cfg.Launcher.Command)
	assert.True(t, cfg.Start.KillPorts)
}

func TestUnsetFlagsDoNotOverrideFile(t *testing.T) {
	path := writeConfig(t, `
scenario:
  simulation: false
topology:
  symmetric: false
`)

	set := pflag.NewFlagSet("dfl", pflag.ContinueOnError)
	flags := RegisterFlags(set)
	require.NoError(t, set.Parse([]string{"-c", path}))

	cfg, err := flags.Resolve()
	require.NoError(t, err)
	assert.False(t, cfg.Scenario.Simulation)
	assert.False(t, cfg.Topology.Symmetric)
}

func TestFlagsValidate(t *testing.T) {
	set := pflag.NewFlagSet("dfl", pflag.ContinueOnError)
	flags := RegisterFlags(set)
	require.NoError(t, set.Parse([]string{"--federation", "XYZ"}))

	_, err := flags.Resolve()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
