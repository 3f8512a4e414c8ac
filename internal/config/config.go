// Package config loads the orchestrator configuration.
//
// Values come from an optional YAML file overlaid by command line flags. The
// resulting Config is passed explicitly to every component; nothing is read
// from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Config is the complete orchestrator configuration.
type Config struct {
	Scenario     ScenarioConfig     `yaml:"scenario"`
	Topology     TopologyConfig     `yaml:"topology"`
	Paths        PathsConfig        `yaml:"paths"`
	Participants ParticipantsConfig `yaml:"participants"`
	Launcher     LauncherConfig     `yaml:"launcher"`
	Start        StartConfig        `yaml:"start"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

type ScenarioConfig struct {
	// Name is generated from Prefix, federation and start time when empty.
	Name       string `yaml:"name"`
	Prefix     string `yaml:"prefix"`
	Federation string `yaml:"federation" validate:"oneof=DFL SDFL CFL"`

	// Simulation spawns the participants locally. Without it the scenario is
	// only assembled and the participants are expected to be started elsewhere.
	Simulation bool `yaml:"simulation"`
}

type TopologyConfig struct {
	Kind                string  `yaml:"kind" validate:"oneof=fully ring random star matrix"`
	NeighborNum         int     `yaml:"neighbor_num" validate:"min=0"`
	Symmetric           bool    `yaml:"symmetric"`
	IncreaseConvergence bool    `yaml:"increase_convergence"`
	Seed                int64   `yaml:"seed"`
	ServerIndex         int     `yaml:"server_index" validate:"min=0"`
	Matrix              [][]int `yaml:"matrix"`
}

type PathsConfig struct {
	ConfigRoot string `yaml:"config_root" validate:"required"`
	LogRoot    string `yaml:"log_root" validate:"required"`

	// Templates holds participant_<index>.json files copied into each new
	// scenario. When empty the participants are generated.
	Templates string `yaml:"templates"`
}

type ParticipantsConfig struct {
	Count      int    `yaml:"count" validate:"min=0"`
	Host       string `yaml:"host" validate:"required,ip|hostname"`
	BasePort   int    `yaml:"base_port" validate:"min=1,max=65535"`
	StartIndex int    `yaml:"start_index" validate:"min=0"`
}

type LauncherConfig struct {
	Kind    string   `yaml:"kind" validate:"oneof=auto local terminal console dummy"`
	Command []string `yaml:"command"`
	WorkDir string   `yaml:"work_dir"`
}

type StartConfig struct {
	Mode             string        `yaml:"mode" validate:"oneof=delay handshake"`
	GraceInterval    time.Duration `yaml:"grace_interval" validate:"min=0"`
	ReadinessTimeout time.Duration `yaml:"readiness_timeout" validate:"min=0"`

	// KillPattern is swept after the registered processes were killed. Empty
	// disables the sweep.
	KillPattern string `yaml:"kill_pattern"`

	// KillPorts also kills whatever still listens on the participant ports
	// once the registered processes were killed.
	KillPorts bool `yaml:"kill_ports"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	Tracing     bool   `yaml:"tracing"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file or flag says otherwise.
func Default() *Config {
	return &Config{
		Scenario: ScenarioConfig{
			Prefix:     common.DEFAULT_SCENARIO_PREFIX,
			Federation: common.FEDERATION_DFL,
			Simulation: true,
		},
		Topology: TopologyConfig{
			Kind:      "fully",
			Symmetric: true,
		},
		Paths: PathsConfig{
			ConfigRoot: "app/config",
			LogRoot:    "app/logs",
		},
		Participants: ParticipantsConfig{
			Count:    3,
			Host:     "127.0.0.1",
			BasePort: 45000,
		},
		Launcher: LauncherConfig{
			Kind:    common.LAUNCHER_AUTO,
			Command: []string{"python3", "node_start.py"},
		},
		Start: StartConfig{
			Mode:             common.START_MODE_DELAY,
			GraceInterval:    common.DEFAULT_GRACE_INTERVAL,
			ReadinessTimeout: common.DEFAULT_READINESS_TIMEOUT,
		},
		Telemetry: TelemetryConfig{
			LogLevel: "info",
		},
	}
}

// LoadFile reads a YAML file on top of the defaults. Keys missing from the
// file keep their default value.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, formatValidationError(err))
	}

	if c.Paths.Templates == "" {
		if c.Participants.Count < 1 {
			return fmt.Errorf("%w: participants.count must be at least 1 without templates", ErrInvalidConfig)
		}
		if c.Participants.StartIndex >= c.Participants.Count {
			return fmt.Errorf("%w: participants.start_index %d not in [0, %d)", ErrInvalidConfig,
				c.Participants.StartIndex, c.Participants.Count)
		}
	}

	if c.Scenario.Simulation && len(c.Launcher.Command) == 0 {
		return fmt.Errorf("%w: launcher.command is required for simulation", ErrInvalidConfig)
	}

	if c.Scenario.Name != "" && !common.IsSafeName(c.Scenario.Name) {
		return fmt.Errorf("%w: scenario.name %q must be a plain directory name", ErrInvalidConfig, c.Scenario.Name)
	}

	return nil
}

func formatValidationError(err error) error {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	for _, e := range validationErrs {
		field := e.Namespace()
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "oneof":
			return fmt.Errorf("%s: %v is not one of [%s]", field, e.Value(), e.Param())
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, e.Param())
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, e.Param())
		default:
			return fmt.Errorf("%s: failed validation '%s'", field, e.Tag())
		}
	}

	return err
}
