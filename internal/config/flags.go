package config

import (
	"github.com/spf13/pflag"
)

// Flags binds the command line overrides. Only flags the user actually set
// are applied over the file values.
type Flags struct {
	set        *pflag.FlagSet
	ConfigFile string
	values     *Config
	apply      map[string]func(dst *Config, src *Config)
}

func RegisterFlags(set *pflag.FlagSet) *Flags {
	defaults := Default()
	flags := &Flags{
		set:    set,
		values: Default(),
		apply:  map[string]func(dst *Config, src *Config){},
	}
	v := flags.values

	set.StringVarP(&flags.ConfigFile, "config", "c", "", "YAML configuration file")

	set.StringVar(&v.Scenario.Name, "name", defaults.Scenario.Name, "scenario name (generated when empty)")
	flags.bind("name", func(dst, src *Config) { dst.Scenario.Name = src.Scenario.Name })
	set.StringVar(&v.Scenario.Prefix, "prefix", defaults.Scenario.Prefix, "prefix of generated scenario names")
	flags.bind("prefix", func(dst, src *Config) { dst.Scenario.Prefix = src.Scenario.Prefix })
	set.StringVar(&v.Scenario.Federation, "federation", defaults.Scenario.Federation, "federation kind: DFL, SDFL or CFL")
	flags.bind("federation", func(dst, src *Config) { dst.Scenario.Federation = src.Scenario.Federation })
	set.BoolVar(&v.Scenario.Simulation, "simulation", defaults.Scenario.Simulation, "spawn the participants locally")
	flags.bind("simulation", func(dst, src *Config) { dst.Scenario.Simulation = src.Scenario.Simulation })

	set.StringVarP(&v.Topology.Kind, "topology", "t", defaults.Topology.Kind, "topology: fully, ring, random, star or matrix")
	flags.bind("topology", func(dst, src *Config) { dst.Topology.Kind = src.Topology.Kind })
	set.IntVar(&v.Topology.NeighborNum, "neighbor-num", defaults.Topology.NeighborNum, "target degree of random topologies (0 for default)")
	flags.bind("neighbor-num", func(dst, src *Config) { dst.Topology.NeighborNum = src.Topology.NeighborNum })
	set.BoolVar(&v.Topology.Symmetric, "symmetric", defaults.Topology.Symmetric, "make every edge mutual")
	flags.bind("symmetric", func(dst, src *Config) { dst.Topology.Symmetric = src.Topology.Symmetric })
	set.BoolVar(&v.Topology.IncreaseConvergence, "increase-convergence", defaults.Topology.IncreaseConvergence, "add chords to ring topologies")
	flags.bind("increase-convergence", func(dst, src *Config) { dst.Topology.IncreaseConvergence = src.Topology.IncreaseConvergence })
	set.Int64Var(&v.Topology.Seed, "seed", defaults.Topology.Seed, "seed for randomized topologies and locations")
	flags.bind("seed", func(dst, src *Config) { dst.Topology.Seed = src.Topology.Seed })
	set.IntVar(&v.Topology.ServerIndex, "server-index", defaults.Topology.ServerIndex, "server of star topologies")
	flags.bind("server-index", func(dst, src *Config) { dst.Topology.ServerIndex = src.Topology.ServerIndex })

	set.StringVar(&v.Paths.ConfigRoot, "config-root", defaults.Paths.ConfigRoot, "root directory of scenario configurations")
	flags.bind("config-root", func(dst, src *Config) { dst.Paths.ConfigRoot = src.Paths.ConfigRoot })
	set.StringVar(&v.Paths.LogRoot, "log-root", defaults.Paths.LogRoot, "root directory of scenario logs")
	flags.bind("log-root", func(dst, src *Config) { dst.Paths.LogRoot = src.Paths.LogRoot })
	set.StringVar(&v.Paths.Templates, "templates", defaults.Paths.Templates, "directory of participant templates")
	flags.bind("templates", func(dst, src *Config) { dst.Paths.Templates = src.Paths.Templates })

	set.IntVarP(&v.Participants.Count, "participants", "n", defaults.Participants.Count, "number of generated participants")
	flags.bind("participants", func(dst, src *Config) { dst.Participants.Count = src.Participants.Count })
	set.StringVar(&v.Participants.Host, "host", defaults.Participants.Host, "address of generated participants")
	flags.bind("host", func(dst, src *Config) { dst.Participants.Host = src.Participants.Host })
	set.IntVar(&v.Participants.BasePort, "base-port", defaults.Participants.BasePort, "port of the first generated participant")
	flags.bind("base-port", func(dst, src *Config) { dst.Participants.BasePort = src.Participants.BasePort })
	set.IntVar(&v.Participants.StartIndex, "start-index", defaults.Participants.StartIndex, "generated participant flagged as start")
	flags.bind("start-index", func(dst, src *Config) { dst.Participants.StartIndex = src.Participants.StartIndex })

	set.StringVar(&v.Launcher.Kind, "launcher", defaults.Launcher.Kind, "launcher: auto, local, terminal, console or dummy")
	flags.bind("launcher", func(dst, src *Config) { dst.Launcher.Kind = src.Launcher.Kind })
	set.StringSliceVar(&v.Launcher.Command, "command", defaults.Launcher.Command, "participant program, the config path is appended")
	flags.bind("command", func(dst, src *Config) { dst.Launcher.Command = src.Launcher.Command })
	set.StringVar(&v.Launcher.WorkDir, "workdir", defaults.Launcher.WorkDir, "working directory of participant processes")
	flags.bind("workdir", func(dst, src *Config) { dst.Launcher.WorkDir = src.Launcher.WorkDir })

	set.StringVar(&v.Start.Mode, "start-mode", defaults.Start.Mode, "how to wait for peers: delay or handshake")
	flags.bind("start-mode", func(dst, src *Config) { dst.Start.Mode = src.Start.Mode })
	set.DurationVar(&v.Start.GraceInterval, "grace", defaults.Start.GraceInterval, "wait before the start node in delay mode")
	flags.bind("grace", func(dst, src *Config) { dst.Start.GraceInterval = src.Start.GraceInterval })
	set.DurationVar(&v.Start.ReadinessTimeout, "readiness-timeout", defaults.Start.ReadinessTimeout, "longest wait for peers in handshake mode")
	flags.bind("readiness-timeout", func(dst, src *Config) { dst.Start.ReadinessTimeout = src.Start.ReadinessTimeout })
	set.StringVar(&v.Start.KillPattern, "kill-pattern", defaults.Start.KillPattern, "also kill processes matching this on shutdown")
	flags.bind("kill-pattern", func(dst, src *Config) { dst.Start.KillPattern = src.Start.KillPattern })
	set.BoolVar(&v.Start.KillPorts, "kill-ports", defaults.Start.KillPorts, "also kill processes listening on participant ports on shutdown")
	flags.bind("kill-ports", func(dst, src *Config) { dst.Start.KillPorts = src.Start.KillPorts })

	set.StringVar(&v.Telemetry.LogLevel, "log-level", defaults.Telemetry.LogLevel, "trace, debug, info, warn or error")
	flags.bind("log-level", func(dst, src *Config) { dst.Telemetry.LogLevel = src.Telemetry.LogLevel })
	set.BoolVar(&v.Telemetry.Tracing, "tracing", defaults.Telemetry.Tracing, "print OpenTelemetry spans to stdout")
	flags.bind("tracing", func(dst, src *Config) { dst.Telemetry.Tracing = src.Telemetry.Tracing })
	set.StringVar(&v.Telemetry.MetricsAddr, "metrics-addr", defaults.Telemetry.MetricsAddr, "serve Prometheus metrics on this address")
	flags.bind("metrics-addr", func(dst, src *Config) { dst.Telemetry.MetricsAddr = src.Telemetry.MetricsAddr })

	return flags
}

func (flags *Flags) bind(name string, apply func(dst *Config, src *Config)) {
	flags.apply[name] = apply
}

// Apply copies every flag the user set into cfg.
func (flags *Flags) Apply(cfg *Config) {
	flags.set.Visit(func(flag *pflag.Flag) {
		if apply, found := flags.apply[flag.Name]; found {
			apply(cfg, flags.values)
		}
	})
}

// Resolve loads the configuration file if one was given, applies the flags
// and validates the result.
func (flags *Flags) Resolve() (*Config, error) {
	cfg := Default()
	if flags.ConfigFile != "" {
		loaded, err := LoadFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags.Apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
