package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/florch"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/observability"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	set := pflag.NewFlagSet("dfl", pflag.ContinueOnError)
	flags := config.RegisterFlags(set)
	removeConfigs := set.Bool("remove-configs", false, "delete the .json and .png files in the config root and exit")
	removeScenario := set.String("remove-scenario", "", "delete the config and log directories of a scenario and exit")

	if err := set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := flags.Resolve()
	if err != nil {
		return err
	}

	if *removeConfigs {
		removed, err := florch.RemoveConfigFiles(cfg.Paths.ConfigRoot)
		fmt.Printf("Removed %d files from %s\n", removed, cfg.Paths.ConfigRoot)
		return err
	}
	if *removeScenario != "" {
		if err := florch.RemoveScenarioFiles(cfg.Paths.ConfigRoot, cfg.Paths.LogRoot, *removeScenario); err != nil {
			return err
		}
		fmt.Printf("Removed scenario %s\n", *removeScenario)
		return nil
	}

	if err := os.MkdirAll(cfg.Paths.LogRoot, 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.Paths.LogRoot, common.CONTROLLER_LOG_NAME),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "dfl-orch",
		Level:  hclog.LevelFromString(cfg.Telemetry.LogLevel),
		Output: io.MultiWriter(os.Stdout, logFile),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Telemetry.Tracing,
		ServiceName: "dfl-orchestrator",
	}, logger)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(shutdownTracing, 5*time.Second)

	metrics, err := observability.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	if cfg.Telemetry.MetricsAddr != "" {
		serveMetrics(logger, cfg.Telemetry.MetricsAddr, metrics)
	}

	eventBus := events.NewEventBus()

	supervisor, err := florch.NewSupervisor(cfg, eventBus, metrics, logger)
	if err != nil {
		return err
	}

	orch := florch.NewDflOrchestrator(cfg, supervisor, eventBus, metrics, logger.Named("orchestrator"))

	if err := orch.Start(ctx); err != nil {
		orch.Stop()
		if ctx.Err() != nil {
			logger.Info("Interrupted while starting, participants stopped")
			return nil
		}
		return err
	}

	logger.Info(fmt.Sprintf("Scenario %s running, press Ctrl+C to stop", orch.Scenario().Name))
	<-ctx.Done()

	killed := orch.Stop()
	logger.Info(fmt.Sprintf("Scenario %s stopped, %d processes killed", orch.Scenario().Name, killed))

	return nil
}

func serveMetrics(logger hclog.Logger, addr string, metrics *observability.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	go func() {
		logger.Info(fmt.Sprintf("Serving metrics on %s", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Error serving metrics", "error", err)
		}
	}()
}
