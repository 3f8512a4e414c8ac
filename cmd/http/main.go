package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/observability"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/server"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
)

func main() {
	listen := pflag.String("listen", ":8080", "address of the HTTP API")
	flags := config.RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	cfg, err := flags.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}

	_ = os.MkdirAll(cfg.Paths.LogRoot, 0755)
	logFile, err := os.OpenFile(filepath.Join(cfg.Paths.LogRoot, common.CONTROLLER_LOG_NAME),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := logFile.Close(); err != nil {
			panic(err)
		}
	}()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "dfl-orch",
		Level:  hclog.LevelFromString(cfg.Telemetry.LogLevel),
		Output: io.MultiWriter(os.Stdout, logFile),
	})

	metrics, err := observability.NewCollector(nil)
	if err != nil {
		logger.Error("Error while registering metrics", "error", err)
		return
	}

	eventBus := events.NewEventBus()

	handler := server.NewHandler(logger, eventBus, metrics, cfg)

	server.StartHttpServer(logger, *listen, handler.Router(), func() {
		handler.StopAll()
	})
}
