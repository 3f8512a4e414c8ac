package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
)

// StartHttpServer serves defaultRouter on addr until SIGINT or SIGTERM, then
// runs onShutdown and drains the server.
func StartHttpServer(logger hclog.Logger, addr string, defaultRouter http.Handler, onShutdown func()) {
	// create a new server
	server := &http.Server{
		Addr:     addr,
		Handler:  defaultRouter,
		ErrorLog: logger.StandardLogger(&hclog.StandardLoggerOptions{}),
	}

	// start the server
	go func() {
		logger.Info(fmt.Sprintf("Starting server on %s", addr))

		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Error starting server", "error", err)
			os.Exit(1)
		}
	}()

	// trap sigterm or interupt and gracefully shutdown the server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	// Block until a signal is received.
	sig := <-c
	logger.Info(fmt.Sprintf("Got signal: %s", sig))

	if onShutdown != nil {
		onShutdown()
	}

	// gracefully shutdown the server, waiting max 30 seconds for current operations to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}
