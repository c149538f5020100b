// Command server runs the C4 HTTP control plane: it accepts extraction
// requests, dispatches each job onto the C2 concurrency pool, and serves
// job status reads, following cmd/coreml_inference_server's
// listen-then-graceful-shutdown shape.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alexcolls/oriane-sub000/pkg/concurrency"
	"github.com/alexcolls/oriane-sub000/pkg/config"
	"github.com/alexcolls/oriane-sub000/pkg/httpapi"
	"github.com/alexcolls/oriane-sub000/pkg/job"
	"github.com/alexcolls/oriane-sub000/pkg/logging"
	"github.com/alexcolls/oriane-sub000/pkg/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	store := job.NewStore()

	pool := concurrency.NewPool(cfg.MaxParallelJobs)
	pool.Start()

	runner := worker.New(store, logger, worker.Config{
		Entrypoint:    strings.Fields(cfg.PipelineEntrypoint),
		DebugPipeline: cfg.DebugPipeline,
	})

	server := httpapi.New(store, pool, runner, logger, cfg.MaxVideosPerRequest)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(),
	}

	go func() {
		logger.Info("starting extraction control plane", "address", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	pool.Stop(cfg.ShutdownGracePeriod)
}
