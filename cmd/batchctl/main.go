// Command batchctl runs the C5 batch orchestrator: it walks the source
// table in batches, dispatches each batch to the C6 per-batch driver
// subprocess, verifies embeddings against the vector store, and persists a
// crash-safe checkpoint.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alexcolls/oriane-sub000/pkg/batch"
	"github.com/alexcolls/oriane-sub000/pkg/config"
	"github.com/alexcolls/oriane-sub000/pkg/logging"
	"github.com/alexcolls/oriane-sub000/pkg/sourcetable"
	"github.com/alexcolls/oriane-sub000/pkg/vectorstore"
	"github.com/alexcolls/oriane-sub000/pkg/verify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		logger.Info("received shutdown signal, finishing in-flight batch")
		cancel()
	}()

	source, err := openSourceTable(ctx, cfg)
	if err != nil {
		logger.Error("opening source table", "error", err)
		os.Exit(2)
	}
	defer source.Close()

	scheme, host, err := splitWeaviateURL(cfg.WeaviateURL)
	if err != nil {
		logger.Error("parsing weaviate url", "error", err)
		os.Exit(2)
	}
	vectors, err := vectorstore.New(scheme, host, cfg.WeaviateAPIKey, cfg.VectorCollection)
	if err != nil {
		logger.Error("building vector store client", "error", err)
		os.Exit(2)
	}

	verifier := verify.New(vectors, source, logger)
	checkpoint := batch.NewCheckpoint(cfg.CheckpointFile)

	orchestrator := batch.NewOrchestrator(source, verifier, checkpoint, logger, batch.Config{
		BatchSize:         cfg.BatchSize,
		InterBatchDelay:   cfg.InterBatchDelay,
		MaxRetries:        cfg.MaxRetries,
		EmptyBatchRetries: cfg.EmptyBatchRetries,
		EmptyBatchBackoff: cfg.EmptyBatchBackoff,
		Driver:            batch.DriverConfig{Command: strings.Fields(cfg.BatchDriverCommand)},
	})

	os.Exit(orchestrator.Run(ctx))
}

// sourceTable is the subset of sourcetable.Store the orchestrator and
// verifier need, shared so either backend can be selected at runtime.
type sourceTable interface {
	batch.SourceTable
	verify.SourceTable
	Close() error
}

func openSourceTable(ctx context.Context, cfg *config.Config) (sourceTable, error) {
	if cfg.SourceDBDSN != "" {
		return sourcetable.NewPostgresStore(ctx, cfg.SourceDBDSN)
	}
	return sourcetable.NewSQLiteStore(ctx, cfg.SQLitePath)
}

func splitWeaviateURL(raw string) (scheme, host string, err error) {
	if raw == "" {
		return "", "", fmt.Errorf("WEAVIATE_URL is not configured")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid WEAVIATE_URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("WEAVIATE_URL %q must include a scheme and host", raw)
	}
	return u.Scheme, u.Host, nil
}
