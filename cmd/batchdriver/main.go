// Command batchdriver is the C6 per-batch subprocess: it reads JOB_INPUT,
// downloads (or reuses) each item's source video, runs the media pipeline,
// uploads frames and embeddings, and emits progress beacons on stdout. It
// is spawned by batchctl once per batch and exits 0 only if every item in
// the batch succeeded.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alexcolls/oriane-sub000/pkg/config"
	"github.com/alexcolls/oriane-sub000/pkg/driver"
	"github.com/alexcolls/oriane-sub000/pkg/objectstore"
	"github.com/alexcolls/oriane-sub000/pkg/pipeline"
	"github.com/alexcolls/oriane-sub000/pkg/sourcetable"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading config:", err)
		os.Exit(1)
	}

	ctx := context.Background()

	items, err := readJobInput()
	if err != nil {
		fmt.Fprintln(os.Stderr, "reading JOB_INPUT:", err)
		os.Exit(1)
	}

	s3Client, err := objectstore.NewClient(ctx, cfg.AWSRegion)
	if err != nil {
		fmt.Fprintln(os.Stderr, "building s3 client:", err)
		os.Exit(1)
	}
	store := objectstore.New(s3Client, cfg.VideosBucket, cfg.FramesBucket)

	scratchDir, err := os.MkdirTemp("", "oriane-sub000-batchdriver-")
	if err != nil {
		fmt.Fprintln(os.Stderr, "creating scratch dir:", err)
		os.Exit(1)
	}
	defer os.RemoveAll(scratchDir)

	errorSink, err := openErrorSink(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "opening source table:", err)
		os.Exit(1)
	}
	defer errorSink.Close()

	d := driver.New(
		driver.NewS3VideoSource(store, scratchDir),
		store,
		&pipeline.Stub{},
		errorSink,
		driver.Config{InterItemDelay: cfg.InterItemDelay},
	)

	if d.RunBatch(ctx, items) {
		os.Exit(0)
	}
	os.Exit(1)
}

func readJobInput() ([]driver.Item, error) {
	raw := os.Getenv("JOB_INPUT")
	if raw == "" {
		return nil, fmt.Errorf("JOB_INPUT is empty")
	}
	var items []driver.Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// errorSink is the subset of sourcetable.Store this command needs.
type errorSink interface {
	driver.ErrorSink
	Close() error
}

func openErrorSink(ctx context.Context, cfg *config.Config) (errorSink, error) {
	if cfg.SourceDBDSN != "" {
		return sourcetable.NewPostgresStore(ctx, cfg.SourceDBDSN)
	}
	return sourcetable.NewSQLiteStore(ctx, cfg.SQLitePath)
}
