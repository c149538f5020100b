// Package driver implements the C6 per-batch driver: reads JOB_INPUT,
// processes each item sequentially (download, pipeline invocation, frame
// upload + embedding upsert, progress beacon), and records per-item
// failures without aborting the batch.
package driver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/alexcolls/oriane-sub000/pkg/pipeline"
)

// Item is one {platform, code} unit of work, the JOB_INPUT element shape.
type Item struct {
	Platform string `json:"platform"`
	Code     string `json:"code"`
}

// VideoSource resolves and fetches the source video for an item.
type VideoSource interface {
	// LocalPath returns a usable local file path for (platform, code) if
	// one already exists on disk, without downloading anything.
	LocalPath(platform, code string) (string, bool)
	// Download fetches the remote video into a local temp file and
	// returns its path. Returns ErrVideoNotFound if the remote key is
	// missing.
	Download(ctx context.Context, platform, code string) (string, error)
}

// ErrVideoNotFound is returned by VideoSource.Download when the source
// object doesn't exist.
var ErrVideoNotFound = fmt.Errorf("driver: source video not found")

// FrameSink uploads extracted frames.
type FrameSink interface {
	UploadFrame(ctx context.Context, platform, code string, frameNumber int, frameSecond float64, data []byte) error
}

// MediaPipeline is the subset of pkg/pipeline.MediaPipeline this driver
// needs.
type MediaPipeline interface {
	Process(ctx context.Context, platform, code, localVideoPath string) (pipeline.Result, error)
	UpsertEmbeddings(ctx context.Context, platform, code string, frames []pipeline.Frame) error
}

// ErrorSink records a per-item failure, mirroring
// pkg/sourcetable.Store.InsertError.
type ErrorSink interface {
	InsertError(ctx context.Context, code, errText string) error
}

// Config configures one driver invocation.
type Config struct {
	InterItemDelay time.Duration
}

// Driver runs the C6 lifecycle for one batch.
type Driver struct {
	videos   VideoSource
	frames   FrameSink
	pipeline MediaPipeline
	errors   ErrorSink
	cfg      Config
	stdout   io.Writer
	stderr   io.Writer
}

func New(videos VideoSource, frames FrameSink, pipeline MediaPipeline, errors ErrorSink, cfg Config) *Driver {
	return &Driver{
		videos:   videos,
		frames:   frames,
		pipeline: pipeline,
		errors:   errors,
		cfg:      cfg,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
}

// RunBatch processes items sequentially and returns true iff every item
// succeeded (the caller translates this into the process exit code).
func (d *Driver) RunBatch(ctx context.Context, items []Item) bool {
	out := bufio.NewWriter(d.stdout)
	defer out.Flush()

	allSucceeded := true
	done := 0

	for i, item := range items {
		if err := d.processItem(ctx, item); err != nil {
			allSucceeded = false
			fmt.Fprintf(d.stderr, "ERROR processing %s/%s: %v\n", item.Platform, item.Code, err)
			if d.errors != nil {
				_ = d.errors.InsertError(ctx, item.Code, err.Error())
			}
		} else {
			done++
			beacon, _ := json.Marshal(map[string]int{"item_done": done})
			fmt.Fprintln(out, string(beacon))
			out.Flush()
		}

		if i < len(items)-1 && d.cfg.InterItemDelay > 0 {
			select {
			case <-time.After(d.cfg.InterItemDelay):
			case <-ctx.Done():
				return allSucceeded && done == len(items)
			}
		}
	}

	return allSucceeded
}

func (d *Driver) processItem(ctx context.Context, item Item) error {
	localPath, ok := d.videos.LocalPath(item.Platform, item.Code)
	if !ok {
		downloaded, err := d.videos.Download(ctx, item.Platform, item.Code)
		if err != nil {
			return err
		}
		localPath = downloaded
	}

	result, err := d.pipeline.Process(ctx, item.Platform, item.Code, localPath)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, f := range result.Frames {
			if err := d.frames.UploadFrame(ctx, item.Platform, item.Code, f.Number, f.Second, f.PNG); err != nil {
				errs[0] = err
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		errs[1] = d.pipeline.UpsertEmbeddings(ctx, item.Platform, item.Code, result.Frames)
	}()
	wg.Wait()

	if errs[0] != nil {
		return errs[0]
	}
	return errs[1]
}
