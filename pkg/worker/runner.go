// Package worker implements the C3 worker runner: given a job's items, it
// spawns the extraction subprocess, streams its stdout/stderr, drives the
// job store through PENDING -> RUNNING -> terminal, and surfaces progress
// beacons via pkg/beacon. Subprocess plumbing follows
// pkg/coreml/process.go's StdoutPipe + bufio.Scanner shape.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/alexcolls/oriane-sub000/pkg/beacon"
	"github.com/alexcolls/oriane-sub000/pkg/job"
)

// Item is the (platform, code) pair a runner invocation carries to the
// subprocess via JOB_INPUT.
type Item struct {
	Platform string `json:"platform"`
	Code     string `json:"code"`
}

// Config configures how a single invocation spawns its subprocess.
type Config struct {
	// Entrypoint is the command (and leading args) for the extraction
	// subprocess, e.g. []string{"python3", "-m", "pipeline"}.
	Entrypoint []string
	// DebugPipeline, when true, also relays every child stdout line to
	// the host log sink (spec.md §4.3 step 4).
	DebugPipeline bool
	// ExtraEnv is appended to the child's environment (credentials etc.),
	// beyond JOB_INPUT and DEBUG_PIPELINE.
	ExtraEnv []string
}

// Runner drives one job's extraction subprocess end to end, patching the
// job store as it streams the child's output.
type Runner struct {
	store  *job.Store
	logger *log.Logger
	cfg    Config
}

// New creates a Runner bound to a job store and host logger.
func New(store *job.Store, logger *log.Logger, cfg Config) *Runner {
	return &Runner{store: store, logger: logger, cfg: cfg}
}

// Run executes the full C3 lifecycle for jobID: queued -> running -> the
// subprocess is spawned and its output streamed -> terminal status. It
// never retries; retries are the caller's (C5 or the HTTP client's)
// responsibility.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID, items []Item) error {
	r.store.Update(jobID, job.Patch{
		Status:    statusPtr(job.StatusPending),
		AppendLog: logEntry(job.LevelInfo, "queued"),
	})
	r.store.Update(jobID, job.Patch{
		Status:    statusPtr(job.StatusRunning),
		AppendLog: logEntry(job.LevelInfo, "started"),
	})

	payload, err := json.Marshal(items)
	if err != nil {
		r.fail(jobID, fmt.Sprintf("encoding job input: %v", err))
		return err
	}

	if len(r.cfg.Entrypoint) == 0 {
		r.fail(jobID, "no pipeline entrypoint configured")
		return fmt.Errorf("worker: empty entrypoint")
	}

	cmd := exec.CommandContext(ctx, r.cfg.Entrypoint[0], r.cfg.Entrypoint[1:]...)
	cmd.Env = append(os.Environ(), r.cfg.ExtraEnv...)
	cmd.Env = append(cmd.Env, "JOB_INPUT="+string(payload))
	if r.cfg.DebugPipeline {
		cmd.Env = append(cmd.Env, "DEBUG_PIPELINE=1")
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.fail(jobID, fmt.Sprintf("opening stdout pipe: %v", err))
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.fail(jobID, fmt.Sprintf("opening stderr pipe: %v", err))
		return err
	}

	if err := cmd.Start(); err != nil {
		r.fail(jobID, fmt.Sprintf("starting subprocess: %v", err))
		return err
	}

	tracker := beacon.NewTracker(len(items))
	itemsMarked := 0
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		r.store.Update(jobID, job.Patch{AppendLog: logEntry(job.LevelInfo, line)})
		if r.cfg.DebugPipeline {
			r.logger.Info("child stdout", "job", jobID, "line", line)
		}
		if delta := tracker.Feed(line); delta > 0 {
			r.store.Update(jobID, job.Patch{ProgressDelta: delta})
		}
		for itemsMarked < tracker.Done() && itemsMarked < len(items) {
			r.store.Update(jobID, job.Patch{ItemUpdate: &job.ItemStatusUpdate{Index: itemsMarked, Status: job.ItemSuccess}})
			itemsMarked++
		}
	}

	stderrText, _ := io.ReadAll(stderr)
	if len(stderrText) > 0 {
		for _, line := range strings.Split(strings.TrimRight(string(stderrText), "\n"), "\n") {
			if line == "" {
				continue
			}
			r.store.Update(jobID, job.Patch{AppendLog: logEntry(job.LevelError, line)})
		}
	}

	waitErr := cmd.Wait()
	if waitErr == nil {
		if delta := tracker.FinalDelta(); delta > 0 {
			r.store.Update(jobID, job.Patch{ProgressDelta: delta})
		}
		for ; itemsMarked < len(items); itemsMarked++ {
			r.store.Update(jobID, job.Patch{ItemUpdate: &job.ItemStatusUpdate{Index: itemsMarked, Status: job.ItemSuccess}})
		}
		r.store.Update(jobID, job.Patch{
			Status:    statusPtr(job.StatusCompleted),
			AppendLog: logEntry(job.LevelInfo, "extraction completed"),
		})
		return nil
	}

	if itemsMarked < len(items) {
		r.store.Update(jobID, job.Patch{ItemUpdate: &job.ItemStatusUpdate{Index: itemsMarked, Status: job.ItemFailed}})
	}

	exitCode := -1
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}
	msg := fmt.Sprintf("subprocess exited with code %d: %s", exitCode, lastLine(string(stderrText)))
	r.fail(jobID, msg)
	return waitErr
}

func (r *Runner) fail(jobID uuid.UUID, msg string) {
	r.store.Update(jobID, job.Patch{
		Status:    statusPtr(job.StatusFailed),
		AppendLog: logEntry(job.LevelError, msg),
	})
}

func statusPtr(s job.Status) *job.Status { return &s }

func logEntry(level job.Level, msg string) *job.LogEntry {
	return &job.LogEntry{Ts: time.Now(), Level: level, Msg: msg}
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return "(no stderr output)"
	}
	parts := strings.Split(s, "\n")
	return parts[len(parts)-1]
}
