package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"
)

// Item is one {platform, code} unit of work passed to the per-batch
// driver via JOB_INPUT.
type Item struct {
	Platform string `json:"platform"`
	Code     string `json:"code"`
}

// DriverConfig configures how the orchestrator spawns the C6 subprocess.
type DriverConfig struct {
	Command []string
}

// RunDriver spawns the per-batch driver with items JSON-encoded into
// JOB_INPUT, streams its stdout to the host log sink (spec.md §4.5 step
// 4), and returns its exit code.
func RunDriver(ctx context.Context, logger *log.Logger, cfg DriverConfig, items []Item) (exitCode int, err error) {
	if len(cfg.Command) == 0 {
		return -1, fmt.Errorf("batch: no driver command configured")
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return -1, fmt.Errorf("encoding job input: %w", err)
	}

	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	cmd.Env = append(os.Environ(), "JOB_INPUT="+string(payload))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("opening stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("starting driver subprocess: %w", err)
	}

	go streamLines(stdout, func(line string) { logger.Info("driver", "line", line) })
	go streamLines(stderr, func(line string) { logger.Error("driver", "line", line) })

	waitErr := cmd.Wait()
	if waitErr == nil {
		return 0, nil
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode(), waitErr
	}
	return -1, waitErr
}

func streamLines(r io.Reader, handle func(string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		handle(scanner.Text())
	}
}
