package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alexcolls/oriane-sub000/pkg/sourcetable"
)

// SourceTable is the subset of pkg/sourcetable.Store the orchestrator
// needs.
type SourceTable interface {
	NextBatch(ctx context.Context, cursorID int64, limit int) ([]sourcetable.Row, error)
	MarkExtracted(ctx context.Context, ids []int64) error
	LookupIDsByCode(ctx context.Context, codes []string) (map[string]int64, error)
}

// Verifier is the subset of pkg/verify.Verifier the orchestrator needs.
type Verifier interface {
	VerifyBatch(ctx context.Context, codes []string) map[string]bool
	MarkEmbedded(ctx context.Context, codes []string) error
}

// Config parameterizes one orchestrator run, mapping directly to
// spec.md §6's enumerated configuration keys.
type Config struct {
	BatchSize         int
	InterBatchDelay   time.Duration
	MaxRetries        int
	EmptyBatchRetries int
	EmptyBatchBackoff time.Duration
	Driver            DriverConfig
}

// Orchestrator runs the C5 main loop and retry phase.
type Orchestrator struct {
	source     SourceTable
	verifier   Verifier
	checkpoint *Checkpoint
	retrySet   *RetrySet
	logger     *log.Logger
	cfg        Config
}

func NewOrchestrator(source SourceTable, verifier Verifier, checkpoint *Checkpoint, logger *log.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		source:     source,
		verifier:   verifier,
		checkpoint: checkpoint,
		retrySet:   NewRetrySet(),
		logger:     logger,
		cfg:        cfg,
	}
}

// Run drives the main pass followed by the retry phase, returning the
// process exit code per spec.md §6: 0 on clean drain, 1 when the retry
// phase ends with a non-empty failure set.
func (o *Orchestrator) Run(ctx context.Context) int {
	if err := o.mainPass(ctx); err != nil {
		o.logger.Error("fatal error in batch orchestrator main pass", "error", err)
		return 2
	}

	if o.retrySet.Len() == 0 {
		return 0
	}

	remaining := o.retryPhase(ctx)
	if remaining > 0 {
		o.logger.Error("retry phase ended with permanently failing codes", "count", remaining)
		return 1
	}
	return 0
}

// mainPass walks the source table in batches until it observes
// EmptyBatchRetries consecutive empty reads, or the context is cancelled.
func (o *Orchestrator) mainPass(ctx context.Context) error {
	cursor, err := o.checkpoint.Load()
	if err != nil {
		return fmt.Errorf("loading checkpoint: %w", err)
	}

	// scan is the in-memory read position. It moves past every batch,
	// including failed ones, while cursor only advances when a batch
	// succeeds and its checkpoint is saved.
	scan := cursor
	emptyStreak := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		rows, err := o.source.NextBatch(ctx, scan, o.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("selecting next batch: %w", err)
		}

		if len(rows) == 0 {
			emptyStreak++
			if emptyStreak >= o.cfg.EmptyBatchRetries {
				return nil
			}
			o.sleep(ctx, o.cfg.EmptyBatchBackoff)
			continue
		}
		emptyStreak = 0

		cursor = o.runBatch(ctx, rows, cursor)
		if last := rows[len(rows)-1].ID; last > scan {
			scan = last
		}

		o.sleep(ctx, o.cfg.InterBatchDelay)
	}
}

// runBatch drives one batch through the subprocess, verification, and
// checkpoint advance, returning the checkpointed cursor (unchanged on
// failure, per P9).
func (o *Orchestrator) runBatch(ctx context.Context, rows []sourcetable.Row, cursor int64) int64 {
	items := make([]Item, len(rows))
	ids := make([]int64, len(rows))
	codes := make([]string, len(rows))
	maxID := cursor
	for i, r := range rows {
		items[i] = Item{Platform: r.Platform, Code: r.Code}
		ids[i] = r.ID
		codes[i] = r.Code
		if r.ID > maxID {
			maxID = r.ID
		}
	}

	exitCode, err := RunDriver(ctx, o.logger, o.cfg.Driver, items)
	if exitCode != 0 || err != nil {
		o.logger.Error("batch driver exited non-zero", "exit_code", exitCode, "error", err)
		o.retrySet.AddAll(codes)
		return cursor
	}

	if err := o.source.MarkExtracted(ctx, ids); err != nil {
		o.logger.Error("marking batch extracted", "error", err)
		o.retrySet.AddAll(codes)
		return cursor
	}

	verified := o.verifier.VerifyBatch(ctx, codes)
	var embeddedCodes []string
	for _, code := range codes {
		if verified[code] {
			embeddedCodes = append(embeddedCodes, code)
		}
	}
	if len(embeddedCodes) > 0 {
		if err := o.verifier.MarkEmbedded(ctx, embeddedCodes); err != nil {
			o.logger.Error("marking batch embedded", "error", err)
		}
	}

	if err := o.checkpoint.Save(maxID); err != nil {
		o.logger.Error("persisting checkpoint", "error", err)
		return cursor
	}
	return maxID
}

// retryPhase drains the RetrySet one code at a time with exponential
// backoff, up to MaxRetries rounds. Returns the number of codes that
// still failed after exhausting retries.
func (o *Orchestrator) retryPhase(ctx context.Context) int {
	for attempt := 0; attempt < o.cfg.MaxRetries; attempt++ {
		if o.retrySet.Len() == 0 {
			break
		}

		backoff := backoffFor(attempt)
		o.sleep(ctx, backoff)

		for _, code := range o.retrySet.Codes() {
			exitCode, err := RunDriver(ctx, o.logger, o.cfg.Driver, []Item{{Code: code}})
			if exitCode != 0 || err != nil {
				continue
			}

			ids, lookupErr := o.source.LookupIDsByCode(ctx, []string{code})
			if lookupErr != nil {
				o.logger.Error("looking up retried code's source row", "code", code, "error", lookupErr)
				continue
			}
			id, ok := ids[code]
			if !ok {
				o.logger.Warn("retried code has no source-row mapping, skipping mark_extracted", "code", code)
				o.retrySet.Remove(code)
				continue
			}
			if err := o.source.MarkExtracted(ctx, []int64{id}); err != nil {
				o.logger.Error("marking retried code extracted", "code", code, "error", err)
				continue
			}
			o.retrySet.Remove(code)
		}
	}
	return o.retrySet.Len()
}

func backoffFor(attempt int) time.Duration {
	seconds := 1 << attempt
	if seconds > 30 {
		seconds = 30
	}
	return time.Duration(seconds) * time.Second
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
