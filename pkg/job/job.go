// Package job implements the job lifecycle store (C1): an in-process
// mapping from JobID to Job, mutated exclusively through Store.Update so
// that at most one mutator touches a job at a time.
package job

import (
	"time"

	"github.com/google/uuid"
)

// Status is the job lifecycle variant. Transitions are monotonic except
// PENDING<->RUNNING on retry; a job reaches a terminal state at most once.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether status has no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ItemStatus is the per-WorkItem lifecycle variant.
type ItemStatus string

const (
	ItemWaiting    ItemStatus = "waiting"
	ItemProcessing ItemStatus = "processing"
	ItemSuccess    ItemStatus = "success"
	ItemFailed     ItemStatus = "failed"
)

// Level is a LogEntry severity.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelDebug Level = "DEBUG"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// WorkItem is one {platform, code} unit of work within a Job.
type WorkItem struct {
	Platform   string     `json:"platform"`
	Code       string     `json:"code"`
	ItemStatus ItemStatus `json:"item_status"`
}

// LogEntry is one append-only line in a Job's log.
type LogEntry struct {
	Ts    time.Time `json:"ts"`
	Level Level     `json:"level"`
	Msg   string    `json:"msg"`
}

// Job is the durable-within-process unit C1 owns. Callers never mutate a
// Job directly; Store.Get returns a defensive copy and Store.Update is the
// only write path.
type Job struct {
	ID        uuid.UUID  `json:"id"`
	Status    Status     `json:"status"`
	Progress  int        `json:"progress"`
	Items     []WorkItem `json:"items"`
	Logs      []LogEntry `json:"logs"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// TailLogs returns the last n log entries in insertion order. n <= 0
// returns every entry (P12).
func (j Job) TailLogs(n int) []LogEntry {
	if n <= 0 || n >= len(j.Logs) {
		return j.Logs
	}
	return j.Logs[len(j.Logs)-n:]
}

// ItemStatusUpdate names one item by index and its new status.
type ItemStatusUpdate struct {
	Index  int
	Status ItemStatus
}

// Patch carries a non-empty subset of changes to apply atomically to a
// single Job. A nil field means "no change"; ProgressDelta of 0 is a
// harmless no-op add.
type Patch struct {
	Status        *Status
	AppendLog     *LogEntry
	ProgressDelta int
	ItemUpdate    *ItemStatusUpdate
}
