package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the serialized, in-process job map specified by C1. A single
// mutex guards the whole map — coarse-grained but, per the spec's §5 note,
// acceptable at this scale since no mutation holds the lock across I/O.
type Store struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

// NewStore constructs an empty job store. Tests and process entrypoints
// each own their own instance; there is no package-level singleton.
func NewStore() *Store {
	return &Store{jobs: make(map[uuid.UUID]*Job)}
}

// Create allocates a new Job in StatusPending with the given items, each
// starting ItemWaiting.
func (s *Store) Create(items []WorkItem) Job {
	now := time.Now()
	j := &Job{
		ID:        uuid.New(),
		Status:    StatusPending,
		Progress:  0,
		Items:     append([]WorkItem(nil), items...),
		Logs:      nil,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i := range j.Items {
		j.Items[i].ItemStatus = ItemWaiting
	}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()

	return j.copy()
}

// Get returns a snapshot of the job, and ok=false if id is unknown.
func (s *Store) Get(id uuid.UUID) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.copy(), true
}

// Update applies patch atomically. It panics on an unknown id: per spec
// §4.1, update on an unknown ID is a fatal programming error — every
// caller in this codebase only updates jobs it just created or fetched.
func (s *Store) Update(id uuid.UUID, patch Patch) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		panic(fmt.Sprintf("job: Update called on unknown job id %s", id))
	}

	if patch.Status != nil {
		applyStatus(j, *patch.Status)
	}
	if patch.AppendLog != nil {
		j.Logs = append(j.Logs, *patch.AppendLog)
	}
	if patch.ProgressDelta != 0 {
		j.Progress = clamp(j.Progress+patch.ProgressDelta, 0, 100)
	}
	if patch.ItemUpdate != nil {
		applyItemUpdate(j, *patch.ItemUpdate)
	}

	j.UpdatedAt = time.Now()
	return j.copy()
}

// applyStatus enforces monotonicity: PENDING<->RUNNING is allowed (retry),
// but once a job reaches a terminal state, further transitions are no-ops.
func applyStatus(j *Job, next Status) {
	if j.Status.Terminal() {
		return
	}
	if next == StatusCompleted {
		j.Progress = 100
	}
	j.Status = next
}

// applyItemUpdate enforces monotonicity on a single item: success is
// terminal; failed may only move back to processing or waiting (a retry),
// and any other update of a failed item is ignored.
func applyItemUpdate(j *Job, u ItemStatusUpdate) {
	if u.Index < 0 || u.Index >= len(j.Items) {
		return
	}
	cur := j.Items[u.Index].ItemStatus
	if cur == ItemSuccess {
		return
	}
	if cur == ItemFailed && u.Status != ItemProcessing && u.Status != ItemWaiting {
		return
	}
	j.Items[u.Index].ItemStatus = u.Status
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// copy returns a deep-enough copy for safe concurrent reads: slices are
// re-sliced into fresh backing arrays so a caller mutating the returned
// Job never corrupts the store.
func (j *Job) copy() Job {
	out := *j
	out.Items = append([]WorkItem(nil), j.Items...)
	out.Logs = append([]LogEntry(nil), j.Logs...)
	return out
}
