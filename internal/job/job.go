// Package job implements the server-side orchestrator for queued
// propagation work. Submitted jobs wait in a priority queue; worker
// goroutines run the identical engine pipeline used on the synchronous
// path and publish progress events at a bounded rate. Jobs end in
// exactly one terminal state and partial results are never published.
package job

import (
	"container/heap"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oceanus/oceanray/internal/engine"
	"github.com/oceanus/oceanray/internal/env"
)

// State is a job lifecycle state.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
	StateTimedOut  State = "timed_out"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

var (
	// ErrNotFound means no job with the given ID is known.
	ErrNotFound = errors.New("job not found")
	// ErrNotFinished means the result was requested before the job
	// reached a terminal state.
	ErrNotFinished = errors.New("job not finished")
	// ErrCancelled is returned as the result of a cancelled job.
	ErrCancelled = errors.New("job cancelled")
	// ErrTimedOut is returned as the result of a job that exceeded the
	// wall-clock ceiling.
	ErrTimedOut = errors.New("job exceeded time limit")
)

// Progress is the last reported (completed, total) ray count.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Event is one progress or state-change notification.
type Event struct {
	JobID     string `json:"job_id"`
	State     State  `json:"state"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// Snapshot is the externally visible view of a job.
type Snapshot struct {
	ID         string    `json:"id"`
	Priority   int       `json:"priority"`
	State      State     `json:"state"`
	Progress   Progress  `json:"progress"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Error      string    `json:"error,omitempty"`
}

// record is the orchestrator-internal job state, guarded by the
// orchestrator mutex.
type record struct {
	id       string
	priority int
	seq      uint64
	state    State
	env      env.Environment
	req      engine.Request
	result   *engine.Result
	err      error

	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time

	cancel    context.CancelFunc // set while running
	cancelled bool               // user-requested cancellation
	progress  Progress
}

func (r *record) snapshot() Snapshot {
	s := Snapshot{
		ID:         r.id,
		Priority:   r.priority,
		State:      r.state,
		Progress:   r.progress,
		CreatedAt:  r.createdAt,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
	}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}

// queue is a max-heap on priority, FIFO within equal priority.
type queue []*record

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(*record)) }
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

func (q *queue) remove(id string) *record {
	for i, r := range *q {
		if r.id == id {
			heap.Remove(q, i)
			return r
		}
	}
	return nil
}

// newID returns a random 12-hex-character job identifier.
func newID() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
