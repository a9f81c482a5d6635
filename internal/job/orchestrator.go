package job

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oceanus/oceanray/internal/engine"
	"github.com/oceanus/oceanray/internal/env"
	"github.com/oceanus/oceanray/internal/metrics"
)

// Config holds orchestrator tuning loaded from environment variables.
type Config struct {
	Workers          int           // concurrent job workers (default: 1)
	Timeout          time.Duration // hard wall-clock ceiling per job
	ProgressInterval time.Duration // minimum time between progress events
	HistoryLimit     int           // finished jobs retained for result pickup
}

// subscriber is one progress-event listener with a drop-oldest buffer.
type subscriber struct {
	ch     chan Event
	closed bool
}

// Orchestrator owns the job queue, the worker goroutines and the
// progress broadcast.
type Orchestrator struct {
	engine *engine.Engine
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	queue    queue
	jobs     map[string]*record
	finished []string // terminal job IDs, oldest first, for pruning
	seq      uint64
	subs     map[string][]*subscriber

	wake chan struct{}
}

// NewOrchestrator creates an orchestrator; Start must be called before
// submitted jobs run.
func NewOrchestrator(eng *engine.Engine, config Config, logger *slog.Logger) *Orchestrator {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.HistoryLimit < 1 {
		config.HistoryLimit = 100
	}
	return &Orchestrator{
		engine: eng,
		config: config,
		logger: logger,
		jobs:   make(map[string]*record),
		subs:   make(map[string][]*subscriber),
		wake:   make(chan struct{}, 1),
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	for i := 0; i < o.config.Workers; i++ {
		go o.workerLoop(ctx)
	}
	o.logger.Info("job orchestrator started",
		"workers", o.config.Workers,
		"timeout_seconds", o.config.Timeout.Seconds(),
	)
}

// Submit validates and enqueues a job, returning its ID. Validation
// failures surface immediately; nothing invalid ever reaches the queue.
func (o *Orchestrator) Submit(m env.Environment, req engine.Request, priority int) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	if err := m.ValidateSource(req.SourceDepth); err != nil {
		return "", err
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	o.mu.Lock()
	o.seq++
	r := &record{
		id:        newID(),
		priority:  priority,
		seq:       o.seq,
		state:     StateQueued,
		env:       m,
		req:       req,
		createdAt: time.Now(),
	}
	o.jobs[r.id] = r
	heap.Push(&o.queue, r)
	depth := o.queue.Len()
	o.mu.Unlock()

	metrics.SetQueueDepth(depth)
	o.logger.Info("job queued", "job_id", r.id, "priority", priority, "queue_depth", depth)

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return r.id, nil
}

// Get returns the snapshot for a job.
func (o *Orchestrator) Get(id string) (Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return r.snapshot(), true
}

// Progress returns the last reported progress and state for a job.
func (o *Orchestrator) Progress(id string) (Progress, State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.jobs[id]
	if !ok {
		return Progress{}, "", false
	}
	return r.progress, r.state, true
}

// Cancel removes a queued job immediately or flags a running one; the
// running pipeline notices between rays. Cancelling a finished job is a
// no-op.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	r, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return ErrNotFound
	}

	switch r.state {
	case StateQueued:
		o.queue.remove(id)
		r.state = StateCancelled
		r.cancelled = true
		r.err = ErrCancelled
		r.finishedAt = time.Now()
		o.finished = append(o.finished, id)
		depth := o.queue.Len()
		o.mu.Unlock()
		metrics.SetQueueDepth(depth)
		metrics.IncJobState(string(StateCancelled))
		o.prune()
		o.publish(Event{JobID: id, State: StateCancelled}, true)
		o.logger.Info("queued job cancelled", "job_id", id)
		return nil

	case StateRunning:
		r.cancelled = true
		cancel := r.cancel
		o.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		o.logger.Info("running job cancellation requested", "job_id", id)
		return nil

	default:
		o.mu.Unlock()
		return nil
	}
}

// Result returns the final grid/rays for a finished job, or the error
// matching its terminal state. Unfinished jobs return ErrNotFinished.
func (o *Orchestrator) Result(id string) (*engine.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	switch r.state {
	case StateDone:
		return r.result, nil
	case StateCancelled:
		return nil, ErrCancelled
	case StateTimedOut:
		return nil, ErrTimedOut
	case StateFailed:
		return nil, r.err
	default:
		return nil, ErrNotFinished
	}
}

// QueueDepth returns the number of jobs waiting to run.
func (o *Orchestrator) QueueDepth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.Len()
}

// Subscribe registers a progress-event listener for a job. The returned
// function unsubscribes; it is safe to call after the stream closed.
// Events may be coalesced under load (the buffer drops the oldest), but
// the terminal event is always the last one delivered.
func (o *Orchestrator) Subscribe(id string) (<-chan Event, func(), bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.jobs[id]
	if !ok {
		return nil, nil, false
	}

	sub := &subscriber{ch: make(chan Event, 16)}
	if r.state.Terminal() {
		// Already finished: deliver the terminal event and close.
		sub.ch <- Event{JobID: id, State: r.state, Completed: r.progress.Completed, Total: r.progress.Total}
		close(sub.ch)
		sub.closed = true
		return sub.ch, func() {}, true
	}

	o.subs[id] = append(o.subs[id], sub)
	unsubscribe := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		subs := o.subs[id]
		for i, s := range subs {
			if s == sub {
				o.subs[id] = append(subs[:i], subs[i+1:]...)
				if !s.closed {
					close(s.ch)
					s.closed = true
				}
				return
			}
		}
	}
	return sub.ch, unsubscribe, true
}

// publish fans an event out to the job's subscribers. Sends never block:
// a full buffer drops its oldest event so the latest state always lands.
// Terminal events close the subscription.
func (o *Orchestrator) publish(ev Event, terminal bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, sub := range o.subs[ev.JobID] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
		if terminal {
			close(sub.ch)
			sub.closed = true
		}
	}
	if terminal {
		delete(o.subs, ev.JobID)
	}
}

// prune drops the oldest finished jobs beyond the history limit.
func (o *Orchestrator) prune() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.finished) > o.config.HistoryLimit {
		id := o.finished[0]
		o.finished = o.finished[1:]
		delete(o.jobs, id)
	}
}

// workerLoop pops and runs jobs until the context ends.
func (o *Orchestrator) workerLoop(ctx context.Context) {
	for {
		r := o.pop()
		if r == nil {
			select {
			case <-ctx.Done():
				return
			case <-o.wake:
				continue
			}
		}
		o.runJob(ctx, r)
	}
}

func (o *Orchestrator) pop() *record {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.queue.Len() == 0 {
		return nil
	}
	r := heap.Pop(&o.queue).(*record)
	r.state = StateRunning
	r.startedAt = time.Now()
	metrics.SetQueueDepth(o.queue.Len())
	return r
}

// runJob executes one job under the wall-clock ceiling and records its
// terminal state. Partial results from cancelled or timed-out runs are
// discarded, never stored.
func (o *Orchestrator) runJob(ctx context.Context, r *record) {
	jobCtx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	// Cancel may have run between pop and here, finding no cancel func
	// to call; honor the flag now that the context exists.
	o.mu.Lock()
	r.cancel = cancel
	cancelled := r.cancelled
	o.mu.Unlock()
	if cancelled {
		cancel()
	}

	o.publish(Event{JobID: r.id, State: StateRunning}, false)
	o.logger.Info("job started", "job_id", r.id, "priority", r.priority)

	var lastEvent time.Time
	onProgress := func(completed, total int) {
		o.mu.Lock()
		r.progress = Progress{Completed: completed, Total: total}
		o.mu.Unlock()

		// Bounded-rate publishing; the final count always goes out.
		now := time.Now()
		if completed < total && now.Sub(lastEvent) < o.config.ProgressInterval {
			return
		}
		lastEvent = now
		o.publish(Event{JobID: r.id, State: StateRunning, Completed: completed, Total: total}, false)
	}

	start := time.Now()
	result, err := o.engine.Run(jobCtx, r.env, r.req, onProgress)
	duration := time.Since(start)

	o.mu.Lock()
	switch {
	case err == nil:
		r.state = StateDone
		r.result = result
	case r.cancelled && errors.Is(err, context.Canceled):
		r.state = StateCancelled
		r.err = ErrCancelled
	case errors.Is(err, context.DeadlineExceeded):
		r.state = StateTimedOut
		r.err = ErrTimedOut
	default:
		r.state = StateFailed
		r.err = err
	}
	r.finishedAt = time.Now()
	o.finished = append(o.finished, r.id)
	state := r.state
	progress := r.progress
	o.mu.Unlock()

	metrics.IncJobState(string(state))
	o.prune()
	o.publish(Event{JobID: r.id, State: state, Completed: progress.Completed, Total: progress.Total}, true)

	if err != nil {
		o.logger.Warn("job finished with error",
			"job_id", r.id,
			"state", string(state),
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return
	}
	o.logger.Info("job finished",
		"job_id", r.id,
		"state", string(state),
		"duration_ms", duration.Milliseconds(),
	)
}
