package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	crdb "github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-feed/internal/logger"
)

// Work is a unit of work run by the WorkQueue.
type Work interface {
	// DoWork performs the work. It should return promptly once ctx is done;
	// the context is cancelled with cause domain.ErrWorkInterrupted when the
	// item overruns its interrupt timeout.
	DoWork(ctx context.Context) error

	// CancelWork is invoked at most once, on its own goroutine, when the item
	// is forcibly cancelled while running.
	CancelWork()

	// Name identifies the work in logs and metrics.
	Name() string
}

// WorkHandle tracks one submitted work item.
type WorkHandle struct {
	ID   string
	Name string

	work   Work
	ctx    context.Context
	cancel context.CancelCauseFunc

	state       atomic.Int32
	interrupted atomic.Bool

	// Guarded by the queue mutex while the item is running.
	startedAt time.Time
	release   func()

	errMu sync.Mutex
	err   error

	done       chan struct{}
	doneOnce   sync.Once
	cancelOnce sync.Once
}

// State returns the item's current state.
func (h *WorkHandle) State() domain.WorkItemState {
	return domain.WorkItemState(h.state.Load())
}

// Done is closed when the item reaches a terminal state.
func (h *WorkHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the item's error once it is terminal.
func (h *WorkHandle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.err
}

// Interrupted reports whether the watchdog interrupted the item.
func (h *WorkHandle) Interrupted() bool {
	return h.interrupted.Load()
}

func (h *WorkHandle) transition(from, to domain.WorkItemState) bool {
	return h.state.CompareAndSwap(int32(from), int32(to))
}

func (h *WorkHandle) finish(err error) {
	h.doneOnce.Do(func() {
		h.errMu.Lock()
		h.err = err
		h.errMu.Unlock()
		h.cancel(context.Canceled)
		close(h.done)
	})
}

// invokeCancelWork runs CancelWork once without blocking the caller.
func (h *WorkHandle) invokeCancelWork() {
	h.cancelOnce.Do(func() {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("work queue: %s: cancel panicked: %v", h.Name, r)
				}
			}()
			h.work.CancelWork()
		}()
	})
}

// QueueStats is a snapshot of the queue counters.
type QueueStats struct {
	Pending   int
	Running   int
	Completed int64
	Cancelled int64
}

// WorkQueue runs work items on a fixed pool of workers with a watchdog that
// interrupts, then kills, items that overrun their deadlines.
type WorkQueue struct {
	cfg     domain.WorkQueueConfig
	metrics driven.FeedMetrics

	baseCtx    context.Context
	baseCancel context.CancelFunc

	pending    chan *WorkHandle
	quit       chan struct{}
	submitters sync.WaitGroup
	workers    sync.WaitGroup

	mu      sync.Mutex
	running map[string]*WorkHandle
	started bool
	closed  bool
	forced  bool

	watchdogStop chan struct{}
	watchdogDone chan struct{}

	completed atomic.Int64
	cancelled atomic.Int64
}

// NewWorkQueue creates a work queue. Call Start to launch the workers.
func NewWorkQueue(cfg domain.WorkQueueConfig, metrics driven.FeedMetrics) (*WorkQueue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, crdb.Wrap(err, "invalid work queue config")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkQueue{
		cfg:          cfg,
		metrics:      metricsOrNoop(metrics),
		baseCtx:      ctx,
		baseCancel:   cancel,
		pending:      make(chan *WorkHandle, cfg.Capacity),
		quit:         make(chan struct{}),
		running:      make(map[string]*WorkHandle),
		watchdogStop: make(chan struct{}),
		watchdogDone: make(chan struct{}),
	}, nil
}

// Start launches the workers and the watchdog.
func (q *WorkQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.workers.Add(1)
		go q.worker()
	}
	go q.watchdog()
}

// Submit enqueues work. It blocks while the queue is at capacity.
func (q *WorkQueue) Submit(ctx context.Context, w Work) (*WorkHandle, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, domain.ErrQueueShutdown
	}
	q.submitters.Add(1)
	q.mu.Unlock()
	defer q.submitters.Done()

	h := &WorkHandle{
		ID:   uuid.New().String(),
		Name: w.Name(),
		work: w,
		done: make(chan struct{}),
	}
	h.ctx, h.cancel = context.WithCancelCause(q.baseCtx)

	select {
	case q.pending <- h:
		q.metrics.WorkSubmitted(h.Name)
		logger.Debug("work queue: submitted %s (%s)", h.Name, h.ID)
		return h, nil
	case <-q.quit:
		h.cancel(domain.ErrQueueShutdown)
		return nil, domain.ErrQueueShutdown
	case <-ctx.Done():
		h.cancel(ctx.Err())
		return nil, ctx.Err()
	}
}

func (q *WorkQueue) worker() {
	release := sync.OnceFunc(q.workers.Done)
	for h := range q.pending {
		if abandoned := q.run(h, release); abandoned {
			// kill releases this worker's slot once its replacement is counted.
			return
		}
	}
	release()
}

// run executes one item. It reports true when the item was killed while
// running, in which case the calling worker has been replaced and must exit.
func (q *WorkQueue) run(h *WorkHandle, release func()) bool {
	q.mu.Lock()
	if q.forced {
		q.mu.Unlock()
		q.cancelPending(h, domain.ErrQueueShutdown)
		return false
	}
	if !h.transition(domain.WorkPending, domain.WorkRunning) {
		q.mu.Unlock()
		return false
	}
	h.startedAt = time.Now()
	h.release = release
	q.running[h.ID] = h
	busy := len(q.running)
	q.mu.Unlock()
	q.metrics.WorkersBusy(busy)

	err := q.execute(h)

	if !h.transition(domain.WorkRunning, domain.WorkCompleted) {
		logger.Debug("work queue: abandoned %s returned: %v", h.Name, err)
		return true
	}

	q.mu.Lock()
	delete(q.running, h.ID)
	h.release = nil
	elapsed := time.Since(h.startedAt)
	busy = len(q.running)
	q.mu.Unlock()

	h.finish(err)
	q.completed.Add(1)
	q.metrics.WorkersBusy(busy)
	q.metrics.WorkFinished(h.Name, domain.WorkCompleted, domain.KindOf(err), elapsed)
	return false
}

// execute runs DoWork, converting a panic into a runtime error.
func (q *WorkQueue) execute(h *WorkHandle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("work queue: %s panicked: %v", h.Name, r)
			err = domain.NewFeedError(domain.KindRuntime, h.Name, crdb.Newf("panic: %v", r))
		}
	}()
	return h.work.DoWork(h.ctx)
}

func (q *WorkQueue) watchdog() {
	defer close(q.watchdogDone)
	ticker := time.NewTicker(q.cfg.PollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-q.watchdogStop:
			return
		case <-ticker.C:
			q.checkRunning(time.Now())
		}
	}
}

// checkRunning interrupts or kills items past their deadlines.
func (q *WorkQueue) checkRunning(now time.Time) {
	type overdue struct {
		h       *WorkHandle
		elapsed time.Duration
	}
	q.mu.Lock()
	items := make([]overdue, 0, len(q.running))
	for _, h := range q.running {
		items = append(items, overdue{h: h, elapsed: now.Sub(h.startedAt)})
	}
	q.mu.Unlock()

	for _, it := range items {
		switch {
		case it.elapsed > q.cfg.KillTimeout:
			logger.Info("work queue: killing %s after %s", it.h.Name, it.elapsed.Round(time.Millisecond))
			q.kill(it.h, domain.ErrWorkCancelled)
		case it.elapsed > q.cfg.InterruptTimeout:
			q.interrupt(it.h)
		}
	}
}

// interrupt cancels the item's context once.
func (q *WorkQueue) interrupt(h *WorkHandle) {
	if !h.interrupted.CompareAndSwap(false, true) {
		return
	}
	logger.Warn("work queue: interrupting %s", h.Name)
	h.cancel(domain.ErrWorkInterrupted)
	q.metrics.WorkInterrupted(h.Name)
}

// kill forcibly cancels a running item and replaces its worker.
func (q *WorkQueue) kill(h *WorkHandle, cause error) {
	if !h.transition(domain.WorkRunning, domain.WorkCancelled) {
		return
	}
	h.cancel(cause)

	q.mu.Lock()
	delete(q.running, h.ID)
	release := h.release
	h.release = nil
	elapsed := time.Since(h.startedAt)
	// The replacement is counted while the old worker still holds its slot,
	// so a concurrent Shutdown never sees the pool drop to zero early.
	replace := !q.forced
	if replace {
		q.workers.Add(1)
	}
	busy := len(q.running)
	q.mu.Unlock()

	h.invokeCancelWork()
	h.finish(domain.NewFeedError(domain.KindWorkCancelled, h.Name, cause))
	q.cancelled.Add(1)
	q.metrics.WorkersBusy(busy)
	q.metrics.WorkFinished(h.Name, domain.WorkCancelled, domain.KindWorkCancelled, elapsed)

	// The stuck goroutine is abandoned.
	if replace {
		go q.worker()
	}
	if release != nil {
		release()
	}
}

// cancelPending cancels an item that never started. CancelWork is not called.
func (q *WorkQueue) cancelPending(h *WorkHandle, cause error) bool {
	if !h.transition(domain.WorkPending, domain.WorkCancelled) {
		return false
	}
	h.finish(domain.NewFeedError(domain.KindWorkCancelled, h.Name, cause))
	q.cancelled.Add(1)
	q.metrics.WorkFinished(h.Name, domain.WorkCancelled, domain.KindWorkCancelled, 0)
	return true
}

// Cancel forcibly cancels a pending or running item.
func (q *WorkQueue) Cancel(h *WorkHandle) {
	if h == nil {
		return
	}
	if q.cancelPending(h, domain.ErrWorkCancelled) {
		return
	}
	q.kill(h, domain.ErrWorkCancelled)
}

// Shutdown stops accepting work. Unless force is set it waits up to deadline
// for pending and running items to finish, then cancels whatever remains.
func (q *WorkQueue) Shutdown(force bool, deadline time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	started := q.started
	close(q.quit)
	q.mu.Unlock()

	q.submitters.Wait()
	close(q.pending)

	workersDone := make(chan struct{})
	go func() {
		q.workers.Wait()
		close(workersDone)
	}()

	var err error
	if !force {
		timer := time.NewTimer(deadline)
		select {
		case <-workersDone:
		case <-timer.C:
			err = crdb.Newf("work queue: shutdown deadline %s exceeded", deadline)
			logger.Warn("%v; cancelling remaining work", err)
			force = true
		}
		timer.Stop()
	}
	if force {
		q.forceCancel()
	}
	<-workersDone

	// Items nobody dequeued, e.g. when the queue was never started.
	for h := range q.pending {
		q.cancelPending(h, domain.ErrQueueShutdown)
	}

	if started {
		close(q.watchdogStop)
		<-q.watchdogDone
	}
	q.baseCancel()
	return err
}

func (q *WorkQueue) forceCancel() {
	q.mu.Lock()
	q.forced = true
	running := make([]*WorkHandle, 0, len(q.running))
	for _, h := range q.running {
		running = append(running, h)
	}
	q.mu.Unlock()

	for _, h := range running {
		q.kill(h, domain.ErrQueueShutdown)
	}
}

// Stats returns the queue counters.
func (q *WorkQueue) Stats() QueueStats {
	q.mu.Lock()
	running := len(q.running)
	q.mu.Unlock()
	return QueueStats{
		Pending:   len(q.pending),
		Running:   running,
		Completed: q.completed.Load(),
		Cancelled: q.cancelled.Load(),
	}
}
