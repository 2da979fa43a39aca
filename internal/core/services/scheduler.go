package services

import (
	"context"
	"errors"
	"sync"
	"time"

	crdb "github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-feed/internal/logger"
)

// Verify interface compliance.
var _ driving.TraversalScheduler = (*TraversalScheduler)(nil)

// SchedulerDeps are the collaborators of a TraversalScheduler.
// Metrics may be nil.
type SchedulerDeps struct {
	Schedules   driven.ScheduleStore
	Checkpoints driven.CheckpointStore
	History     driven.HistoryStore
	Traversers  driven.TraverserFactory
	Pushers     driven.PusherFactory
	Load        *HostLoadManager
	Queue       *WorkQueue
	Metrics     driven.FeedMetrics
}

// connectorRun is the scheduler's bookkeeping for one connector.
type connectorRun struct {
	handle     *WorkHandle
	acceptor   *DocumentAcceptor
	lastSkip   domain.SkipReason
	lastResult *domain.TraversalResult
	lastKind   domain.ErrorKind
}

// TraversalScheduler runs a single control loop that, on every tick,
// submits a traversal batch for each connector that is inside its schedule
// window and has load quota left.
type TraversalScheduler struct {
	config      domain.SchedulerConfig
	schedules   driven.ScheduleStore
	checkpoints driven.CheckpointStore
	history     driven.HistoryStore
	traversers  driven.TraverserFactory
	pushers     driven.PusherFactory
	load        *HostLoadManager
	queue       *WorkQueue
	metrics     driven.FeedMetrics
	now         func() time.Time
	listWarn    rate.Sometimes

	acceptorMu  sync.RWMutex
	acceptorCfg domain.AcceptorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	runs    map[string]*connectorRun
}

// NewTraversalScheduler creates a scheduler. The work queue is started by Start.
func NewTraversalScheduler(
	config domain.SchedulerConfig,
	acceptorCfg domain.AcceptorConfig,
	deps SchedulerDeps,
) *TraversalScheduler {
	def := domain.DefaultSchedulerConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = def.TickInterval
	}
	if config.ShutdownDeadline <= 0 {
		config.ShutdownDeadline = def.ShutdownDeadline
	}
	if config.HistoryRetention <= 0 {
		config.HistoryRetention = def.HistoryRetention
	}
	return &TraversalScheduler{
		config:      config,
		schedules:   deps.Schedules,
		checkpoints: deps.Checkpoints,
		history:     deps.History,
		traversers:  deps.Traversers,
		pushers:     deps.Pushers,
		load:        deps.Load,
		queue:       deps.Queue,
		metrics:     metricsOrNoop(deps.Metrics),
		now:         time.Now,
		listWarn:    rate.Sometimes{First: 1, Interval: time.Minute},
		acceptorCfg: acceptorCfg,
		runs:        make(map[string]*connectorRun),
	}
}

// SetClock replaces the time source used for schedule windows. Used by tests.
func (s *TraversalScheduler) SetClock(now func() time.Time) {
	s.now = now
}

// SetAcceptorConfig applies a new backpressure policy to every acceptor.
func (s *TraversalScheduler) SetAcceptorConfig(cfg domain.AcceptorConfig) {
	s.acceptorMu.Lock()
	s.acceptorCfg = cfg
	s.acceptorMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.acceptor != nil {
			r.acceptor.SetConfig(cfg)
		}
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *TraversalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.queue.Start()
	logger.Info("scheduler: started, tick every %s", s.config.TickInterval)

	// Tick immediately on startup
	s.Tick(ctx)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop ends the loop and shuts down the work queue, waiting up to the
// configured deadline for running traversals before cancelling them.
func (s *TraversalScheduler) Stop() error {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()

	if err := s.queue.Shutdown(false, s.config.ShutdownDeadline); err != nil {
		return crdb.Wrap(err, "stop scheduler")
	}
	logger.Info("scheduler: stopped")
	return nil
}

// RunOnce runs a single tick and shuts down, waiting up to the configured
// deadline for the batches it submitted.
func (s *TraversalScheduler) RunOnce(ctx context.Context) error {
	s.queue.Start()
	s.Tick(ctx)
	return s.Stop()
}

// Tick considers every scheduled connector once.
func (s *TraversalScheduler) Tick(ctx context.Context) {
	schedules, err := s.schedules.List(ctx)
	if err != nil {
		s.listWarn.Do(func() {
			logger.Warn("scheduler: failed to list schedules: %v", err)
		})
		return
	}

	now := s.now()
	for i := range schedules {
		if ctx.Err() != nil {
			return
		}
		s.consider(ctx, &schedules[i], now)
	}
}

// consider submits a traversal for the connector unless it must skip this tick.
func (s *TraversalScheduler) consider(ctx context.Context, sched *domain.Schedule, now time.Time) {
	name := sched.ConnectorName

	if s.inFlight(name) {
		s.skip(name, domain.SkipInFlight)
		return
	}
	if sched.Disabled {
		s.skip(name, domain.SkipDisabled)
		return
	}
	if !sched.ShouldRun(now) {
		s.skip(name, domain.SkipOutsideWindow)
		return
	}
	if s.load.ShouldDelayConnector(ctx, name) {
		s.skip(name, domain.SkipDelayed)
		return
	}
	batch := s.load.DetermineBatchSize(ctx, name)
	if batch.IsZero() {
		s.skip(name, domain.SkipNoQuota)
		return
	}

	work := &traversal{
		connector:   name,
		batch:       batch,
		traversers:  s.traversers,
		checkpoints: s.checkpoints,
		load:        s.load,
		acceptor:    s.acceptorFor(name),
		onDone:      s.recordResult,
		now:         time.Now,
	}

	// Blocks while the queue is saturated.
	h, err := s.queue.Submit(ctx, work)
	if err != nil {
		if !errors.Is(err, domain.ErrQueueShutdown) && ctx.Err() == nil {
			logger.Warn("scheduler: failed to submit %s: %v", name, err)
		}
		s.skip(name, domain.SkipSubmitRejected)
		return
	}

	s.mu.Lock()
	r := s.run(name)
	r.handle = h
	r.lastSkip = domain.SkipNone
	s.mu.Unlock()
	logger.Debug("scheduler: submitted %s (hint %d, max %d)", name, batch.Hint, batch.Maximum)
}

// inFlight reports whether the connector has a queued or running item.
// A killed item's goroutine may still hold the old acceptor, so it is
// replaced before the next batch.
func (s *TraversalScheduler) inFlight(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[name]
	if !ok || r.handle == nil {
		return false
	}
	state := r.handle.State()
	if !state.Terminal() {
		return true
	}
	if state == domain.WorkCancelled {
		r.acceptor = nil
		r.lastKind = domain.KindOf(r.handle.Err())
	}
	return false
}

func (s *TraversalScheduler) run(name string) *connectorRun {
	r, ok := s.runs[name]
	if !ok {
		r = &connectorRun{}
		s.runs[name] = r
	}
	return r
}

func (s *TraversalScheduler) skip(name string, reason domain.SkipReason) {
	s.mu.Lock()
	s.run(name).lastSkip = reason
	s.mu.Unlock()
	s.metrics.TickSkipped(name, reason)
	logger.Debug("scheduler: skipping %s: %s", name, reason)
}

func (s *TraversalScheduler) acceptorFor(name string) *DocumentAcceptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.run(name)
	if r.acceptor == nil {
		s.acceptorMu.RLock()
		cfg := s.acceptorCfg
		s.acceptorMu.RUnlock()
		r.acceptor = NewDocumentAcceptor(name, s.pushers, s.load, cfg, s.metrics)
	}
	return r.acceptor
}

// recordResult keeps the result for status views and appends it to history.
func (s *TraversalScheduler) recordResult(ctx context.Context, result *domain.TraversalResult, err error) {
	s.mu.Lock()
	if r, ok := s.runs[result.ConnectorName]; ok {
		res := *result
		r.lastResult = &res
		r.lastKind = domain.KindOf(err)
	}
	s.mu.Unlock()

	if s.history == nil {
		return
	}
	if recordErr := s.history.RecordResult(ctx, result); recordErr != nil {
		logger.Warn("scheduler: failed to record result for %s: %v", result.ConnectorName, recordErr)
	}
	if pruneErr := s.history.PruneHistory(ctx, s.config.HistoryRetention); pruneErr != nil {
		logger.Warn("scheduler: failed to prune history: %v", pruneErr)
	}
}

// RemoveConnector cancels the connector's in-flight work and clears its load state.
func (s *TraversalScheduler) RemoveConnector(_ context.Context, name string) error {
	s.mu.Lock()
	r, ok := s.runs[name]
	delete(s.runs, name)
	s.mu.Unlock()

	if ok && r.handle != nil {
		s.queue.Cancel(r.handle)
	}
	s.load.Remove(name)
	logger.Info("scheduler: removed %s", name)
	return nil
}

// Status returns the scheduling status of a connector.
func (s *TraversalScheduler) Status(ctx context.Context, name string) (*domain.ConnectorStatus, error) {
	sched, err := s.schedules.Get(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewFeedError(domain.KindConnectorNotFound, name, domain.ErrConnectorNotFound)
		}
		return nil, crdb.Wrapf(err, "load schedule for %s", name)
	}
	return s.status(ctx, sched), nil
}

// StatusAll returns the status of every scheduled connector.
func (s *TraversalScheduler) StatusAll(ctx context.Context) ([]domain.ConnectorStatus, error) {
	schedules, err := s.schedules.List(ctx)
	if err != nil {
		return nil, crdb.Wrap(err, "list schedules")
	}
	out := make([]domain.ConnectorStatus, 0, len(schedules))
	for i := range schedules {
		out = append(out, *s.status(ctx, &schedules[i]))
	}
	return out, nil
}

func (s *TraversalScheduler) status(ctx context.Context, sched *domain.Schedule) *domain.ConnectorStatus {
	name := sched.ConnectorName
	st := &domain.ConnectorStatus{
		ConnectorName:     name,
		Schedule:          sched.String(),
		NextWindowSeconds: sched.NextScheduledInterval(s.now()),
	}
	if load, ok := s.load.Snapshot(name); ok {
		st.Load = load
	}

	s.mu.Lock()
	if r, ok := s.runs[name]; ok {
		st.LastSkip = r.lastSkip
		st.LastErrorKind = r.lastKind
		if r.handle != nil {
			st.WorkState = r.handle.State()
			st.Running = !st.WorkState.Terminal()
			if st.WorkState == domain.WorkCancelled {
				st.LastErrorKind = domain.KindOf(r.handle.Err())
			}
		}
		if r.lastResult != nil {
			res := *r.lastResult
			st.LastResult = &res
		}
		if r.acceptor != nil {
			st.SinkStatus = r.acceptor.LastStatus()
		}
	}
	s.mu.Unlock()

	if st.LastResult == nil && s.history != nil {
		if results, err := s.history.GetHistory(ctx, name, 1); err == nil && len(results) > 0 {
			st.LastResult = &results[0]
		}
	}
	return st
}
