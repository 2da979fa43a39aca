package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	crdb "github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-feed/internal/logger"
)

// BacklogReporter reports whether the feed as a whole is backed up.
type BacklogReporter interface {
	IsBacklogged() bool
}

// loadEntry serialises one connector's state transitions.
type loadEntry struct {
	mu    sync.Mutex
	state domain.LoadState
}

// HostLoadManager tracks per-connector document counts over rolling periods,
// sizes traversal batches and decides when a connector must wait.
// One instance serves the whole process.
type HostLoadManager struct {
	schedules driven.ScheduleStore
	backlog   BacklogReporter
	memory    driven.MemoryProbe
	now       func() time.Time

	cfgMu sync.RWMutex
	cfg   domain.LoadConfig

	// mu guards the entries map only; each entry has its own lock so
	// different connectors never block each other.
	mu      sync.Mutex
	entries map[string]*loadEntry

	warnMu    sync.Mutex
	warnRates map[string]*rate.Sometimes
}

// NewHostLoadManager creates a load manager. backlog and memory may be nil.
func NewHostLoadManager(
	cfg domain.LoadConfig,
	schedules driven.ScheduleStore,
	backlog BacklogReporter,
	memory driven.MemoryProbe,
) *HostLoadManager {
	return &HostLoadManager{
		schedules: schedules,
		backlog:   backlog,
		memory:    memory,
		now:       time.Now,
		cfg:       normaliseLoadConfig(cfg),
		entries:   make(map[string]*loadEntry),
		warnRates: make(map[string]*rate.Sometimes),
	}
}

// SetClock replaces the time source. Used by tests.
func (m *HostLoadManager) SetClock(now func() time.Time) {
	m.now = now
}

// SetConfig replaces the load policy. Counters are kept.
func (m *HostLoadManager) SetConfig(cfg domain.LoadConfig) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	m.cfg = normaliseLoadConfig(cfg)
}

// Config returns the current load policy.
func (m *HostLoadManager) Config() domain.LoadConfig {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

func normaliseLoadConfig(cfg domain.LoadConfig) domain.LoadConfig {
	def := domain.DefaultLoadConfig()
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	if cfg.BatchSizeMultiplier < 1 {
		cfg.BatchSizeMultiplier = def.BatchSizeMultiplier
	}
	if cfg.MinHintDivisor <= 0 {
		cfg.MinHintDivisor = def.MinHintDivisor
	}
	return cfg
}

func (m *HostLoadManager) entry(name string) *loadEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		e = &loadEntry{}
		m.entries[name] = e
	}
	return e
}

// schedule looks up a connector's schedule. Unknown connectors are a normal
// condition and are logged at warning level, at most once a minute each.
func (m *HostLoadManager) schedule(ctx context.Context, name string) (*domain.Schedule, bool) {
	if m.schedules == nil {
		return nil, false
	}
	s, err := m.schedules.Get(ctx, name)
	if err == nil {
		return s, true
	}
	if errors.Is(err, domain.ErrNotFound) {
		err = domain.NewFeedError(domain.KindConnectorNotFound, name, domain.ErrConnectorNotFound)
	} else {
		err = crdb.Wrapf(err, "load schedule for %s", name)
	}
	m.sometimes(name).Do(func() {
		logger.Warn("host load: %v", err)
	})
	return nil, false
}

func (m *HostLoadManager) sometimes(name string) *rate.Sometimes {
	m.warnMu.Lock()
	defer m.warnMu.Unlock()
	s, ok := m.warnRates[name]
	if !ok {
		s = &rate.Sometimes{First: 1, Interval: time.Minute}
		m.warnRates[name] = s
	}
	return s
}

// DetermineBatchSize returns how many documents the connector should be
// asked for now. The hint is the quota remaining in the current period;
// a connector with no schedule gets {0,0}.
func (m *HostLoadManager) DetermineBatchSize(ctx context.Context, name string) domain.BatchSize {
	s, ok := m.schedule(ctx, name)
	if !ok {
		return domain.BatchSize{}
	}
	cfg := m.Config()

	e := m.entry(name)
	e.mu.Lock()
	e.state.RollPeriod(m.now(), cfg.Period)
	docs := e.state.DocsThisPeriod
	e.mu.Unlock()

	return batchSizeFor(s.Load, docs, cfg)
}

// batchSizeFor applies the batch policy to a load and the documents already
// traversed this period.
func batchSizeFor(load, docs int, cfg domain.LoadConfig) domain.BatchSize {
	remaining := load - docs
	if remaining <= 0 {
		return domain.BatchSize{}
	}
	// An administrative override replaces the load as the batch basis.
	basis := load
	if cfg.BatchSizeOverride > 0 {
		basis = cfg.BatchSizeOverride
	}
	hint := min(remaining, basis)
	// Under a minute's worth of quota is not worth a full batch.
	if minHint := basis / cfg.MinHintDivisor; hint < minHint {
		hint = 1
	}
	maximum := int(math.Ceil(float64(hint) * cfg.BatchSizeMultiplier))
	if maximum < hint {
		maximum = hint
	}
	return domain.BatchSize{Hint: hint, Maximum: maximum}
}

// UpdateNumDocsTraversed adds n documents to the connector's current period.
func (m *HostLoadManager) UpdateNumDocsTraversed(name string, n int) {
	if n <= 0 {
		return
	}
	cfg := m.Config()
	e := m.entry(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.RollPeriod(m.now(), cfg.Period)
	e.state.DocsThisPeriod += n
}

// ConnectorFinishedTraversal records that the connector finished a traversal
// so it waits out its schedule's retry delay before running again.
func (m *HostLoadManager) ConnectorFinishedTraversal(ctx context.Context, name string, elapsed time.Duration) {
	delay := time.Duration(domain.DefaultRetryDelayMillis) * time.Millisecond
	if s, ok := m.schedule(ctx, name); ok {
		delay = s.RetryDelay()
	}
	e := m.entry(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.LastFinished = m.now()
	e.state.LastRetryDelay = delay
	e.state.LastElapsed = elapsed
}

// ShouldDelayConnector reports whether the connector must skip this tick:
// its quota is spent, it is inside its retry delay, it has no schedule, or
// the host as a whole must delay.
func (m *HostLoadManager) ShouldDelayConnector(ctx context.Context, name string) bool {
	s, ok := m.schedule(ctx, name)
	if !ok {
		return true
	}
	cfg := m.Config()

	e := m.entry(name)
	e.mu.Lock()
	now := m.now()
	e.state.RollPeriod(now, cfg.Period)
	exhausted := e.state.DocsThisPeriod >= s.Load
	waiting := e.state.InRetryDelay(now)
	e.mu.Unlock()

	if exhausted || waiting {
		return true
	}
	return m.ShouldDelay(ctx)
}

// ShouldDelay reports whether no connector should start a batch: free
// memory cannot hold one more feed, or the feed is backlogged.
func (m *HostLoadManager) ShouldDelay(ctx context.Context) bool {
	if m.LowMemory(ctx) {
		return true
	}
	return m.backlog != nil && m.backlog.IsBacklogged()
}

// LowMemory reports whether free memory is below the configured feed size.
// A failing probe is treated as enough memory.
func (m *HostLoadManager) LowMemory(_ context.Context) bool {
	cfg := m.Config()
	if m.memory == nil || cfg.MaxFeedSize == 0 {
		return false
	}
	avail, err := m.memory.AvailableMemory()
	if err != nil {
		logger.Debug("host load: memory probe failed: %v", err)
		return false
	}
	return avail < cfg.MaxFeedSize
}

// Snapshot returns a copy of the connector's load state.
func (m *HostLoadManager) Snapshot(name string) (domain.LoadState, bool) {
	m.mu.Lock()
	e, ok := m.entries[name]
	m.mu.Unlock()
	if !ok {
		return domain.LoadState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Remove clears the connector's load state.
func (m *HostLoadManager) Remove(name string) {
	m.mu.Lock()
	delete(m.entries, name)
	m.mu.Unlock()

	m.warnMu.Lock()
	delete(m.warnRates, name)
	m.warnMu.Unlock()
}
