package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
)

// --- Mock implementations shared by the service tests ---

// mockScheduleStore implements driven.ScheduleStore for testing.
type mockScheduleStore struct {
	mu        sync.RWMutex
	schedules map[string]domain.Schedule
	getErr    error
	listErr   error
}

func newMockScheduleStore(schedules ...string) *mockScheduleStore {
	m := &mockScheduleStore{schedules: make(map[string]domain.Schedule)}
	for _, s := range schedules {
		parsed, err := domain.ParseSchedule(s)
		if err != nil {
			panic(err)
		}
		m.schedules[parsed.ConnectorName] = *parsed
	}
	return m
}

func (m *mockScheduleStore) Get(_ context.Context, name string) (*domain.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.schedules[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s = s.WithIntervals(s.Intervals)
	return &s, nil
}

func (m *mockScheduleStore) List(_ context.Context) ([]domain.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s.WithIntervals(s.Intervals))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectorName < out[j].ConnectorName })
	return out, nil
}

func (m *mockScheduleStore) Save(_ context.Context, s domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ConnectorName] = s.WithIntervals(s.Intervals)
	return nil
}

func (m *mockScheduleStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, name)
	return nil
}

// mockHistoryStore implements driven.HistoryStore for testing.
type mockHistoryStore struct {
	mu      sync.Mutex
	results map[string][]domain.TraversalResult
	pruned  int
}

func newMockHistoryStore() *mockHistoryStore {
	return &mockHistoryStore{results: make(map[string][]domain.TraversalResult)}
}

func (m *mockHistoryStore) RecordResult(_ context.Context, r *domain.TraversalResult) error {
	if r == nil {
		return domain.ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.ConnectorName] = append([]domain.TraversalResult{*r}, m.results[r.ConnectorName]...)
	return nil
}

func (m *mockHistoryStore) GetHistory(_ context.Context, name string, limit int) ([]domain.TraversalResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := m.results[name]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return append([]domain.TraversalResult(nil), results...), nil
}

func (m *mockHistoryStore) DeleteHistory(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.results, name)
	return nil
}

func (m *mockHistoryStore) PruneHistory(_ context.Context, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned++
	return nil
}

func (m *mockHistoryStore) get(name string) []domain.TraversalResult {
	res, _ := m.GetHistory(context.Background(), name, 0)
	return res
}

// mockCheckpointStore implements driven.CheckpointStore for testing.
type mockCheckpointStore struct {
	mu     sync.Mutex
	tokens map[string]string
	saves  int
	// afterSave runs once the token is stored.
	afterSave func(cp domain.Checkpoint)
}

func newMockCheckpointStore() *mockCheckpointStore {
	return &mockCheckpointStore{tokens: make(map[string]string)}
}

func (m *mockCheckpointStore) Save(_ context.Context, cp domain.Checkpoint) error {
	m.mu.Lock()
	m.tokens[cp.ConnectorName] = cp.Token
	m.saves++
	after := m.afterSave
	m.mu.Unlock()
	if after != nil {
		after(cp)
	}
	return nil
}

func (m *mockCheckpointStore) Get(_ context.Context, name string) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.Checkpoint{ConnectorName: name, Token: tok}, nil
}

func (m *mockCheckpointStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, name)
	return nil
}

func (m *mockCheckpointStore) token(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[name]
	return tok, ok
}

// mockConnectorStore implements driven.ConnectorStore for testing.
type mockConnectorStore struct {
	mu         sync.Mutex
	connectors map[string]domain.Connector
}

func newMockConnectorStore() *mockConnectorStore {
	return &mockConnectorStore{connectors: make(map[string]domain.Connector)}
}

func (m *mockConnectorStore) Save(_ context.Context, c domain.Connector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectors[c.Name] = c
	return nil
}

func (m *mockConnectorStore) Get(_ context.Context, name string) (*domain.Connector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connectors[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *mockConnectorStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connectors, name)
	return nil
}

func (m *mockConnectorStore) List(_ context.Context) ([]domain.Connector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Connector, 0, len(m.connectors))
	for _, c := range m.connectors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// mockPusher implements driven.Pusher. Statuses are returned in order, then
// final is returned forever.
type mockPusher struct {
	mu        sync.Mutex
	statuses  []domain.PusherStatus
	final     domain.PusherStatus
	taken     []*domain.Document
	flushes   int
	cancels   int
	takeErr   error
	flushErr  error
	cancelErr error
	backlog   bool
}

func (p *mockPusher) Status(_ context.Context) domain.PusherStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.statuses) > 0 {
		s := p.statuses[0]
		p.statuses = p.statuses[1:]
		return s
	}
	return p.final
}

func (p *mockPusher) Take(_ context.Context, doc *domain.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.takeErr != nil {
		return p.takeErr
	}
	p.taken = append(p.taken, doc)
	return nil
}

func (p *mockPusher) Flush(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.flushErr != nil {
		return p.flushErr
	}
	p.flushes++
	return nil
}

func (p *mockPusher) Cancel() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels++
	return p.cancelErr
}

func (p *mockPusher) IsBacklogged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backlog
}

func (p *mockPusher) counts() (taken, flushes, cancels int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.taken), p.flushes, p.cancels
}

// mockPusherFactory hands out the queued pushers in order, then fresh OK pushers.
type mockPusherFactory struct {
	mu        sync.Mutex
	queued    []*mockPusher
	created   []*mockPusher
	err       error
	backlog   bool
	byConnect map[string][]*mockPusher
}

func (f *mockPusherFactory) NewPusher(_ context.Context, name string) (driven.Pusher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var p *mockPusher
	if len(f.queued) > 0 {
		p = f.queued[0]
		f.queued = f.queued[1:]
	} else {
		p = &mockPusher{}
	}
	f.created = append(f.created, p)
	if f.byConnect == nil {
		f.byConnect = make(map[string][]*mockPusher)
	}
	f.byConnect[name] = append(f.byConnect[name], p)
	return p, nil
}

func (f *mockPusherFactory) IsBacklogged() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backlog
}

func (f *mockPusherFactory) pushersFor(name string) []*mockPusher {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*mockPusher(nil), f.byConnect[name]...)
}

// memorySignalFunc adapts a function to MemorySignal.
type memorySignalFunc func() bool

func (f memorySignalFunc) LowMemory(context.Context) bool { return f() }

// mockMemoryProbe implements driven.MemoryProbe.
type mockMemoryProbe struct {
	mu    sync.Mutex
	avail uint64
	err   error
}

func (m *mockMemoryProbe) AvailableMemory() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.avail, m.err
}

func (m *mockMemoryProbe) set(avail uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.avail = avail
}

// backlogFlag implements BacklogReporter.
type backlogFlag struct {
	mu sync.Mutex
	on bool
}

func (b *backlogFlag) IsBacklogged() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on
}

func (b *backlogFlag) set(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.on = on
}

// recordingSleeper records backoff sleeps without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
	err    error
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return s.err
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var (
	_ driven.ScheduleStore   = (*mockScheduleStore)(nil)
	_ driven.HistoryStore    = (*mockHistoryStore)(nil)
	_ driven.CheckpointStore = (*mockCheckpointStore)(nil)
	_ driven.ConnectorStore  = (*mockConnectorStore)(nil)
	_ driven.Pusher          = (*mockPusher)(nil)
	_ driven.PusherFactory   = (*mockPusherFactory)(nil)
	_ driven.MemoryProbe     = (*mockMemoryProbe)(nil)
)
