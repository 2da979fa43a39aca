package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
)

// Ensure stores implement the interfaces.
var (
	_ driven.ConnectorStore  = (*ConnectorStore)(nil)
	_ driven.ScheduleStore   = (*ScheduleStore)(nil)
	_ driven.CheckpointStore = (*CheckpointStore)(nil)
	_ driven.HistoryStore    = (*HistoryStore)(nil)
)

// ConnectorStore is an in-memory implementation of driven.ConnectorStore.
type ConnectorStore struct {
	mu         sync.RWMutex
	connectors map[string]domain.Connector
}

// NewConnectorStore creates a new in-memory connector store.
func NewConnectorStore() *ConnectorStore {
	return &ConnectorStore{
		connectors: make(map[string]domain.Connector),
	}
}

// Save stores or updates a connector.
func (s *ConnectorStore) Save(_ context.Context, connector domain.Connector) error {
	if connector.Name == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.connectors[connector.Name]; ok && connector.CreatedAt.IsZero() {
		connector.CreatedAt = prev.CreatedAt
	}
	connector.Config = copyConfig(connector.Config)
	s.connectors[connector.Name] = connector
	return nil
}

// Get retrieves a connector by name.
func (s *ConnectorStore) Get(_ context.Context, name string) (*domain.Connector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connector, ok := s.connectors[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	connector.Config = copyConfig(connector.Config)
	return &connector, nil
}

// Delete removes a connector.
func (s *ConnectorStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connectors, name)
	return nil
}

// List returns all connectors ordered by name.
func (s *ConnectorStore) List(_ context.Context) ([]domain.Connector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Connector, 0, len(s.connectors))
	for _, connector := range s.connectors {
		connector.Config = copyConfig(connector.Config)
		result = append(result, connector)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func copyConfig(config map[string]string) map[string]string {
	if config == nil {
		return nil
	}
	out := make(map[string]string, len(config))
	for k, v := range config {
		out[k] = v
	}
	return out
}

// ScheduleStore is an in-memory implementation of driven.ScheduleStore.
// Schedules are held in their canonical string form, as a durable store
// would hold them.
type ScheduleStore struct {
	mu        sync.RWMutex
	schedules map[string]string
}

// NewScheduleStore creates a new in-memory schedule store.
func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{
		schedules: make(map[string]string),
	}
}

// Get retrieves the schedule for a connector.
func (s *ScheduleStore) Get(_ context.Context, connectorName string) (*domain.Schedule, error) {
	s.mu.RLock()
	raw, ok := s.schedules[connectorName]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	sched, err := domain.ParseSchedule(raw)
	if err != nil {
		return nil, domain.NewFeedError(domain.KindInvalidScheduleFormat, connectorName, err)
	}
	return sched, nil
}

// List returns all schedules ordered by connector name.
func (s *ScheduleStore) List(_ context.Context) ([]domain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Schedule, 0, len(s.schedules))
	for _, raw := range s.schedules {
		sched, err := domain.ParseSchedule(raw)
		if err != nil {
			continue
		}
		result = append(result, *sched)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ConnectorName < result[j].ConnectorName })
	return result, nil
}

// Save stores or replaces a schedule.
func (s *ScheduleStore) Save(_ context.Context, schedule domain.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[schedule.ConnectorName] = schedule.String()
	return nil
}

// Delete removes a schedule.
func (s *ScheduleStore) Delete(_ context.Context, connectorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, connectorName)
	return nil
}

// CheckpointStore is an in-memory implementation of driven.CheckpointStore.
type CheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]domain.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		checkpoints: make(map[string]domain.Checkpoint),
	}
}

// Save stores or updates a checkpoint.
func (s *CheckpointStore) Save(_ context.Context, checkpoint domain.Checkpoint) error {
	if checkpoint.ConnectorName == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[checkpoint.ConnectorName] = checkpoint
	return nil
}

// Get retrieves the checkpoint for a connector.
func (s *CheckpointStore) Get(_ context.Context, connectorName string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[connectorName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cp, nil
}

// Delete removes the checkpoint for a connector.
func (s *CheckpointStore) Delete(_ context.Context, connectorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, connectorName)
	return nil
}

// HistoryStore is an in-memory implementation of driven.HistoryStore.
type HistoryStore struct {
	mu      sync.RWMutex
	results map[string][]domain.TraversalResult // newest first
}

// NewHistoryStore creates a new in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		results: make(map[string][]domain.TraversalResult),
	}
}

// RecordResult logs a traversal batch result.
func (s *HistoryStore) RecordResult(_ context.Context, result *domain.TraversalResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.results[result.ConnectorName]
	i := sort.Search(len(list), func(i int) bool { return !list[i].StartedAt.After(result.StartedAt) })
	list = append(list, domain.TraversalResult{})
	copy(list[i+1:], list[i:])
	list[i] = *result
	s.results[result.ConnectorName] = list
	return nil
}

// GetHistory returns recent results for a connector, most recent first.
func (s *HistoryStore) GetHistory(_ context.Context, connectorName string, limit int) ([]domain.TraversalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.results[connectorName]
	if limit >= 0 && limit < len(list) {
		list = list[:limit]
	}
	return append([]domain.TraversalResult(nil), list...), nil
}

// DeleteHistory removes all results for a connector.
func (s *HistoryStore) DeleteHistory(_ context.Context, connectorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, connectorName)
	return nil
}

// PruneHistory keeps the most recent 'keep' results per connector.
func (s *HistoryStore) PruneHistory(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep < 0 {
		keep = 0
	}
	for name, list := range s.results {
		if len(list) > keep {
			s.results[name] = list[:keep:keep]
		}
	}
	return nil
}
