package services

import (
	"context"
	"errors"
	"slices"

	crdb "github.com/cockroachdb/errors"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-feed/internal/logger"
)

// DefaultHistoryLimit is used when History is called without a limit.
const DefaultHistoryLimit = 20

// Ensure ConnectorService implements the interface.
var _ driving.ConnectorService = (*ConnectorService)(nil)

// ConnectorService manages connector instances and their schedules.
type ConnectorService struct {
	connectors  driven.ConnectorStore
	schedules   driven.ScheduleStore
	checkpoints driven.CheckpointStore
	history     driven.HistoryStore
	traversers  driven.TraverserFactory
	scheduler   driving.TraversalScheduler
}

// NewConnectorService creates a new connector service.
func NewConnectorService(
	connectors driven.ConnectorStore,
	schedules driven.ScheduleStore,
	checkpoints driven.CheckpointStore,
	history driven.HistoryStore,
	traversers driven.TraverserFactory,
	scheduler driving.TraversalScheduler,
) *ConnectorService {
	return &ConnectorService{
		connectors:  connectors,
		schedules:   schedules,
		checkpoints: checkpoints,
		history:     history,
		traversers:  traversers,
		scheduler:   scheduler,
	}
}

// Add creates a connector and its schedule. The schedule string must name
// the connector.
func (s *ConnectorService) Add(ctx context.Context, connector domain.Connector, schedule string) error {
	if connector.Name == "" {
		return crdb.Wrap(domain.ErrInvalidInput, "connector name is required")
	}
	if !slices.Contains(s.traversers.SupportedTypes(), connector.Type) {
		return crdb.WithHintf(
			crdb.Wrapf(domain.ErrUnsupportedType, "connector type %q", connector.Type),
			"supported types: %v", s.traversers.SupportedTypes())
	}

	sched, err := domain.ParseSchedule(schedule)
	if err != nil {
		return err
	}
	if sched.ConnectorName != connector.Name {
		return crdb.Wrapf(domain.ErrInvalidInput, "schedule names %q, not %q", sched.ConnectorName, connector.Name)
	}

	existing, err := s.connectors.Get(ctx, connector.Name)
	if err == nil && existing != nil {
		return crdb.Wrapf(domain.ErrAlreadyExists, "connector %s", connector.Name)
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return crdb.Wrapf(err, "look up connector %s", connector.Name)
	}

	if err := s.connectors.Save(ctx, connector); err != nil {
		return crdb.Wrapf(err, "save connector %s", connector.Name)
	}
	if err := s.schedules.Save(ctx, *sched); err != nil {
		// A connector without a schedule is never traversed; undo.
		//nolint:errcheck // best effort rollback
		_ = s.connectors.Delete(ctx, connector.Name)
		return crdb.Wrapf(err, "save schedule for %s", connector.Name)
	}
	logger.Info("connector %s (%s) added with schedule %s", connector.Name, connector.Type, sched)
	return nil
}

// Get retrieves a connector by name.
func (s *ConnectorService) Get(ctx context.Context, name string) (*domain.Connector, error) {
	c, err := s.connectors.Get(ctx, name)
	if err != nil {
		return nil, s.notFound(name, err)
	}
	return c, nil
}

// List returns all configured connectors.
func (s *ConnectorService) List(ctx context.Context) ([]domain.Connector, error) {
	return s.connectors.List(ctx)
}

// GetSchedule returns a connector's schedule.
func (s *ConnectorService) GetSchedule(ctx context.Context, name string) (*domain.Schedule, error) {
	sched, err := s.schedules.Get(ctx, name)
	if err != nil {
		return nil, s.notFound(name, err)
	}
	return sched, nil
}

// SetSchedule parses and stores a schedule string for an existing connector.
func (s *ConnectorService) SetSchedule(ctx context.Context, schedule string) (*domain.Schedule, error) {
	sched, err := domain.ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, sched.ConnectorName); err != nil {
		return nil, err
	}
	if err := s.schedules.Save(ctx, *sched); err != nil {
		return nil, crdb.Wrapf(err, "save schedule for %s", sched.ConnectorName)
	}
	logger.Info("connector %s: schedule set to %s", sched.ConnectorName, sched)
	return sched, nil
}

// Pause disables a connector's schedule. In-flight work is not interrupted.
func (s *ConnectorService) Pause(ctx context.Context, name string) error {
	return s.setDisabled(ctx, name, true)
}

// Resume re-enables a connector's schedule.
func (s *ConnectorService) Resume(ctx context.Context, name string) error {
	return s.setDisabled(ctx, name, false)
}

func (s *ConnectorService) setDisabled(ctx context.Context, name string, disabled bool) error {
	sched, err := s.GetSchedule(ctx, name)
	if err != nil {
		return err
	}
	if sched.Disabled == disabled {
		return nil
	}
	if err := s.schedules.Save(ctx, sched.WithDisabled(disabled)); err != nil {
		return crdb.Wrapf(err, "save schedule for %s", name)
	}
	logger.Info("connector %s: disabled=%t", name, disabled)
	return nil
}

// Remove cancels in-flight work and deletes the connector with its schedule,
// checkpoint and history.
func (s *ConnectorService) Remove(ctx context.Context, name string) error {
	if _, err := s.Get(ctx, name); err != nil {
		return err
	}
	// Schedule first so a concurrent tick cannot pick the connector up again
	// between the cancel and the deletes.
	if err := s.schedules.Delete(ctx, name); err != nil {
		return crdb.Wrapf(err, "delete schedule for %s", name)
	}
	if s.scheduler != nil {
		if err := s.scheduler.RemoveConnector(ctx, name); err != nil {
			return crdb.Wrapf(err, "stop %s", name)
		}
	}
	if err := s.checkpoints.Delete(ctx, name); err != nil {
		return crdb.Wrapf(err, "delete checkpoint for %s", name)
	}
	if s.history != nil {
		if err := s.history.DeleteHistory(ctx, name); err != nil {
			return crdb.Wrapf(err, "delete history for %s", name)
		}
	}
	if err := s.connectors.Delete(ctx, name); err != nil {
		return crdb.Wrapf(err, "delete connector %s", name)
	}
	logger.Info("connector %s removed", name)
	return nil
}

// ResetCheckpoint forgets the traversal checkpoint so the next batch starts
// from the beginning.
func (s *ConnectorService) ResetCheckpoint(ctx context.Context, name string) error {
	if _, err := s.Get(ctx, name); err != nil {
		return err
	}
	if err := s.checkpoints.Delete(ctx, name); err != nil {
		return crdb.Wrapf(err, "delete checkpoint for %s", name)
	}
	logger.Info("connector %s: checkpoint reset", name)
	return nil
}

// Status returns the connector's scheduling status.
func (s *ConnectorService) Status(ctx context.Context, name string) (*domain.ConnectorStatus, error) {
	if s.scheduler == nil {
		return nil, domain.ErrNotImplemented
	}
	return s.scheduler.Status(ctx, name)
}

// History returns recent traversal results, most recent first.
func (s *ConnectorService) History(ctx context.Context, name string, limit int) ([]domain.TraversalResult, error) {
	if s.history == nil {
		return nil, domain.ErrNotImplemented
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.history.GetHistory(ctx, name, limit)
}

// SupportedTypes lists the connector types that can be added.
func (s *ConnectorService) SupportedTypes() []string {
	return s.traversers.SupportedTypes()
}

// notFound tags a missing connector with KindConnectorNotFound.
func (s *ConnectorService) notFound(name string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewFeedError(domain.KindConnectorNotFound, name, domain.ErrConnectorNotFound)
	}
	return crdb.Wrapf(err, "look up %s", name)
}
