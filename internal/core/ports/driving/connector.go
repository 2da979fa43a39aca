package driving

import (
	"context"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

// ConnectorService manages connector instances and their schedules.
// It is the administrative surface of the host process.
type ConnectorService interface {
	// Add creates a connector with its schedule string.
	Add(ctx context.Context, connector domain.Connector, schedule string) error

	// Get retrieves a connector by name.
	Get(ctx context.Context, name string) (*domain.Connector, error)

	// List returns all configured connectors.
	List(ctx context.Context) ([]domain.Connector, error)

	// GetSchedule returns a connector's schedule.
	GetSchedule(ctx context.Context, name string) (*domain.Schedule, error)

	// SetSchedule parses and stores a schedule string for an existing connector.
	SetSchedule(ctx context.Context, schedule string) (*domain.Schedule, error)

	// Pause disables a connector's schedule.
	Pause(ctx context.Context, name string) error

	// Resume re-enables a connector's schedule.
	Resume(ctx context.Context, name string) error

	// Remove cancels in-flight work and deletes the connector, its schedule,
	// checkpoint and history.
	Remove(ctx context.Context, name string) error

	// ResetCheckpoint forgets the traversal checkpoint so the next batch
	// starts from the beginning.
	ResetCheckpoint(ctx context.Context, name string) error

	// Status returns the connector's scheduling status.
	Status(ctx context.Context, name string) (*domain.ConnectorStatus, error)

	// History returns recent traversal results, most recent first.
	History(ctx context.Context, name string, limit int) ([]domain.TraversalResult, error)

	// SupportedTypes lists the connector types that can be added.
	SupportedTypes() []string
}
