package driving

import (
	"context"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

// TraversalScheduler drives connector traversals on a fixed tick.
type TraversalScheduler interface {
	// Start begins the scheduling loop.
	// Blocks until Stop is called or the context is cancelled.
	Start(ctx context.Context) error

	// Stop shuts down the loop and its work queue within the configured deadline.
	Stop() error

	// Tick runs a single scheduling pass over every connector.
	Tick(ctx context.Context)

	// RunOnce runs one tick, waits for the batches it submitted and shuts down.
	RunOnce(ctx context.Context) error

	// RemoveConnector cancels the connector's in-flight work and clears its load state.
	RemoveConnector(ctx context.Context, name string) error

	// Status returns the scheduling status of a connector.
	Status(ctx context.Context, name string) (*domain.ConnectorStatus, error)

	// StatusAll returns the status of every scheduled connector.
	StatusAll(ctx context.Context) ([]domain.ConnectorStatus, error)
}
