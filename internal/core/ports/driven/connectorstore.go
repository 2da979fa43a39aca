package driven

import (
	"context"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

// ConnectorStore persists connector instance configuration.
type ConnectorStore interface {
	// Save stores or updates a connector.
	Save(ctx context.Context, connector domain.Connector) error

	// Get retrieves a connector by name.
	// Returns domain.ErrNotFound if it does not exist.
	Get(ctx context.Context, name string) (*domain.Connector, error)

	// Delete removes a connector.
	Delete(ctx context.Context, name string) error

	// List returns all connectors.
	List(ctx context.Context) ([]domain.Connector, error)
}
