package driven

import (
	"context"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

// TraverserBuilder creates a Traverser for a connector instance.
type TraverserBuilder func(connector domain.Connector) (Traverser, error)

// TraverserFactory creates traversers from connector configuration.
// It maintains a registry of connector types and their builders.
type TraverserFactory interface {
	// Create returns a Traverser for the named connector.
	// Returns ErrConnectorNotFound if the connector is not configured and
	// ErrUnsupportedType if its type is unknown.
	Create(ctx context.Context, connectorName string) (Traverser, error)

	// Register adds a traverser builder for the given type.
	Register(connectorType string, builder TraverserBuilder)

	// SupportedTypes returns all registered connector types.
	SupportedTypes() []string
}
