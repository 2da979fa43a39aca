package connectors

import (
	"context"
	"errors"
	"sort"
	"sync"

	crdb "github.com/cockroachdb/errors"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
)

// Ensure Factory implements the interface.
var _ driven.TraverserFactory = (*Factory)(nil)

// Factory creates traversers for configured connectors by type.
type Factory struct {
	connectors driven.ConnectorStore

	mu       sync.RWMutex
	builders map[string]driven.TraverserBuilder
}

// NewFactory creates a factory that looks connectors up in store.
func NewFactory(store driven.ConnectorStore) *Factory {
	return &Factory{
		connectors: store,
		builders:   make(map[string]driven.TraverserBuilder),
	}
}

// Register adds a traverser builder for the given type.
func (f *Factory) Register(connectorType string, builder driven.TraverserBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[connectorType] = builder
}

// SupportedTypes returns all registered connector types, sorted.
func (f *Factory) SupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Supports reports whether connectorType has a registered builder.
func (f *Factory) Supports(connectorType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.builders[connectorType]
	return ok
}

// Create returns a Traverser for the named connector.
func (f *Factory) Create(ctx context.Context, connectorName string) (driven.Traverser, error) {
	c, err := f.connectors.Get(ctx, connectorName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewFeedError(domain.KindConnectorNotFound, connectorName, domain.ErrConnectorNotFound)
		}
		return nil, crdb.Wrapf(err, "load connector %s", connectorName)
	}

	f.mu.RLock()
	build, ok := f.builders[c.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, crdb.Wrapf(domain.ErrUnsupportedType, "connector %s has type %q", connectorName, c.Type)
	}

	t, err := build(*c)
	if err != nil {
		return nil, crdb.Wrapf(err, "build %s traverser for %s", c.Type, connectorName)
	}
	return t, nil
}
