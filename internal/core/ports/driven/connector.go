package driven

import (
	"context"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

// Traverser fetches documents from one connector instance in batches.
// Each connector type (filesystem, ...) implements this interface.
//
// A nil DocumentList with a nil error means the traversal has finished and
// there is nothing more to fetch until the next traversal starts.
type Traverser interface {
	// StartTraversal begins a traversal from the start of the repository.
	StartTraversal(ctx context.Context, batch domain.BatchSize) (DocumentList, error)

	// ResumeTraversal continues after the given checkpoint token.
	ResumeTraversal(ctx context.Context, checkpoint string, batch domain.BatchSize) (DocumentList, error)

	// Close releases resources.
	Close() error
}

// DocumentList is one batch of documents returned by a Traverser.
type DocumentList interface {
	// Next returns the next document, or nil when the batch is exhausted.
	Next(ctx context.Context) (*domain.Document, error)

	// Checkpoint returns a token that resumes after the last document
	// returned by Next.
	Checkpoint() (string, error)
}
