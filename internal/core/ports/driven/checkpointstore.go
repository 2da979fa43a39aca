package driven

import (
	"context"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

// CheckpointStore persists traversal checkpoints.
type CheckpointStore interface {
	// Save stores or updates a checkpoint.
	Save(ctx context.Context, checkpoint domain.Checkpoint) error

	// Get retrieves the checkpoint for a connector.
	// Returns domain.ErrNotFound if none was saved.
	Get(ctx context.Context, connectorName string) (*domain.Checkpoint, error)

	// Delete removes the checkpoint for a connector.
	Delete(ctx context.Context, connectorName string) error
}
