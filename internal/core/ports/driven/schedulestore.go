package driven

import (
	"context"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

// ScheduleStore persists connector schedules in their canonical string form.
type ScheduleStore interface {
	// Get retrieves the schedule for a connector.
	// Returns domain.ErrNotFound if none exists.
	Get(ctx context.Context, connectorName string) (*domain.Schedule, error)

	// List returns all schedules ordered by connector name.
	List(ctx context.Context) ([]domain.Schedule, error)

	// Save stores or replaces a schedule.
	Save(ctx context.Context, schedule domain.Schedule) error

	// Delete removes a schedule.
	Delete(ctx context.Context, connectorName string) error
}

// HistoryStore records traversal results for status views.
type HistoryStore interface {
	// RecordResult logs a traversal batch result.
	RecordResult(ctx context.Context, result *domain.TraversalResult) error

	// GetHistory returns recent results for a connector.
	// Results are ordered by start time descending (most recent first).
	GetHistory(ctx context.Context, connectorName string, limit int) ([]domain.TraversalResult, error)

	// DeleteHistory removes all results for a connector.
	DeleteHistory(ctx context.Context, connectorName string) error

	// PruneHistory removes old results beyond the retention limit.
	// Keeps the most recent 'keep' results per connector.
	PruneHistory(ctx context.Context, keep int) error
}
