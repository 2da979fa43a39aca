package driven

import (
	"context"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

// Pusher is the feed sink for one connector. It buffers documents and
// transmits them to the indexing service on Flush.
type Pusher interface {
	// Status returns the sink's current health.
	Status(ctx context.Context) domain.PusherStatus

	// Take buffers one document for transmission.
	Take(ctx context.Context, doc *domain.Document) error

	// Flush completes transmission of everything buffered.
	Flush(ctx context.Context) error

	// Cancel discards buffered content without transmitting it.
	Cancel() error

	// IsBacklogged reports whether the sink is backed up.
	IsBacklogged() bool
}

// PusherFactory supplies pushers per connector and reports the shared
// feed backlog.
type PusherFactory interface {
	// NewPusher returns a fresh sink for the connector.
	NewPusher(ctx context.Context, connectorName string) (Pusher, error)

	// IsBacklogged reports whether the feed as a whole is backed up.
	IsBacklogged() bool
}
