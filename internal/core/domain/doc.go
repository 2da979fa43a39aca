// Package domain defines the core business entities for Sercha Feed.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Schedule: A connector's load, retry delay and run windows
//   - BatchSize / LoadState: Per-connector traversal quota
//   - PusherStatus: Feed sink health
//   - WorkItemState: Work queue item lifecycle
//   - FeedError: The tagged error taxonomy
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
