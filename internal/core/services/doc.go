// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The traversal core lives here: HostLoadManager sizes batches,
// WorkQueue runs them under a watchdog, DocumentAcceptor applies sink
// backpressure and TraversalScheduler ties them together on a tick.
//
// Services are pure Go with no CGO dependencies.
package services
