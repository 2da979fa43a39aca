// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Traverser: Fetches document batches from a connector instance
//   - TraverserFactory: Creates traversers from connector configuration
//   - Pusher / PusherFactory: The feed sink and its health
//   - ConnectorStore: Connector instance persistence
//   - ScheduleStore: Schedule persistence
//   - CheckpointStore: Traversal checkpoint persistence
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - HistoryStore: Traversal results. Without it, status shows no history.
//   - MemoryProbe: Free memory estimate. Without it, memory is assumed sufficient.
//   - FeedMetrics: Scheduling metrics. Without it, events are not exported.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
