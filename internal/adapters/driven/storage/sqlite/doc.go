// Package sqlite provides a unified SQLite-based implementation of the feed
// store ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - ConnectorStore: connector instance configuration
//   - ScheduleStore: schedules in their canonical string form
//   - CheckpointStore: opaque traversal resume tokens
//   - HistoryStore: traversal batch results
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha-feed/data/feed.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
