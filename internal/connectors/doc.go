// Package connectors provides Traverser implementations for document
// sources. Each connector type knows how to walk one kind of repository in
// checkpointed batches (filesystem, ...).
//
// Connector types are registered with the Factory at startup.
package connectors
