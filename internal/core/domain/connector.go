package domain

import "time"

// Connector is a configured connector instance: a named data source of a
// registered traverser type.
type Connector struct {
	// Name is the unique connector name, shared with its Schedule.
	Name string

	// Type identifies the traverser type (e.g., "filesystem").
	Type string

	// Config contains type-specific configuration.
	Config map[string]string

	// CreatedAt is when the connector was added.
	CreatedAt time.Time

	// UpdatedAt is when the connector was last updated.
	UpdatedAt time.Time
}

// Checkpoint is the opaque resume token for a connector's traversal.
// It is persisted only after the documents it covers were accepted by the sink.
type Checkpoint struct {
	// ConnectorName links to the connector being traversed.
	ConnectorName string

	// Token is produced by the traverser and passed back unexamined.
	Token string

	// UpdatedAt is when the checkpoint was saved.
	UpdatedAt time.Time
}
