package domain

// FeedAction is what the indexing service should do with a document.
type FeedAction int

const (
	// ActionAdd adds or replaces the document in the index.
	ActionAdd FeedAction = iota

	// ActionDelete removes the document from the index.
	ActionDelete
)

// String returns the action name used in feeds.
func (a FeedAction) String() string {
	if a == ActionDelete {
		return "delete"
	}
	return "add"
}

// Document is one unit of content fetched by a connector traversal.
// The traversal core forwards it to the sink without examining Content.
type Document struct {
	// ID is the connector-assigned document identifier.
	ID string

	// ConnectorName links to the connector that produced this document.
	ConnectorName string

	// URI is the original location (file path, URL, etc).
	URI string

	// MIMEType is the content type (e.g., "application/pdf").
	MIMEType string

	// Action is the feed action.
	Action FeedAction

	// Content is the raw bytes. Empty for deletes.
	Content []byte

	// Metadata contains connector-specific key-value pairs.
	Metadata map[string]string
}

// Size returns the approximate buffered size of the document in bytes.
func (d *Document) Size() int {
	n := len(d.ID) + len(d.URI) + len(d.MIMEType) + len(d.Content)
	for k, v := range d.Metadata {
		n += len(k) + len(v)
	}
	return n
}
