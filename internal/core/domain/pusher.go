package domain

// PusherStatus is the health reported by a feed sink.
type PusherStatus int

const (
	// PusherOK means the sink accepts documents.
	PusherOK PusherStatus = iota

	// PusherLocalFeedBacklog means this process's outbound buffer is backed up.
	PusherLocalFeedBacklog

	// PusherGSAFeedBacklog means the downstream indexing service is backed up.
	PusherGSAFeedBacklog

	// PusherLowMemory means the sink is short of memory to buffer more content.
	PusherLowMemory

	// PusherDisabled means the sink instance can no longer be used.
	PusherDisabled
)

// String returns the status name.
func (s PusherStatus) String() string {
	switch s {
	case PusherOK:
		return "OK"
	case PusherLocalFeedBacklog:
		return "LOCAL_FEED_BACKLOG"
	case PusherGSAFeedBacklog:
		return "GSA_FEED_BACKLOG"
	case PusherLowMemory:
		return "LOW_MEMORY"
	case PusherDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// Congested reports whether the status calls for a backoff sleep.
func (s PusherStatus) Congested() bool {
	return s == PusherLocalFeedBacklog || s == PusherGSAFeedBacklog || s == PusherLowMemory
}
