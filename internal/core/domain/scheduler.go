package domain

import "time"

// TraversalOutcome is how a traversal batch ended.
type TraversalOutcome string

const (
	// OutcomeCheckpointed means documents were fed and a checkpoint was saved.
	OutcomeCheckpointed TraversalOutcome = "checkpointed"

	// OutcomeFinished means the connector reported the traversal complete.
	OutcomeFinished TraversalOutcome = "finished"

	// OutcomeFailed means the batch was aborted without a checkpoint.
	OutcomeFailed TraversalOutcome = "failed"

	// OutcomeCancelled means the batch was cancelled without a checkpoint.
	OutcomeCancelled TraversalOutcome = "cancelled"
)

// TraversalResult represents the outcome of one traversal batch.
type TraversalResult struct {
	// ConnectorName identifies which connector was traversed.
	ConnectorName string

	// StartedAt is when the batch started.
	StartedAt time.Time

	// EndedAt is when the batch ended.
	EndedAt time.Time

	// Outcome is how the batch ended.
	Outcome TraversalOutcome

	// Error contains the error message for failed or cancelled batches.
	Error string

	// DocumentsFed is the number of documents handed to the sink.
	DocumentsFed int

	// BatchHint is the hint the batch was started with.
	BatchHint int
}

// SkipReason explains why a connector did not run on a tick.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipDisabled       SkipReason = "disabled"
	SkipOutsideWindow  SkipReason = "outside_schedule"
	SkipDelayed        SkipReason = "delayed"
	SkipInFlight       SkipReason = "in_flight"
	SkipNoQuota        SkipReason = "no_quota"
	SkipNoSchedule     SkipReason = "no_schedule"
	SkipSubmitRejected SkipReason = "submit_rejected"
)

// ConnectorStatus is the administrator's view of one connector.
type ConnectorStatus struct {
	// ConnectorName identifies the connector.
	ConnectorName string

	// Schedule is the canonical schedule string, empty when unscheduled.
	Schedule string

	// Running indicates a work item is queued or executing.
	Running bool

	// WorkState is the state of the current or last work item.
	WorkState WorkItemState

	// LastSkip is why the connector was skipped on the last tick.
	LastSkip SkipReason

	// NextWindowSeconds is the time until the next schedule window, -1 if never.
	NextWindowSeconds int

	// Load is the current load period counter.
	Load LoadState

	// LastResult is the most recent traversal result, if any.
	LastResult *TraversalResult

	// LastErrorKind classifies the last failure.
	LastErrorKind ErrorKind

	// SinkStatus is the last status read from the connector's sink.
	SinkStatus PusherStatus
}
