package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown connector type.
	ErrUnsupportedType = errors.New("unsupported type")

	// Scheduling Errors.

	// ErrInvalidScheduleFormat indicates a malformed persisted schedule string.
	ErrInvalidScheduleFormat = errors.New("invalid schedule format")

	// ErrConnectorNotFound indicates a connector name with no schedule.
	ErrConnectorNotFound = errors.New("connector not found")

	// Work Queue Errors.

	// ErrWorkCancelled indicates the watchdog or an administrator cancelled a work item.
	ErrWorkCancelled = errors.New("work cancelled")

	// ErrWorkInterrupted is the cancellation cause seen by a work item that
	// overran its interrupt timeout.
	ErrWorkInterrupted = errors.New("work interrupted")

	// ErrQueueShutdown indicates the work queue no longer accepts work.
	ErrQueueShutdown = errors.New("work queue shut down")

	// Feed Errors.

	// ErrSinkDisabled indicates the sink stayed disabled after a fresh instance was obtained.
	ErrSinkDisabled = errors.New("feed sink disabled")

	// ErrSinkCongested indicates the sink reported a backlog or low memory.
	ErrSinkCongested = errors.New("feed sink congested")
)

// ErrorKind classifies recoverable feed failures.
type ErrorKind int

const (
	// KindUnknown is not part of the recoverable taxonomy.
	KindUnknown ErrorKind = iota

	// KindInvalidScheduleFormat is a malformed persisted schedule.
	KindInvalidScheduleFormat

	// KindConnectorNotFound is an unknown connector name; the tick is skipped.
	KindConnectorNotFound

	// KindTransientSinkCongestion is a non-OK sink status, absorbed by backoff.
	KindTransientSinkCongestion

	// KindSinkTransportFailure is an error raised by the sink itself.
	// The batch is aborted without a checkpoint and retried on a later tick.
	KindSinkTransportFailure

	// KindWorkCancelled is an expected load-shedding outcome.
	KindWorkCancelled

	// KindRuntime is a programming or runtime failure, such as a panic in a work item.
	KindRuntime
)

// String returns the kind name used in logs and status views.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidScheduleFormat:
		return "invalid_schedule_format"
	case KindConnectorNotFound:
		return "connector_not_found"
	case KindTransientSinkCongestion:
		return "transient_sink_congestion"
	case KindSinkTransportFailure:
		return "sink_transport_failure"
	case KindWorkCancelled:
		return "work_cancelled"
	case KindRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// FeedError is the single tagged error type for feed failures.
type FeedError struct {
	Kind      ErrorKind
	Connector string
	Err       error
}

// NewFeedError tags err with kind for connector.
func NewFeedError(kind ErrorKind, connector string, err error) *FeedError {
	return &FeedError{Kind: kind, Connector: connector, Err: err}
}

// Error implements the error interface.
func (e *FeedError) Error() string {
	if e.Connector == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: connector %s: %v", e.Kind, e.Connector, e.Err)
}

// Unwrap returns the wrapped cause.
func (e *FeedError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first FeedError in err's chain. Untagged
// errors are classified by their sentinel where one is known.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var fe *FeedError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidScheduleFormat):
		return KindInvalidScheduleFormat
	case errors.Is(err, ErrConnectorNotFound):
		return KindConnectorNotFound
	case errors.Is(err, ErrWorkCancelled), errors.Is(err, ErrWorkInterrupted):
		return KindWorkCancelled
	case errors.Is(err, ErrSinkCongested):
		return KindTransientSinkCongestion
	case errors.Is(err, ErrSinkDisabled):
		return KindSinkTransportFailure
	default:
		return KindUnknown
	}
}
