package driven

import (
	"time"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

// FeedMetrics receives scheduling and backpressure events.
// Implementations must be safe for concurrent use.
type FeedMetrics interface {
	// WorkSubmitted counts a queued work item.
	WorkSubmitted(connectorName string)

	// WorkFinished records a work item reaching a terminal state.
	WorkFinished(connectorName string, state domain.WorkItemState, kind domain.ErrorKind, elapsed time.Duration)

	// WorkInterrupted counts a watchdog interrupt.
	WorkInterrupted(connectorName string)

	// WorkersBusy reports the number of running items.
	WorkersBusy(n int)

	// BackoffSlept records a backpressure sleep.
	BackoffSlept(connectorName string, status domain.PusherStatus, d time.Duration)

	// DocumentsFed counts documents handed to the sink.
	DocumentsFed(connectorName string, n int)

	// TickSkipped counts a connector skipped on a tick.
	TickSkipped(connectorName string, reason domain.SkipReason)
}
