package services

import (
	"time"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
)

// noopMetrics discards every event. Used when no metrics sink is configured.
type noopMetrics struct{}

var _ driven.FeedMetrics = noopMetrics{}

func (noopMetrics) WorkSubmitted(string) {}

func (noopMetrics) WorkFinished(string, domain.WorkItemState, domain.ErrorKind, time.Duration) {}

func (noopMetrics) WorkInterrupted(string) {}

func (noopMetrics) WorkersBusy(int) {}

func (noopMetrics) BackoffSlept(string, domain.PusherStatus, time.Duration) {}

func (noopMetrics) DocumentsFed(string, int) {}

func (noopMetrics) TickSkipped(string, domain.SkipReason) {}

func metricsOrNoop(m driven.FeedMetrics) driven.FeedMetrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
