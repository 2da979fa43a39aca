package domain

import "time"

// BatchSize is the number of documents a traversal is asked for.
// Hint is what the connector should return; Maximum is the hard cap on
// what the traversal will consume from a connector that ignores the hint.
type BatchSize struct {
	Hint    int
	Maximum int
}

// IsZero reports whether no documents may be requested.
func (b BatchSize) IsZero() bool {
	return b.Hint == 0
}

// LoadState is the per-connector rolling-window counter kept by the host
// load manager.
type LoadState struct {
	// PeriodStart is when the current load period began.
	PeriodStart time.Time

	// DocsThisPeriod is the number of documents traversed since PeriodStart.
	DocsThisPeriod int

	// LastFinished is when the connector last finished a traversal.
	LastFinished time.Time

	// LastRetryDelay is the schedule's retry delay recorded at LastFinished.
	LastRetryDelay time.Duration

	// LastElapsed is how long the last finished traversal took.
	LastElapsed time.Duration
}

// RollPeriod starts a new period at now when more than one period has
// elapsed since PeriodStart.
func (s *LoadState) RollPeriod(now time.Time, period time.Duration) {
	if s.PeriodStart.IsZero() || now.Sub(s.PeriodStart) > period {
		s.PeriodStart = now
		s.DocsThisPeriod = 0
	}
}

// InRetryDelay reports whether now is still inside the post-finish retry window.
func (s *LoadState) InRetryDelay(now time.Time) bool {
	if s.LastFinished.IsZero() || s.LastRetryDelay <= 0 {
		return false
	}
	return now.Before(s.LastFinished.Add(s.LastRetryDelay))
}
