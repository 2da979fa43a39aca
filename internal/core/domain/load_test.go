package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBatchSize_IsZero(t *testing.T) {
	assert.True(t, BatchSize{}.IsZero())
	assert.False(t, BatchSize{Hint: 1, Maximum: 2}.IsZero())
}

func TestLoadState_RollPeriod(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var s LoadState

	s.RollPeriod(start, time.Minute)
	assert.Equal(t, start, s.PeriodStart)

	s.DocsThisPeriod = 40
	s.RollPeriod(start.Add(time.Minute), time.Minute)
	assert.Equal(t, 40, s.DocsThisPeriod, "exactly one period has not rolled")

	s.RollPeriod(start.Add(time.Minute+time.Millisecond), time.Minute)
	assert.Equal(t, 0, s.DocsThisPeriod)
	assert.Equal(t, start.Add(time.Minute+time.Millisecond), s.PeriodStart)
}

func TestLoadState_InRetryDelay(t *testing.T) {
	finished := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	var s LoadState
	assert.False(t, s.InRetryDelay(finished))

	s.LastFinished = finished
	s.LastRetryDelay = 5 * time.Second
	assert.True(t, s.InRetryDelay(finished.Add(4*time.Second)))
	assert.False(t, s.InRetryDelay(finished.Add(5*time.Second)))

	s.LastRetryDelay = 0
	assert.False(t, s.InRetryDelay(finished))
}
