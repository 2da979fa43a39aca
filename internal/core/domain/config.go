package domain

import (
	"errors"
	"fmt"
	"time"
)

// LoadConfig holds host load manager policy.
type LoadConfig struct {
	// Period is the rolling window over which a connector's load is counted.
	Period time.Duration

	// BatchSizeMultiplier scales the hint into the batch maximum.
	BatchSizeMultiplier float64

	// BatchSizeOverride, when positive, caps the hint instead of the
	// remaining quota alone.
	BatchSizeOverride int

	// MinHintDivisor sets the smallest worthwhile hint as load/MinHintDivisor.
	// A positive hint below it is reduced to 1.
	MinHintDivisor int

	// MaxFeedSize is the free memory, in bytes, one in-flight feed needs.
	MaxFeedSize uint64
}

// WorkQueueConfig holds worker pool and watchdog settings.
type WorkQueueConfig struct {
	// Workers is the number of concurrent workers.
	Workers int

	// Capacity is the number of pending items before Submit blocks.
	Capacity int

	// InterruptTimeout is when a running item is sent a cooperative interrupt.
	InterruptTimeout time.Duration

	// KillTimeout is when a running item is forcibly cancelled and abandoned.
	KillTimeout time.Duration

	// PollPeriod is how often the watchdog checks running items.
	PollPeriod time.Duration
}

// Validate checks the watchdog deadlines are ordered.
func (c WorkQueueConfig) Validate() error {
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if c.Capacity < 0 {
		return errors.New("capacity cannot be negative")
	}
	if c.InterruptTimeout <= 0 || c.KillTimeout <= c.InterruptTimeout {
		return errors.New("kill timeout must exceed a positive interrupt timeout")
	}
	if c.PollPeriod <= 0 || c.PollPeriod >= c.InterruptTimeout {
		return errors.New("watchdog poll period must be positive and shorter than the interrupt timeout")
	}
	return nil
}

// AcceptorConfig holds the feed backpressure policy.
type AcceptorConfig struct {
	// LocalBacklogSleep is the base sleep for local backlog and low memory.
	LocalBacklogSleep time.Duration

	// FeedBacklogSleep is the base sleep for a downstream backlog.
	FeedBacklogSleep time.Duration

	// MaxBackoffRetries caps the linear backoff multiplier.
	MaxBackoffRetries int
}

// SchedulerConfig holds traversal scheduler settings.
type SchedulerConfig struct {
	// TickInterval is how often the scheduler considers every connector.
	TickInterval time.Duration

	// ShutdownDeadline bounds how long Stop waits for running work.
	ShutdownDeadline time.Duration

	// HistoryRetention is the number of traversal results kept per connector.
	HistoryRetention int
}

// SinkConfig holds spool-directory sink settings.
type SinkConfig struct {
	// Dir is where feed files are written. Empty means the default data directory.
	Dir string

	// MaxPendingFeeds is the number of unconsumed feed files that counts as
	// a local backlog.
	MaxPendingFeeds int

	// DownstreamStallAfter is the age of the oldest unconsumed feed file
	// that counts as a downstream backlog.
	DownstreamStallAfter time.Duration

	// MaxBufferBytes is the total size of unconsumed feed files that counts
	// as low memory.
	MaxBufferBytes int64
}

// FeedConfig is the complete process configuration.
type FeedConfig struct {
	Load      LoadConfig
	Queue     WorkQueueConfig
	Acceptor  AcceptorConfig
	Scheduler SchedulerConfig
	Sink      SinkConfig
}

// Validate checks every section.
func (c FeedConfig) Validate() error {
	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	if c.Load.Period <= 0 {
		return errors.New("load: period must be positive")
	}
	if c.Load.BatchSizeMultiplier < 1 {
		return errors.New("load: batch size multiplier must be at least 1")
	}
	if c.Load.BatchSizeOverride < 0 || c.Load.MinHintDivisor < 0 {
		return errors.New("load: override and divisor cannot be negative")
	}
	if c.Acceptor.LocalBacklogSleep < 0 || c.Acceptor.FeedBacklogSleep < 0 || c.Acceptor.MaxBackoffRetries <= 0 {
		return errors.New("acceptor: sleeps cannot be negative and retries must be positive")
	}
	if c.Scheduler.TickInterval <= 0 || c.Scheduler.ShutdownDeadline <= 0 {
		return errors.New("scheduler: tick interval and shutdown deadline must be positive")
	}
	if c.Scheduler.HistoryRetention < 0 {
		return errors.New("scheduler: history retention cannot be negative")
	}
	if c.Sink.MaxPendingFeeds <= 0 || c.Sink.DownstreamStallAfter <= 0 || c.Sink.MaxBufferBytes <= 0 {
		return errors.New("sink: limits must be positive")
	}
	return nil
}

// DefaultLoadConfig returns the load policy defaults.
func DefaultLoadConfig() LoadConfig {
	return LoadConfig{
		Period:              60 * time.Second,
		BatchSizeMultiplier: 2,
		MinHintDivisor:      60,
		MaxFeedSize:         32 << 20,
	}
}

// DefaultWorkQueueConfig returns the worker pool defaults.
func DefaultWorkQueueConfig() WorkQueueConfig {
	return WorkQueueConfig{
		Workers:          4,
		Capacity:         16,
		InterruptTimeout: 5 * time.Minute,
		KillTimeout:      10 * time.Minute,
		PollPeriod:       5 * time.Second,
	}
}

// DefaultAcceptorConfig returns the backpressure defaults.
func DefaultAcceptorConfig() AcceptorConfig {
	return AcceptorConfig{
		LocalBacklogSleep: 500 * time.Millisecond,
		FeedBacklogSleep:  750 * time.Millisecond,
		MaxBackoffRetries: 10,
	}
}

// DefaultSchedulerConfig returns sensible defaults for the scheduler.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:     5 * time.Second,
		ShutdownDeadline: 30 * time.Second,
		HistoryRetention: 100,
	}
}

// DefaultSinkConfig returns the spool sink defaults.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		MaxPendingFeeds:      8,
		DownstreamStallAfter: 2 * time.Minute,
		MaxBufferBytes:       64 << 20,
	}
}

// DefaultFeedConfig returns the complete default configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		Load:      DefaultLoadConfig(),
		Queue:     DefaultWorkQueueConfig(),
		Acceptor:  DefaultAcceptorConfig(),
		Scheduler: DefaultSchedulerConfig(),
		Sink:      DefaultSinkConfig(),
	}
}

// SettingKind is the value type of a configuration key.
type SettingKind string

const (
	SettingInt      SettingKind = "int"
	SettingFloat    SettingKind = "float"
	SettingDuration SettingKind = "duration"
	SettingString   SettingKind = "string"
)

// SettingKey describes one configuration key.
type SettingKey struct {
	// Name is the dotted key, e.g. "queue.workers".
	Name string

	// Kind is the value type.
	Kind SettingKind

	// Description is shown by "config list".
	Description string

	// Reloadable keys take effect without a restart.
	Reloadable bool
}
