package services

import (
	"sort"
	"strconv"
	"strings"
	"time"

	crdb "github.com/cockroachdb/errors"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for feed settings.
const (
	keyLoadPeriod         = "load.period"
	keyLoadMultiplier     = "load.batch_size_multiplier"
	keyLoadOverride       = "load.batch_size_override"
	keyLoadMinDivisor     = "load.min_hint_divisor"
	keyLoadMaxFeedSize    = "load.max_feed_size"
	keyQueueWorkers       = "queue.workers"
	keyQueueCapacity      = "queue.capacity"
	keyQueueInterrupt     = "queue.interrupt_timeout"
	keyQueueKill          = "queue.kill_timeout"
	keyQueuePoll          = "queue.poll_period"
	keyAcceptorLocal      = "acceptor.local_backlog_sleep"
	keyAcceptorFeed       = "acceptor.feed_backlog_sleep"
	keyAcceptorRetries    = "acceptor.max_backoff_retries"
	keySchedulerTick      = "scheduler.tick_interval"
	keySchedulerShutdown  = "scheduler.shutdown_deadline"
	keySchedulerRetention = "scheduler.history_retention"
	keySinkDir            = "sink.dir"
	keySinkMaxPending     = "sink.max_pending_feeds"
	keySinkStall          = "sink.downstream_stall_after"
	keySinkMaxBuffer      = "sink.max_buffer_bytes"
)

var settingKeys = []domain.SettingKey{
	{Name: keyLoadPeriod, Kind: domain.SettingDuration, Description: "rolling window for connector load", Reloadable: true},
	{Name: keyLoadMultiplier, Kind: domain.SettingFloat, Description: "batch maximum as a multiple of the hint", Reloadable: true},
	{Name: keyLoadOverride, Kind: domain.SettingInt, Description: "cap on the batch hint (0 for none)", Reloadable: true},
	{Name: keyLoadMinDivisor, Kind: domain.SettingInt, Description: "smallest hint is load divided by this", Reloadable: true},
	{Name: keyLoadMaxFeedSize, Kind: domain.SettingInt, Description: "free bytes needed per in-flight feed", Reloadable: true},
	{Name: keyQueueWorkers, Kind: domain.SettingInt, Description: "concurrent traversal workers"},
	{Name: keyQueueCapacity, Kind: domain.SettingInt, Description: "pending items before submit blocks"},
	{Name: keyQueueInterrupt, Kind: domain.SettingDuration, Description: "running time before a cooperative interrupt"},
	{Name: keyQueueKill, Kind: domain.SettingDuration, Description: "running time before forced cancellation"},
	{Name: keyQueuePoll, Kind: domain.SettingDuration, Description: "watchdog poll period"},
	{Name: keyAcceptorLocal, Kind: domain.SettingDuration, Description: "base sleep for local backlog and low memory", Reloadable: true},
	{Name: keyAcceptorFeed, Kind: domain.SettingDuration, Description: "base sleep for downstream backlog", Reloadable: true},
	{Name: keyAcceptorRetries, Kind: domain.SettingInt, Description: "cap on the backoff multiplier", Reloadable: true},
	{Name: keySchedulerTick, Kind: domain.SettingDuration, Description: "scheduling tick interval"},
	{Name: keySchedulerShutdown, Kind: domain.SettingDuration, Description: "graceful shutdown deadline"},
	{Name: keySchedulerRetention, Kind: domain.SettingInt, Description: "traversal results kept per connector"},
	{Name: keySinkDir, Kind: domain.SettingString, Description: "spool directory for feed files"},
	{Name: keySinkMaxPending, Kind: domain.SettingInt, Description: "pending feed files that count as local backlog"},
	{Name: keySinkStall, Kind: domain.SettingDuration, Description: "oldest pending feed age that counts as downstream backlog"},
	{Name: keySinkMaxBuffer, Kind: domain.SettingInt, Description: "unconsumed feed bytes that count as low memory"},
}

// SettingsService manages the feed configuration.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Keys lists every known configuration key, sorted by name.
func (s *SettingsService) Keys() []domain.SettingKey {
	keys := append([]domain.SettingKey(nil), settingKeys...)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys
}

// FeedConfig returns the effective configuration.
func (s *SettingsService) FeedConfig() (domain.FeedConfig, error) {
	cfg := s.read()
	if err := cfg.Validate(); err != nil {
		return cfg, crdb.WithHint(
			crdb.Wrapf(err, "invalid configuration in %s", s.configStore.Path()),
			"fix the value or remove it to use the default")
	}
	return cfg, nil
}

func (s *SettingsService) read() domain.FeedConfig {
	d := domain.DefaultFeedConfig()
	return domain.FeedConfig{
		Load: domain.LoadConfig{
			Period:              s.getDuration(keyLoadPeriod, d.Load.Period),
			BatchSizeMultiplier: s.getFloat(keyLoadMultiplier, d.Load.BatchSizeMultiplier),
			BatchSizeOverride:   s.getInt(keyLoadOverride, d.Load.BatchSizeOverride),
			MinHintDivisor:      s.getInt(keyLoadMinDivisor, d.Load.MinHintDivisor),
			MaxFeedSize:         uint64(s.getInt(keyLoadMaxFeedSize, int(d.Load.MaxFeedSize))),
		},
		Queue: domain.WorkQueueConfig{
			Workers:          s.getInt(keyQueueWorkers, d.Queue.Workers),
			Capacity:         s.getInt(keyQueueCapacity, d.Queue.Capacity),
			InterruptTimeout: s.getDuration(keyQueueInterrupt, d.Queue.InterruptTimeout),
			KillTimeout:      s.getDuration(keyQueueKill, d.Queue.KillTimeout),
			PollPeriod:       s.getDuration(keyQueuePoll, d.Queue.PollPeriod),
		},
		Acceptor: domain.AcceptorConfig{
			LocalBacklogSleep: s.getDuration(keyAcceptorLocal, d.Acceptor.LocalBacklogSleep),
			FeedBacklogSleep:  s.getDuration(keyAcceptorFeed, d.Acceptor.FeedBacklogSleep),
			MaxBackoffRetries: s.getInt(keyAcceptorRetries, d.Acceptor.MaxBackoffRetries),
		},
		Scheduler: domain.SchedulerConfig{
			TickInterval:     s.getDuration(keySchedulerTick, d.Scheduler.TickInterval),
			ShutdownDeadline: s.getDuration(keySchedulerShutdown, d.Scheduler.ShutdownDeadline),
			HistoryRetention: s.getInt(keySchedulerRetention, d.Scheduler.HistoryRetention),
		},
		Sink: domain.SinkConfig{
			Dir:                  s.getString(keySinkDir, d.Sink.Dir),
			MaxPendingFeeds:      s.getInt(keySinkMaxPending, d.Sink.MaxPendingFeeds),
			DownstreamStallAfter: s.getDuration(keySinkStall, d.Sink.DownstreamStallAfter),
			MaxBufferBytes:       int64(s.getInt(keySinkMaxBuffer, int(d.Sink.MaxBufferBytes))),
		},
	}
}

// Get returns the effective value of key.
func (s *SettingsService) Get(key string) (string, error) {
	k, ok := lookupSettingKey(key)
	if !ok {
		return "", crdb.Wrapf(domain.ErrNotFound, "unknown setting %q", key)
	}
	if _, set := s.configStore.Get(key); !set {
		return defaultSettingValue(k.Name), nil
	}
	switch k.Kind {
	case domain.SettingInt:
		return strconv.Itoa(s.configStore.GetInt(key)), nil
	case domain.SettingFloat:
		return strconv.FormatFloat(s.configStore.GetFloat(key), 'g', -1, 64), nil
	case domain.SettingDuration:
		return s.configStore.GetDuration(key).String(), nil
	default:
		return s.configStore.GetString(key), nil
	}
}

// Set parses value for key and persists it. The value is rejected when it
// does not parse or leaves the configuration invalid.
func (s *SettingsService) Set(key, value string) error {
	k, ok := lookupSettingKey(key)
	if !ok {
		return crdb.Wrapf(domain.ErrNotFound, "unknown setting %q", key)
	}
	parsed, err := parseSetting(k, value)
	if err != nil {
		return err
	}

	candidate := &overlayConfig{ConfigStore: s.configStore, key: key, value: parsed}
	if err := (&SettingsService{configStore: candidate}).read().Validate(); err != nil {
		return crdb.Wrapf(domain.ErrInvalidInput, "%s=%s: %v", key, value, err)
	}
	if err := s.configStore.Set(key, parsed); err != nil {
		return crdb.Wrapf(err, "save %s", key)
	}
	return nil
}

func lookupSettingKey(name string) (domain.SettingKey, bool) {
	for _, k := range settingKeys {
		if k.Name == name {
			return k, true
		}
	}
	return domain.SettingKey{}, false
}

// parseSetting converts text to the stored form: int64 and float64 as TOML
// decodes them, durations as their string form.
func parseSetting(k domain.SettingKey, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch k.Kind {
	case domain.SettingInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, crdb.Wrapf(domain.ErrInvalidInput, "%s: %q is not an integer", k.Name, value)
		}
		return n, nil
	case domain.SettingFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, crdb.Wrapf(domain.ErrInvalidInput, "%s: %q is not a number", k.Name, value)
		}
		return f, nil
	case domain.SettingDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, crdb.Wrapf(domain.ErrInvalidInput, "%s: %q is not a duration", k.Name, value)
		}
		return d.String(), nil
	default:
		return value, nil
	}
}

func defaultSettingValue(name string) string {
	d := domain.DefaultFeedConfig()
	switch name {
	case keyLoadPeriod:
		return d.Load.Period.String()
	case keyLoadMultiplier:
		return strconv.FormatFloat(d.Load.BatchSizeMultiplier, 'g', -1, 64)
	case keyLoadOverride:
		return strconv.Itoa(d.Load.BatchSizeOverride)
	case keyLoadMinDivisor:
		return strconv.Itoa(d.Load.MinHintDivisor)
	case keyLoadMaxFeedSize:
		return strconv.FormatUint(d.Load.MaxFeedSize, 10)
	case keyQueueWorkers:
		return strconv.Itoa(d.Queue.Workers)
	case keyQueueCapacity:
		return strconv.Itoa(d.Queue.Capacity)
	case keyQueueInterrupt:
		return d.Queue.InterruptTimeout.String()
	case keyQueueKill:
		return d.Queue.KillTimeout.String()
	case keyQueuePoll:
		return d.Queue.PollPeriod.String()
	case keyAcceptorLocal:
		return d.Acceptor.LocalBacklogSleep.String()
	case keyAcceptorFeed:
		return d.Acceptor.FeedBacklogSleep.String()
	case keyAcceptorRetries:
		return strconv.Itoa(d.Acceptor.MaxBackoffRetries)
	case keySchedulerTick:
		return d.Scheduler.TickInterval.String()
	case keySchedulerShutdown:
		return d.Scheduler.ShutdownDeadline.String()
	case keySchedulerRetention:
		return strconv.Itoa(d.Scheduler.HistoryRetention)
	case keySinkDir:
		return d.Sink.Dir
	case keySinkMaxPending:
		return strconv.Itoa(d.Sink.MaxPendingFeeds)
	case keySinkStall:
		return d.Sink.DownstreamStallAfter.String()
	case keySinkMaxBuffer:
		return strconv.FormatInt(d.Sink.MaxBufferBytes, 10)
	default:
		return ""
	}
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetDuration(key)
}

// overlayConfig answers one key from a pending value and everything else
// from the underlying store. Used to validate a Set before persisting it.
type overlayConfig struct {
	driven.ConfigStore
	key   string
	value any
}

func (o *overlayConfig) Get(key string) (any, bool) {
	if key == o.key {
		return o.value, true
	}
	return o.ConfigStore.Get(key)
}

func (o *overlayConfig) GetString(key string) string {
	if key == o.key {
		s, _ := o.value.(string)
		return s
	}
	return o.ConfigStore.GetString(key)
}

func (o *overlayConfig) GetInt(key string) int {
	if key == o.key {
		n, _ := o.value.(int64)
		return int(n)
	}
	return o.ConfigStore.GetInt(key)
}

func (o *overlayConfig) GetFloat(key string) float64 {
	if key == o.key {
		f, _ := o.value.(float64)
		return f
	}
	return o.ConfigStore.GetFloat(key)
}

func (o *overlayConfig) GetDuration(key string) time.Duration {
	if key == o.key {
		s, _ := o.value.(string)
		d, _ := time.ParseDuration(s)
		return d
	}
	return o.ConfigStore.GetDuration(key)
}
