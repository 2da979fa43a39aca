package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultRetryDelayMillis is substituted when a persisted schedule has no
	// retry delay field.
	DefaultRetryDelayMillis int64 = 300000

	// disabledPrefix marks a persisted schedule as disabled.
	disabledPrefix = "#"

	hoursPerDay   = 24
	secondsPerDay = hoursPerDay * 3600
)

// ScheduleInterval is a half-open range of hours [StartHour, EndHour) in local time.
// StartHour > EndHour wraps past midnight. StartHour == EndHour, and 0-24,
// cover the whole day.
type ScheduleInterval struct {
	StartHour int
	EndHour   int
}

// String returns the persisted "start-end" form.
func (i ScheduleInterval) String() string {
	return fmt.Sprintf("%d-%d", i.StartHour, i.EndHour)
}

// WholeDay reports whether the interval covers every hour.
func (i ScheduleInterval) WholeDay() bool {
	return i.StartHour == i.EndHour || (i.StartHour == 0 && i.EndHour == hoursPerDay)
}

// Wraps reports whether the interval crosses midnight.
func (i ScheduleInterval) Wraps() bool {
	return i.StartHour > i.EndHour
}

// Contains reports whether hour (0-23) falls inside the interval.
func (i ScheduleInterval) Contains(hour int) bool {
	switch {
	case i.WholeDay():
		return true
	case i.Wraps():
		return hour >= i.StartHour || hour < i.EndHour
	default:
		return hour >= i.StartHour && hour < i.EndHour
	}
}

// subRanges splits a midnight-wrapping interval into its two same-day parts.
func (i ScheduleInterval) subRanges() []ScheduleInterval {
	if !i.Wraps() {
		return []ScheduleInterval{i}
	}
	parts := []ScheduleInterval{{StartHour: i.StartHour, EndHour: hoursPerDay}}
	// "22-0" ends at midnight and has no morning part.
	if i.EndHour > 0 {
		parts = append(parts, ScheduleInterval{StartHour: 0, EndHour: i.EndHour})
	}
	return parts
}

func (i ScheduleInterval) validate() error {
	if i.StartHour < 0 || i.StartHour >= hoursPerDay {
		return fmt.Errorf("%w: start hour %d out of range", ErrInvalidScheduleFormat, i.StartHour)
	}
	if i.EndHour < 0 || i.EndHour > hoursPerDay {
		return fmt.Errorf("%w: end hour %d out of range", ErrInvalidScheduleFormat, i.EndHour)
	}
	return nil
}

// Schedule is a connector's run policy: its document load per period, the
// delay after a finished traversal, and the hours it may run.
//
// A Schedule is a value. The With* methods return modified copies; callers
// that need a fresher schedule re-fetch it from the store.
type Schedule struct {
	// ConnectorName is the unique key of the connector instance.
	ConnectorName string

	// Disabled stops the connector from running regardless of intervals.
	Disabled bool

	// Load is the target number of documents per load period.
	Load int

	// RetryDelayMillis is the minimum wait after a finished traversal.
	RetryDelayMillis int64

	// Intervals are the hours the connector may run. Empty means never.
	Intervals []ScheduleInterval
}

// NewSchedule builds a schedule from explicit fields and an interval list in
// the persisted "H1-H2:H3-H4" form.
func NewSchedule(name string, load int, retryDelayMillis int64, intervals string) (*Schedule, error) {
	ivs, err := ParseScheduleIntervals(intervals)
	if err != nil {
		return nil, err
	}
	s := &Schedule{
		ConnectorName:    name,
		Load:             load,
		RetryDelayMillis: retryDelayMillis,
		Intervals:        ivs,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the schedule invariants.
func (s *Schedule) Validate() error {
	if s.ConnectorName == "" {
		return fmt.Errorf("%w: empty connector name", ErrInvalidScheduleFormat)
	}
	if strings.ContainsAny(s.ConnectorName, ":") || strings.HasPrefix(s.ConnectorName, disabledPrefix) {
		return fmt.Errorf("%w: connector name %q contains reserved characters", ErrInvalidScheduleFormat, s.ConnectorName)
	}
	if s.Load < 0 {
		return fmt.Errorf("%w: negative load %d", ErrInvalidScheduleFormat, s.Load)
	}
	if s.RetryDelayMillis < 0 {
		return fmt.Errorf("%w: negative retry delay %d", ErrInvalidScheduleFormat, s.RetryDelayMillis)
	}
	for _, iv := range s.Intervals {
		if err := iv.validate(); err != nil {
			return err
		}
	}
	return nil
}

// RetryDelay returns RetryDelayMillis as a duration.
func (s *Schedule) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMillis) * time.Millisecond
}

// String returns the canonical persisted form:
// [#]name:load:retryDelayMillis:start1-end1:start2-end2...
func (s *Schedule) String() string {
	var b strings.Builder
	if s.Disabled {
		b.WriteString(disabledPrefix)
	}
	fmt.Fprintf(&b, "%s:%d:%d:", s.ConnectorName, s.Load, s.RetryDelayMillis)
	b.WriteString(s.IntervalsString())
	return b.String()
}

// LegacyString returns the older name:load:intervals form, which carries
// neither the disabled flag nor the retry delay.
func (s *Schedule) LegacyString() string {
	return fmt.Sprintf("%s:%d:%s", s.ConnectorName, s.Load, s.IntervalsString())
}

// IntervalsString returns the intervals joined by colons.
func (s *Schedule) IntervalsString() string {
	parts := make([]string, len(s.Intervals))
	for i, iv := range s.Intervals {
		parts[i] = iv.String()
	}
	return strings.Join(parts, ":")
}

// ShouldRun reports whether the connector may run at now.
func (s *Schedule) ShouldRun(now time.Time) bool {
	return !s.Disabled && len(s.Intervals) > 0 && s.InScheduledInterval(now)
}

// InScheduledInterval reports whether now's hour falls inside any interval.
func (s *Schedule) InScheduledInterval(now time.Time) bool {
	hour := now.Hour()
	for _, iv := range s.Intervals {
		if iv.Contains(hour) {
			return true
		}
	}
	return false
}

// NextScheduledInterval returns the number of seconds from now until the
// next window opens, 0 if now is inside one, or -1 if there are no intervals.
func (s *Schedule) NextScheduledInterval(now time.Time) int {
	if len(s.Intervals) == 0 {
		return -1
	}
	nowSec := now.Hour()*3600 + now.Minute()*60
	best := -1
	for _, iv := range s.Intervals {
		if iv.Contains(now.Hour()) {
			return 0
		}
		for _, r := range iv.subRanges() {
			d := r.StartHour*3600 - nowSec
			if d < 0 {
				d += secondsPerDay
			}
			if best < 0 || d < best {
				best = d
			}
		}
	}
	return best
}

// WithDisabled returns a copy with the disabled flag set to disabled.
func (s Schedule) WithDisabled(disabled bool) Schedule {
	s.Intervals = append([]ScheduleInterval(nil), s.Intervals...)
	s.Disabled = disabled
	return s
}

// WithLoad returns a copy with a new load.
func (s Schedule) WithLoad(load int) Schedule {
	s.Intervals = append([]ScheduleInterval(nil), s.Intervals...)
	s.Load = load
	return s
}

// WithRetryDelay returns a copy with a new retry delay.
func (s Schedule) WithRetryDelay(millis int64) Schedule {
	s.Intervals = append([]ScheduleInterval(nil), s.Intervals...)
	s.RetryDelayMillis = millis
	return s
}

// WithIntervals returns a copy with the given intervals.
func (s Schedule) WithIntervals(ivs []ScheduleInterval) Schedule {
	s.Intervals = append([]ScheduleInterval(nil), ivs...)
	return s
}

// scheduleParser is one accepted persisted layout. It reports matched=false
// to let the next variant try the same fields.
type scheduleParser func(rest []string) (retryDelay int64, ivs []ScheduleInterval, matched bool, err error)

// scheduleParsers are tried in order: canonical first, then legacy.
var scheduleParsers = []scheduleParser{
	parseCanonicalFields,
	parseLegacyFields,
}

// parseCanonicalFields handles retryDelay:intervals...
func parseCanonicalFields(rest []string) (int64, []ScheduleInterval, bool, error) {
	delay, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return 0, nil, false, nil
	}
	ivs, err := parseIntervalFields(rest[1:])
	if err != nil {
		return 0, nil, true, err
	}
	return delay, ivs, true, nil
}

// parseLegacyFields handles intervals... with no retry delay.
func parseLegacyFields(rest []string) (int64, []ScheduleInterval, bool, error) {
	ivs, err := parseIntervalFields(rest)
	if err != nil {
		return 0, nil, false, err
	}
	return DefaultRetryDelayMillis, ivs, true, nil
}

// ParseSchedule parses a persisted schedule string. A leading '#' marks the
// schedule disabled. The retry delay field may be omitted (legacy form).
func ParseSchedule(str string) (*Schedule, error) {
	raw := strings.TrimSpace(str)
	disabled := strings.HasPrefix(raw, disabledPrefix)
	raw = strings.TrimPrefix(raw, disabledPrefix)

	fields := strings.Split(raw, ":")
	if len(fields) < 3 {
		return nil, fmt.Errorf("%w: %q: expected name:load:retryDelay:intervals", ErrInvalidScheduleFormat, str)
	}

	load, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: load %q is not an integer", ErrInvalidScheduleFormat, str, fields[1])
	}

	var lastErr error
	for _, parse := range scheduleParsers {
		delay, ivs, matched, err := parse(fields[2:])
		if err != nil {
			lastErr = err
			if matched {
				break
			}
			continue
		}
		if !matched {
			continue
		}
		s := &Schedule{
			ConnectorName:    fields[0],
			Disabled:         disabled,
			Load:             load,
			RetryDelayMillis: delay,
			Intervals:        ivs,
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if lastErr == nil {
		lastErr = ErrInvalidScheduleFormat
	}
	return nil, fmt.Errorf("%q: %w", str, lastErr)
}

// ParseScheduleIntervals parses "H1-H2:H3-H4". An empty string yields no intervals.
func ParseScheduleIntervals(s string) ([]ScheduleInterval, error) {
	return parseIntervalFields(strings.Split(strings.TrimSpace(s), ":"))
}

func parseIntervalFields(fields []string) ([]ScheduleInterval, error) {
	var ivs []ScheduleInterval
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		iv, err := parseInterval(f)
		if err != nil {
			return nil, err
		}
		ivs = append(ivs, iv)
	}
	return ivs, nil
}

func parseInterval(s string) (ScheduleInterval, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return ScheduleInterval{}, fmt.Errorf("%w: interval %q is not start-end", ErrInvalidScheduleFormat, s)
	}
	startHour, err := strconv.Atoi(start)
	if err != nil {
		return ScheduleInterval{}, fmt.Errorf("%w: interval %q has a bad start hour", ErrInvalidScheduleFormat, s)
	}
	endHour, err := strconv.Atoi(end)
	if err != nil {
		return ScheduleInterval{}, fmt.Errorf("%w: interval %q has a bad end hour", ErrInvalidScheduleFormat, s)
	}
	iv := ScheduleInterval{StartHour: startHour, EndHour: endHour}
	if err := iv.validate(); err != nil {
		return ScheduleInterval{}, err
	}
	return iv, nil
}
