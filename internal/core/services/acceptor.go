package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	crdb "github.com/cockroachdb/errors"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-feed/internal/logger"
)

// MemorySignal reports whether the host is short of memory for more feed content.
type MemorySignal interface {
	LowMemory(ctx context.Context) bool
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

// DocumentAcceptor forwards one connector's documents to its sink, holding
// each document back while the sink reports congestion.
// Calls are serialised; one acceptor exists per connector.
type DocumentAcceptor struct {
	name    string
	factory driven.PusherFactory
	memory  MemorySignal
	metrics driven.FeedMetrics
	sleep   SleepFunc

	cfgMu sync.RWMutex
	cfg   domain.AcceptorConfig

	mu      sync.Mutex
	pusher  driven.Pusher
	pending int

	lastStatus atomic.Int32
}

// NewDocumentAcceptor creates an acceptor for the named connector.
// memory and metrics may be nil.
func NewDocumentAcceptor(
	name string,
	factory driven.PusherFactory,
	memory MemorySignal,
	cfg domain.AcceptorConfig,
	metrics driven.FeedMetrics,
) *DocumentAcceptor {
	if cfg.MaxBackoffRetries <= 0 {
		cfg.MaxBackoffRetries = domain.DefaultAcceptorConfig().MaxBackoffRetries
	}
	return &DocumentAcceptor{
		name:    name,
		factory: factory,
		memory:  memory,
		cfg:     cfg,
		metrics: metricsOrNoop(metrics),
		sleep:   sleepContext,
	}
}

// SetSleep replaces the backoff sleep. Used by tests.
func (a *DocumentAcceptor) SetSleep(fn SleepFunc) {
	a.sleep = fn
}

// SetConfig replaces the backoff policy. It applies from the next sleep,
// including to a Take already in progress.
func (a *DocumentAcceptor) SetConfig(cfg domain.AcceptorConfig) {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	if cfg.MaxBackoffRetries <= 0 {
		cfg.MaxBackoffRetries = a.cfg.MaxBackoffRetries
	}
	a.cfg = cfg
}

// LastStatus returns the sink status most recently observed.
func (a *DocumentAcceptor) LastStatus() domain.PusherStatus {
	return domain.PusherStatus(a.lastStatus.Load())
}

// Pending returns the number of documents taken since the last flush or cancel.
func (a *DocumentAcceptor) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

func (a *DocumentAcceptor) sinkError(err error, format string, args ...any) error {
	return domain.NewFeedError(domain.KindSinkTransportFailure, a.name, crdb.Wrapf(err, format, args...))
}

func (a *DocumentAcceptor) currentPusher(ctx context.Context) (driven.Pusher, error) {
	if a.pusher != nil {
		return a.pusher, nil
	}
	p, err := a.factory.NewPusher(ctx, a.name)
	if err != nil {
		return nil, a.sinkError(err, "create sink")
	}
	a.pusher = p
	return p, nil
}

// backoff returns the sleep for the given congested status after retries
// consecutive congested checks.
func (a *DocumentAcceptor) backoff(status domain.PusherStatus, retries int) time.Duration {
	a.cfgMu.RLock()
	cfg := a.cfg
	a.cfgMu.RUnlock()

	base := cfg.LocalBacklogSleep
	if status == domain.PusherGSAFeedBacklog {
		base = cfg.FeedBacklogSleep
	}
	if retries > cfg.MaxBackoffRetries {
		retries = cfg.MaxBackoffRetries
	}
	return base * time.Duration(retries)
}

// Take forwards doc to the sink once the sink reports OK. While the sink is
// congested, or host memory is low, it sleeps with linear backoff. A
// DISABLED sink with nothing buffered is replaced with a fresh one once;
// with documents buffered the batch fails.
func (a *DocumentAcceptor) Take(ctx context.Context, doc *domain.Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, err := a.currentPusher(ctx)
	if err != nil {
		return err
	}

	retries := 0
	refreshed := false
	for {
		if err := ctx.Err(); err != nil {
			return domain.NewFeedError(domain.KindWorkCancelled, a.name, context.Cause(ctx))
		}

		status := p.Status(ctx)
		if status == domain.PusherOK && a.memory != nil && a.memory.LowMemory(ctx) {
			status = domain.PusherLowMemory
		}
		a.lastStatus.Store(int32(status))

		if status == domain.PusherOK {
			break
		}
		if status == domain.PusherDisabled {
			if refreshed {
				return domain.NewFeedError(domain.KindSinkTransportFailure, a.name, domain.ErrSinkDisabled)
			}
			// Buffered documents went down with the old sink; the batch
			// must fail rather than flush a partial copy.
			if a.pending > 0 {
				return domain.NewFeedError(domain.KindSinkTransportFailure, a.name,
					crdb.Wrapf(domain.ErrSinkDisabled, "%d unflushed documents lost", a.pending))
			}
			refreshed = true
			retries = 0
			logger.Info("acceptor %s: sink disabled, obtaining a fresh one", a.name)
			a.pusher = nil
			if p, err = a.currentPusher(ctx); err != nil {
				return err
			}
			continue
		}
		if !status.Congested() {
			return domain.NewFeedError(domain.KindRuntime, a.name, crdb.Newf("unexpected sink status %d", int(status)))
		}

		retries++
		d := a.backoff(status, retries)
		logger.Debug("acceptor %s: sink %s, sleeping %s", a.name, status, d)
		a.metrics.BackoffSlept(a.name, status, d)
		if err := a.sleep(ctx, d); err != nil {
			return domain.NewFeedError(domain.KindWorkCancelled, a.name, err)
		}
	}

	if err := p.Take(ctx, doc); err != nil {
		return a.sinkError(err, "take document %s", doc.ID)
	}
	a.pending++
	a.metrics.DocumentsFed(a.name, 1)

	// Recorded for status views only; the next Take re-checks.
	a.lastStatus.Store(int32(p.Status(ctx)))
	return nil
}

// Flush completes transmission of the current batch. It is a no-op when
// nothing was taken since the last flush.
func (a *DocumentAcceptor) Flush(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending == 0 || a.pusher == nil {
		return nil
	}
	if err := a.pusher.Flush(ctx); err != nil {
		return a.sinkError(err, "flush %d documents", a.pending)
	}
	a.pending = 0
	return nil
}

// Cancel discards the current batch without transmitting it. Failures are
// logged and returned, never retried.
func (a *DocumentAcceptor) Cancel() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	discarded := a.pending
	a.pending = 0
	if a.pusher == nil {
		return nil
	}
	if err := a.pusher.Cancel(); err != nil {
		err = a.sinkError(err, "cancel batch of %d documents", discarded)
		logger.Error("acceptor %s: %v", a.name, err)
		return err
	}
	if discarded > 0 {
		logger.Debug("acceptor %s: discarded %d buffered documents", a.name, discarded)
	}
	return nil
}
