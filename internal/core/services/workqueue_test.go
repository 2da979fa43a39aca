package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/logger"
)

// testWork is a Work whose behaviour is supplied by the test.
type testWork struct {
	name    string
	run     func(ctx context.Context) error
	cancels atomic.Int32
}

func (w *testWork) DoWork(ctx context.Context) error {
	if w.run == nil {
		return nil
	}
	return w.run(ctx)
}

func (w *testWork) CancelWork() { w.cancels.Add(1) }

func (w *testWork) Name() string { return w.name }

func testQueueConfig(workers int) domain.WorkQueueConfig {
	return domain.WorkQueueConfig{
		Workers:          workers,
		Capacity:         8,
		InterruptTimeout: 5 * time.Second,
		KillTimeout:      10 * time.Second,
		PollPeriod:       10 * time.Millisecond,
	}
}

func newTestQueue(t *testing.T, cfg domain.WorkQueueConfig) *WorkQueue {
	t.Helper()
	q, err := NewWorkQueue(cfg, nil)
	require.NoError(t, err)
	return q
}

func waitDone(t *testing.T, h *WorkHandle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("work %s did not finish", h.Name)
	}
}

// blockUntil returns a run func that ignores its context until release is closed.
func blockUntil(release <-chan struct{}) func(context.Context) error {
	return func(context.Context) error {
		<-release
		return nil
	}
}

func TestNewWorkQueue_InvalidConfig(t *testing.T) {
	cfg := testQueueConfig(1)
	cfg.PollPeriod = cfg.InterruptTimeout

	_, err := NewWorkQueue(cfg, nil)
	assert.Error(t, err)

	cfg = testQueueConfig(1)
	cfg.KillTimeout = cfg.InterruptTimeout
	_, err = NewWorkQueue(cfg, nil)
	assert.Error(t, err)

	_, err = NewWorkQueue(testQueueConfig(0), nil)
	assert.Error(t, err)
}

func TestWorkQueue_RunsToCompletion(t *testing.T) {
	q := newTestQueue(t, testQueueConfig(2))
	q.Start()
	defer func() { _ = q.Shutdown(true, 0) }()

	var ran atomic.Int32
	handles := make([]*WorkHandle, 0, 5)
	for i := 0; i < 5; i++ {
		h, err := q.Submit(context.Background(), &testWork{
			name: "c1",
			run: func(context.Context) error {
				ran.Add(1)
				return nil
			},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, h.ID)
		handles = append(handles, h)
	}

	for _, h := range handles {
		waitDone(t, h)
		assert.Equal(t, domain.WorkCompleted, h.State())
		assert.NoError(t, h.Err())
		assert.False(t, h.Interrupted())
	}
	assert.Equal(t, int32(5), ran.Load())
	assert.Equal(t, int64(5), q.Stats().Completed)
}

func TestWorkQueue_ErrorIsReported(t *testing.T) {
	q := newTestQueue(t, testQueueConfig(1))
	q.Start()
	defer func() { _ = q.Shutdown(true, 0) }()

	boom := errors.New("boom")
	h, err := q.Submit(context.Background(), &testWork{
		name: "c1",
		run:  func(context.Context) error { return boom },
	})
	require.NoError(t, err)

	waitDone(t, h)
	assert.Equal(t, domain.WorkCompleted, h.State())
	assert.ErrorIs(t, h.Err(), boom)
}

func TestWorkQueue_PanicIsRecovered(t *testing.T) {
	q := newTestQueue(t, testQueueConfig(1))
	q.Start()
	defer func() { _ = q.Shutdown(true, 0) }()

	h, err := q.Submit(context.Background(), &testWork{
		name: "c1",
		run:  func(context.Context) error { panic("bad state") },
	})
	require.NoError(t, err)
	waitDone(t, h)
	assert.Equal(t, domain.KindRuntime, domain.KindOf(h.Err()))

	// The worker survives and runs the next item.
	next, err := q.Submit(context.Background(), &testWork{name: "c2"})
	require.NoError(t, err)
	waitDone(t, next)
	assert.Equal(t, domain.WorkCompleted, next.State())
}

func TestWorkQueue_WatchdogInterrupts(t *testing.T) {
	cfg := testQueueConfig(1)
	cfg.InterruptTimeout = 50 * time.Millisecond
	q := newTestQueue(t, cfg)
	q.Start()
	defer func() { _ = q.Shutdown(true, 0) }()

	w := &testWork{
		name: "slow",
		run: func(ctx context.Context) error {
			<-ctx.Done()
			return context.Cause(ctx)
		},
	}
	h, err := q.Submit(context.Background(), w)
	require.NoError(t, err)

	waitDone(t, h)
	assert.Equal(t, domain.WorkCompleted, h.State())
	assert.True(t, h.Interrupted())
	assert.ErrorIs(t, h.Err(), domain.ErrWorkInterrupted)
	assert.Equal(t, int32(0), w.cancels.Load())
}

func TestWorkQueue_WatchdogKillsAndReplacesWorker(t *testing.T) {
	cfg := testQueueConfig(1)
	cfg.InterruptTimeout = 30 * time.Millisecond
	cfg.KillTimeout = 80 * time.Millisecond
	q := newTestQueue(t, cfg)
	q.Start()
	defer func() { _ = q.Shutdown(true, 0) }()

	release := make(chan struct{})
	defer close(release)

	stuck := &testWork{name: "stuck", run: blockUntil(release)}
	submitted := time.Now()
	h, err := q.Submit(context.Background(), stuck)
	require.NoError(t, err)

	waitDone(t, h)
	// Killed no earlier than the kill timeout and within one poll of it.
	elapsed := time.Since(submitted)
	assert.GreaterOrEqual(t, elapsed, cfg.KillTimeout)
	assert.LessOrEqual(t, elapsed, cfg.KillTimeout+cfg.PollPeriod+100*time.Millisecond)
	assert.Equal(t, domain.WorkCancelled, h.State())
	assert.True(t, h.Interrupted())
	assert.ErrorIs(t, h.Err(), domain.ErrWorkCancelled)
	assert.Equal(t, domain.KindWorkCancelled, domain.KindOf(h.Err()))
	assert.Eventually(t, func() bool { return stuck.cancels.Load() == 1 }, time.Second, 5*time.Millisecond)

	// A second cancel of the same item does not call CancelWork again.
	q.Cancel(h)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), stuck.cancels.Load())

	// The stuck goroutine was abandoned; a replacement worker picks up new work.
	next, err := q.Submit(context.Background(), &testWork{name: "next"})
	require.NoError(t, err)
	waitDone(t, next)
	assert.Equal(t, domain.WorkCompleted, next.State())
	assert.Equal(t, int64(1), q.Stats().Cancelled)
}

// lockedBuffer collects log output written from queue goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWorkQueue_WatchdogKillLoggedAtInfo(t *testing.T) {
	var out lockedBuffer
	logger.SetOutput(&out)
	defer logger.SetOutput(os.Stderr)

	cfg := testQueueConfig(1)
	cfg.InterruptTimeout = 30 * time.Millisecond
	cfg.KillTimeout = 60 * time.Millisecond
	q := newTestQueue(t, cfg)
	q.Start()
	defer func() { _ = q.Shutdown(true, 0) }()

	release := make(chan struct{})
	defer close(release)
	h, err := q.Submit(context.Background(), &testWork{name: "stuck", run: blockUntil(release)})
	require.NoError(t, err)
	waitDone(t, h)

	assert.Contains(t, out.String(), "[INFO] work queue: killing stuck")
	assert.NotContains(t, out.String(), "[WARN] work queue: killing")
}

func TestWorkQueue_KillDuringGracefulShutdown(t *testing.T) {
	// Repeated to give the race detector a chance at the worker handoff.
	for i := 0; i < 20; i++ {
		q := newTestQueue(t, testQueueConfig(1))
		q.Start()

		running := make(chan struct{})
		w := &testWork{name: "cooperative", run: func(ctx context.Context) error {
			close(running)
			<-ctx.Done()
			return context.Cause(ctx)
		}}
		h, err := q.Submit(context.Background(), w)
		require.NoError(t, err)
		<-running

		shutdown := make(chan error, 1)
		go func() { shutdown <- q.Shutdown(false, 2*time.Second) }()
		q.Cancel(h)

		select {
		case err := <-shutdown:
			require.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("shutdown did not return after the running item was killed")
		}
		waitDone(t, h)
		assert.Equal(t, domain.WorkCancelled, h.State())
		assert.Equal(t, domain.KindWorkCancelled, domain.KindOf(h.Err()))
	}
}

func TestWorkQueue_CancelPendingSkipsCancelWork(t *testing.T) {
	q := newTestQueue(t, testQueueConfig(1))
	q.Start()
	defer func() { _ = q.Shutdown(true, 0) }()

	release := make(chan struct{})
	first, err := q.Submit(context.Background(), &testWork{name: "first", run: blockUntil(release)})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return first.State() == domain.WorkRunning }, time.Second, 5*time.Millisecond)

	queued := &testWork{name: "queued"}
	second, err := q.Submit(context.Background(), queued)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkPending, second.State())

	q.Cancel(second)
	waitDone(t, second)
	assert.Equal(t, domain.WorkCancelled, second.State())
	assert.Equal(t, int32(0), queued.cancels.Load())

	close(release)
	waitDone(t, first)
	assert.Equal(t, domain.WorkCompleted, first.State())
}

func TestWorkQueue_CancelRunning(t *testing.T) {
	q := newTestQueue(t, testQueueConfig(1))
	q.Start()
	defer func() { _ = q.Shutdown(true, 0) }()

	w := &testWork{
		name: "running",
		run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	h, err := q.Submit(context.Background(), w)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.State() == domain.WorkRunning }, time.Second, 5*time.Millisecond)

	q.Cancel(h)
	waitDone(t, h)
	assert.Equal(t, domain.WorkCancelled, h.State())
	assert.Eventually(t, func() bool { return w.cancels.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWorkQueue_SubmitBlocksAtCapacity(t *testing.T) {
	cfg := testQueueConfig(1)
	cfg.Capacity = 1
	q := newTestQueue(t, cfg)
	defer func() { _ = q.Shutdown(true, 0) }()

	// Not started: nothing drains the pending channel.
	_, err := q.Submit(context.Background(), &testWork{name: "a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = q.Submit(ctx, &testWork{name: "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 1, q.Stats().Pending)
}

func TestWorkQueue_SubmitAfterShutdown(t *testing.T) {
	q := newTestQueue(t, testQueueConfig(1))
	q.Start()
	require.NoError(t, q.Shutdown(false, time.Second))

	_, err := q.Submit(context.Background(), &testWork{name: "late"})
	assert.ErrorIs(t, err, domain.ErrQueueShutdown)

	// Shutdown is idempotent.
	assert.NoError(t, q.Shutdown(true, 0))
}

func TestWorkQueue_GracefulShutdownWaits(t *testing.T) {
	q := newTestQueue(t, testQueueConfig(1))
	q.Start()

	var handles []*WorkHandle
	for i := 0; i < 3; i++ {
		h, err := q.Submit(context.Background(), &testWork{
			name: "c1",
			run: func(context.Context) error {
				time.Sleep(20 * time.Millisecond)
				return nil
			},
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	require.NoError(t, q.Shutdown(false, 2*time.Second))
	for _, h := range handles {
		assert.Equal(t, domain.WorkCompleted, h.State())
	}
}

func TestWorkQueue_ShutdownDeadlineCancels(t *testing.T) {
	q := newTestQueue(t, testQueueConfig(1))
	q.Start()

	release := make(chan struct{})
	defer close(release)

	stuck := &testWork{name: "stuck", run: blockUntil(release)}
	h, err := q.Submit(context.Background(), stuck)
	require.NoError(t, err)
	queued, err := q.Submit(context.Background(), &testWork{name: "queued"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.State() == domain.WorkRunning }, time.Second, 5*time.Millisecond)

	err = q.Shutdown(false, 50*time.Millisecond)
	assert.Error(t, err)

	assert.Equal(t, domain.WorkCancelled, h.State())
	assert.Equal(t, domain.WorkCancelled, queued.State())
	assert.Eventually(t, func() bool { return stuck.cancels.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWorkQueue_ForceShutdownCancelsPending(t *testing.T) {
	q := newTestQueue(t, testQueueConfig(1))

	a := &testWork{name: "a"}
	b := &testWork{name: "b"}
	ha, err := q.Submit(context.Background(), a)
	require.NoError(t, err)
	hb, err := q.Submit(context.Background(), b)
	require.NoError(t, err)

	require.NoError(t, q.Shutdown(true, 0))

	for _, h := range []*WorkHandle{ha, hb} {
		waitDone(t, h)
		assert.Equal(t, domain.WorkCancelled, h.State())
		assert.ErrorIs(t, h.Err(), domain.ErrQueueShutdown)
	}
	assert.Equal(t, int32(0), a.cancels.Load())
	assert.Equal(t, int32(0), b.cancels.Load())
	assert.Equal(t, int64(2), q.Stats().Cancelled)
}
