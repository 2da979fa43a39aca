package services

import (
	"context"
	"errors"
	"sync"
	"time"

	crdb "github.com/cockroachdb/errors"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-feed/internal/logger"
)

// traversal is the work item that runs one batch for one connector:
// resume or start the traversal, stream documents through the acceptor,
// flush, then checkpoint.
type traversal struct {
	connector   string
	batch       domain.BatchSize
	traversers  driven.TraverserFactory
	checkpoints driven.CheckpointStore
	load        *HostLoadManager
	acceptor    *DocumentAcceptor
	onDone      func(ctx context.Context, result *domain.TraversalResult, err error)
	now         func() time.Time

	mu        sync.Mutex
	traverser driven.Traverser
	closeOnce sync.Once
	abortOnce sync.Once
}

// Name implements Work.
func (t *traversal) Name() string {
	return t.connector
}

// DoWork implements Work.
func (t *traversal) DoWork(ctx context.Context) error {
	started := t.now()
	fed, finished, err := t.run(ctx)
	ended := t.now()

	result := &domain.TraversalResult{
		ConnectorName: t.connector,
		StartedAt:     started,
		EndedAt:       ended,
		DocumentsFed:  fed,
		BatchHint:     t.batch.Hint,
	}

	switch {
	case err != nil:
		t.abort()
		result.Error = err.Error()
		if ctx.Err() != nil || domain.KindOf(err) == domain.KindWorkCancelled {
			result.Outcome = domain.OutcomeCancelled
			err = domain.NewFeedError(domain.KindWorkCancelled, t.connector, err)
			logger.Info("traversal %s: cancelled after %d documents: %v", t.connector, fed, context.Cause(ctx))
		} else {
			result.Outcome = domain.OutcomeFailed
			logger.Warn("traversal %s: batch aborted after %d documents: %v", t.connector, fed, err)
		}
	case finished:
		result.Outcome = domain.OutcomeFinished
		t.load.ConnectorFinishedTraversal(ctx, t.connector, ended.Sub(started))
		// The next traversal starts from the beginning of the repository.
		if delErr := t.checkpoints.Delete(ctx, t.connector); delErr != nil {
			logger.Warn("traversal %s: failed to clear checkpoint: %v", t.connector, delErr)
		}
		logger.Info("traversal %s: finished", t.connector)
	default:
		result.Outcome = domain.OutcomeCheckpointed
		logger.Debug("traversal %s: fed %d documents (hint %d)", t.connector, fed, t.batch.Hint)
	}

	if t.onDone != nil {
		t.onDone(context.WithoutCancel(ctx), result, err)
	}
	return err
}

// CancelWork implements Work. It discards the batch and closes the traverser.
func (t *traversal) CancelWork() {
	t.abort()
	t.closeTraverser()
}

func (t *traversal) abort() {
	t.abortOnce.Do(func() {
		// Cancel failures are logged by the acceptor.
		_ = t.acceptor.Cancel()
	})
}

func (t *traversal) closeTraverser() {
	t.mu.Lock()
	tr := t.traverser
	t.mu.Unlock()
	if tr == nil {
		return
	}
	t.closeOnce.Do(func() {
		if err := tr.Close(); err != nil {
			logger.Debug("traversal %s: close: %v", t.connector, err)
		}
	})
}

// run performs the batch. finished reports that the connector had nothing
// left to traverse.
func (t *traversal) run(ctx context.Context) (fed int, finished bool, err error) {
	tr, err := t.traversers.Create(ctx, t.connector)
	if err != nil {
		return 0, false, crdb.Wrap(err, "create traverser")
	}
	t.mu.Lock()
	t.traverser = tr
	t.mu.Unlock()
	defer t.closeTraverser()

	token, err := t.checkpoint(ctx)
	if err != nil {
		return 0, false, err
	}

	var list driven.DocumentList
	if token == "" {
		list, err = tr.StartTraversal(ctx, t.batch)
	} else {
		list, err = tr.ResumeTraversal(ctx, token, t.batch)
	}
	if err != nil {
		return 0, false, crdb.Wrap(err, "traverse")
	}
	if list == nil {
		return 0, true, nil
	}

	for fed < t.batch.Maximum {
		doc, err := list.Next(ctx)
		if err != nil {
			return fed, false, crdb.Wrap(err, "next document")
		}
		if doc == nil {
			break
		}
		if doc.ConnectorName == "" {
			doc.ConnectorName = t.connector
		}
		if err := t.acceptor.Take(ctx, doc); err != nil {
			return fed, false, err
		}
		fed++
		t.load.UpdateNumDocsTraversed(t.connector, 1)
	}
	if fed == 0 {
		return 0, true, nil
	}

	// Nothing is checkpointed for a cancelled batch, even if the sink
	// would still accept the flush.
	if err := ctx.Err(); err != nil {
		return fed, false, context.Cause(ctx)
	}
	if err := t.acceptor.Flush(ctx); err != nil {
		return fed, false, err
	}
	next, err := list.Checkpoint()
	if err != nil {
		return fed, false, crdb.Wrap(err, "checkpoint")
	}
	if err := ctx.Err(); err != nil {
		return fed, false, context.Cause(ctx)
	}
	if err := t.checkpoints.Save(ctx, domain.Checkpoint{
		ConnectorName: t.connector,
		Token:         next,
		UpdatedAt:     t.now(),
	}); err != nil {
		return fed, false, crdb.Wrap(err, "save checkpoint")
	}
	// A kill that lands during the save must not leave the checkpoint advanced.
	if err := ctx.Err(); err != nil {
		t.restoreCheckpoint(ctx, token)
		return fed, false, context.Cause(ctx)
	}
	return fed, false, nil
}

// restoreCheckpoint puts back the token the batch resumed from.
func (t *traversal) restoreCheckpoint(ctx context.Context, token string) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if token == "" {
		err = t.checkpoints.Delete(ctx, t.connector)
	} else {
		err = t.checkpoints.Save(ctx, domain.Checkpoint{
			ConnectorName: t.connector,
			Token:         token,
			UpdatedAt:     t.now(),
		})
	}
	if err != nil {
		logger.Warn("traversal %s: failed to restore checkpoint: %v", t.connector, err)
	}
}

func (t *traversal) checkpoint(ctx context.Context) (string, error) {
	cp, err := t.checkpoints.Get(ctx, t.connector)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", crdb.Wrap(err, "load checkpoint")
	}
	return cp.Token, nil
}
