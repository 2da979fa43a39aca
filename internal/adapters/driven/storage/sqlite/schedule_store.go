package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
	"github.com/custodia-labs/sercha-feed/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-feed/internal/logger"
)

// scheduleStore implements driven.ScheduleStore. Rows hold the canonical
// schedule string, so legacy strings are upgraded on their next Save.
type scheduleStore struct {
	store *Store
}

var _ driven.ScheduleStore = (*scheduleStore)(nil)

// Get retrieves the schedule for a connector.
// A row that no longer parses is reported as domain.ErrInvalidScheduleFormat.
func (s *scheduleStore) Get(ctx context.Context, connectorName string) (*domain.Schedule, error) {
	var raw string
	err := s.store.db.QueryRowContext(ctx,
		"SELECT schedule FROM schedules WHERE connector_name = ?", connectorName).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scanning schedule")
	}

	sched, err := domain.ParseSchedule(raw)
	if err != nil {
		return nil, domain.NewFeedError(domain.KindInvalidScheduleFormat, connectorName, err)
	}
	return sched, nil
}

// List returns all schedules ordered by connector name. Rows that do not
// parse are logged and left out.
func (s *scheduleStore) List(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT connector_name, schedule FROM schedules ORDER BY connector_name")
	if err != nil {
		return nil, errors.Wrap(err, "querying schedules")
	}
	defer rows.Close()

	var schedules []domain.Schedule //nolint:prealloc // size unknown from query
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, errors.Wrap(err, "scanning schedule")
		}
		sched, err := domain.ParseSchedule(raw)
		if err != nil {
			logger.Warn("schedule for %s is unreadable: %v", name, err)
			continue
		}
		schedules = append(schedules, *sched)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating schedules")
	}

	return schedules, nil
}

// Save stores or replaces a schedule in canonical form.
func (s *scheduleStore) Save(ctx context.Context, schedule domain.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO schedules (connector_name, schedule, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(connector_name) DO UPDATE SET
			schedule = excluded.schedule,
			updated_at = excluded.updated_at
	`, schedule.ConnectorName, schedule.String(), formatTime(time.Now()))
	if err != nil {
		return errors.Wrap(err, "saving schedule")
	}
	return nil
}

// Delete removes a schedule.
func (s *scheduleStore) Delete(ctx context.Context, connectorName string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM schedules WHERE connector_name = ?", connectorName)
	if err != nil {
		return errors.Wrap(err, "deleting schedule")
	}
	return nil
}

// ==================== History Store ====================

// historyStore implements driven.HistoryStore.
type historyStore struct {
	store *Store
}

var _ driven.HistoryStore = (*historyStore)(nil)

// RecordResult logs a traversal batch result.
func (s *historyStore) RecordResult(ctx context.Context, result *domain.TraversalResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO traversal_results
			(connector_name, started_at, ended_at, outcome, error, documents_fed, batch_hint)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, result.ConnectorName,
		formatTime(result.StartedAt),
		formatTime(result.EndedAt),
		string(result.Outcome),
		nullString(result.Error),
		result.DocumentsFed,
		result.BatchHint)
	if err != nil {
		return errors.Wrap(err, "recording traversal result")
	}
	return nil
}

// GetHistory returns recent results for a connector, most recent first.
func (s *historyStore) GetHistory(ctx context.Context, connectorName string, limit int) ([]domain.TraversalResult, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT connector_name, started_at, ended_at, outcome, error, documents_fed, batch_hint
		FROM traversal_results
		WHERE connector_name = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, connectorName, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying traversal history")
	}
	defer rows.Close()

	var results []domain.TraversalResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		var result domain.TraversalResult
		var startedAt, endedAt, outcome string
		var errMsg sql.NullString
		if err := rows.Scan(&result.ConnectorName, &startedAt, &endedAt, &outcome,
			&errMsg, &result.DocumentsFed, &result.BatchHint); err != nil {
			return nil, errors.Wrap(err, "scanning traversal result")
		}
		result.StartedAt = parseTime(startedAt)
		result.EndedAt = parseTime(endedAt)
		result.Outcome = domain.TraversalOutcome(outcome)
		result.Error = errMsg.String
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating traversal history")
	}

	return results, nil
}

// DeleteHistory removes all results for a connector.
func (s *historyStore) DeleteHistory(ctx context.Context, connectorName string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM traversal_results WHERE connector_name = ?", connectorName)
	if err != nil {
		return errors.Wrap(err, "deleting traversal history")
	}
	return nil
}

// PruneHistory keeps the most recent 'keep' results per connector.
func (s *historyStore) PruneHistory(ctx context.Context, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM traversal_results
		WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY connector_name ORDER BY started_at DESC, id DESC
				) AS rn
				FROM traversal_results
			) WHERE rn <= ?
		)
	`, keep)
	if err != nil {
		return errors.Wrap(err, "pruning traversal history")
	}
	return nil
}
