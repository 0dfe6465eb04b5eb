package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

const defaultRecentLimit = 50

// Repository provides access to the call journal.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertCall appends one finished call.
func (r *Repository) InsertCall(ctx context.Context, entry *CallEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO call_journal (call_id, operation, outcome, error, duration_ms, originator, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.CallID, entry.Operation, entry.Outcome, entry.Error, entry.DurationMs, entry.Originator, entry.StartedAt)
	if err != nil {
		return fmt.Errorf("%s - insert call %s: %w", repoLogPrefix, entry.CallID, err)
	}
	return nil
}

// RecentCalls returns the newest calls first.
func (r *Repository) RecentCalls(ctx context.Context, params RecentCallsParams) ([]CallEntry, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, call_id, operation, outcome, error, duration_ms, originator, started_at, recorded_at
		 FROM call_journal
		 WHERE ($1 = '' OR operation = $1)
		 ORDER BY started_at DESC, id DESC
		 LIMIT $2`, params.Operation, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - query recent calls: %w", repoLogPrefix, err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CallEntry, error) {
		var e CallEntry
		err := row.Scan(&e.ID, &e.CallID, &e.Operation, &e.Outcome, &e.Error, &e.DurationMs, &e.Originator, &e.StartedAt, &e.RecordedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s - scan recent calls: %w", repoLogPrefix, err)
	}
	return entries, nil
}

// PruneCalls deletes calls that started before cutoff and returns how many were removed.
func (r *Repository) PruneCalls(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM call_journal WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s - prune calls: %w", repoLogPrefix, err)
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info(fmt.Sprintf("%s - Pruned %d journal rows older than %s", repoLogPrefix, n, cutoff.Format(time.RFC3339)))
	}
	return tag.RowsAffected(), nil
}
