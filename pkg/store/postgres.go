package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxbridge/voxbridge/pkg/core"
)

// PostgresRecorder persists calls to a Postgres table. Schema is managed by
// the migrations package.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder connects a pool and verifies reachability.
func NewPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, core.NewPersistenceError("create database pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, core.NewPersistenceError("ping database", err)
	}
	return &PostgresRecorder{pool: pool}, nil
}

// CallStarted implements Recorder.
func (r *PostgresRecorder) CallStarted(ctx context.Context, start CallStart) error {
	ts := start.StartedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO calls (call_sid, to_number, started_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (call_sid) DO NOTHING`,
		start.CallSID, start.ToNumber, ts)
	if err != nil {
		return core.NewPersistenceError("insert call record", err)
	}
	return nil
}

// CallEnded implements Recorder. The row is upserted so a call whose start was
// never recorded still gets its transcript stored.
func (r *PostgresRecorder) CallEnded(ctx context.Context, record CallRecord) error {
	ts := record.EndedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO calls (call_sid, transcript, started_at, ended_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (call_sid) DO UPDATE SET transcript = $2, ended_at = $3`,
		record.CallSID, record.Transcript, ts)
	if err != nil {
		return core.NewPersistenceError("update call record", err)
	}
	return nil
}

// Close releases the pool.
func (r *PostgresRecorder) Close() {
	r.pool.Close()
}
