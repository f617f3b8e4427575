package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Registers the pgx driver with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

const guardSchema = `
CREATE TABLE IF NOT EXISTS batch_dispatch (
	request_key  TEXT PRIMARY KEY,
	batch_id     TEXT NOT NULL,
	requested_at TIMESTAMPTZ NOT NULL,
	num_sims     INTEGER NOT NULL,
	status       TEXT NOT NULL
)`

// PostgresGuard is the durable dispatch guard. Like the ledger's claim,
// Begin is an INSERT with ON CONFLICT DO NOTHING against the primary key,
// so a scheduler retry in a fresh process still observes the earlier
// dispatch and is rejected.
type PostgresGuard struct {
	db *sql.DB
}

// NewPostgresGuard opens the guard database and ensures the schema exists.
func NewPostgresGuard(ctx context.Context, dsn string) (*PostgresGuard, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open guard database: %w", err)
	}

	g := &PostgresGuard{db: db}
	if _, err := db.ExecContext(ctx, guardSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure guard schema: %w", err)
	}
	return g, nil
}

// Begin conditionally inserts the dispatch record for the request key.
func (g *PostgresGuard) Begin(ctx context.Context, requestKey string, record models.BatchDispatchRecord) error {
	res, err := g.db.ExecContext(ctx,
		`INSERT INTO batch_dispatch (request_key, batch_id, requested_at, num_sims, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (request_key) DO NOTHING`,
		requestKey, record.BatchID, record.RequestedAt.UTC(), record.NumSims, record.Status)
	if err != nil {
		return fmt.Errorf("failed to record dispatch for %s: %w", requestKey, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record dispatch for %s: %w", requestKey, err)
	}
	if inserted == 1 {
		return nil
	}

	var batchID string
	err = g.db.QueryRowContext(ctx,
		`SELECT batch_id FROM batch_dispatch WHERE request_key = $1`, requestKey).Scan(&batchID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: request %s already dispatched", ErrDuplicateTrigger, requestKey)
	case err != nil:
		return fmt.Errorf("failed to read dispatch record for %s: %w", requestKey, err)
	}
	return fmt.Errorf("%w: request %s already dispatched as batch %s",
		ErrDuplicateTrigger, requestKey, batchID)
}

// Finish marks the dispatch record as fully published.
func (g *PostgresGuard) Finish(ctx context.Context, requestKey string) error {
	res, err := g.db.ExecContext(ctx,
		`UPDATE batch_dispatch SET status = $2 WHERE request_key = $1`,
		requestKey, models.BatchDispatched)
	if err != nil {
		return fmt.Errorf("failed to finish dispatch record for %s: %w", requestKey, err)
	}

	updated, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish dispatch record for %s: %w", requestKey, err)
	}
	if updated == 0 {
		return fmt.Errorf("no dispatch record for request %s", requestKey)
	}
	return nil
}

// Close releases the underlying database handle.
func (g *PostgresGuard) Close() error {
	return g.db.Close()
}
