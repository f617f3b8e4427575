package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Registers the pgx driver with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS simulation_ledger (
	work_item_id TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
)`

// Postgres is the durable ledger. The claim is an INSERT with ON CONFLICT
// DO NOTHING against the primary key, so two concurrent claims on the same
// id are serialized by the database and exactly one wins.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens the ledger database and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	p := &Postgres{db: db}
	if _, err := db.ExecContext(ctx, ledgerSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure ledger schema: %w", err)
	}
	return p, nil
}

// TryClaim conditionally inserts a Pending record for the id.
func (p *Postgres) TryClaim(ctx context.Context, id string) (ClaimResult, error) {
	res, err := p.db.ExecContext(ctx,
		`INSERT INTO simulation_ledger (work_item_id, status, started_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (work_item_id) DO NOTHING`,
		id, models.StatusPending, time.Now().UTC())
	if err != nil {
		return AlreadyPending, fmt.Errorf("failed to claim %s: %w", id, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return AlreadyPending, fmt.Errorf("failed to claim %s: %w", id, err)
	}
	if inserted == 1 {
		return Claimed, nil
	}

	// Lost the insert race or the record predates this delivery; report the
	// existing status.
	var status models.RecordStatus
	err = p.db.QueryRowContext(ctx,
		`SELECT status FROM simulation_ledger WHERE work_item_id = $1`, id).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Claim was released between our insert and read; treat as in
		// flight and let the redelivery try again.
		return AlreadyPending, nil
	case err != nil:
		return AlreadyPending, fmt.Errorf("failed to read claim state of %s: %w", id, err)
	}

	if status == models.StatusPending {
		return AlreadyPending, nil
	}
	return AlreadyCompleted, nil
}

// MarkCompleted flips a Pending record to Completed.
func (p *Postgres) MarkCompleted(ctx context.Context, id string) error {
	return p.transition(ctx, id, models.StatusCompleted)
}

// MarkFailed flips a Pending record to Failed.
func (p *Postgres) MarkFailed(ctx context.Context, id string) error {
	return p.transition(ctx, id, models.StatusFailed)
}

func (p *Postgres) transition(ctx context.Context, id string, to models.RecordStatus) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE simulation_ledger
		 SET status = $2, completed_at = $3
		 WHERE work_item_id = $1 AND status = $4`,
		id, to, time.Now().UTC(), models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark %s %s: %w", id, to, err)
	}

	updated, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark %s %s: %w", id, to, err)
	}
	if updated == 0 {
		return fmt.Errorf("cannot mark %s %s: no pending record", id, to)
	}
	return nil
}

// Release deletes a Pending claim so the id can be claimed again.
func (p *Postgres) Release(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM simulation_ledger WHERE work_item_id = $1 AND status = $2`,
		id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to release claim on %s: %w", id, err)
	}
	return nil
}

// Get returns the record for an id.
func (p *Postgres) Get(ctx context.Context, id string) (models.IdempotencyRecord, error) {
	rec, err := scanRecord(p.db.QueryRowContext(ctx,
		`SELECT work_item_id, status, started_at, completed_at
		 FROM simulation_ledger WHERE work_item_id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.IdempotencyRecord{}, ErrNotFound
	}
	if err != nil {
		return models.IdempotencyRecord{}, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	return rec, nil
}

// List returns all records ordered by work item id.
func (p *Postgres) List(ctx context.Context) ([]models.IdempotencyRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT work_item_id, status, started_at, completed_at
		 FROM simulation_ledger ORDER BY work_item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []models.IdempotencyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list ledger records: %w", err)
	}
	return records, nil
}

// Close releases the underlying database handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	var completedAt sql.NullTime
	if err := row.Scan(&rec.WorkItemID, &rec.Status, &rec.StartedAt, &completedAt); err != nil {
		return models.IdempotencyRecord{}, err
	}
	if completedAt.Valid {
		rec.CompletedAt = completedAt.Time
	}
	return rec, nil
}
