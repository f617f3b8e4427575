// Package ledger records which work item ids have completed or are in
// flight. The ledger is what turns the transport's at-least-once delivery
// into effectively-once execution: a worker must win an atomic claim on an
// id before running it, and a finished id stays in the ledger so late
// redeliveries are recognized and skipped.
package ledger

import (
	"context"
	"errors"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

// ClaimResult is the outcome of a claim attempt on a work item id.
type ClaimResult int

const (
	// Claimed means this caller owns the id and must execute it.
	Claimed ClaimResult = iota
	// AlreadyPending means another execution is in flight; defer.
	AlreadyPending
	// AlreadyCompleted means the id finished (or terminally failed)
	// earlier; ack without re-executing.
	AlreadyCompleted
)

func (r ClaimResult) String() string {
	switch r {
	case Claimed:
		return "claimed"
	case AlreadyPending:
		return "already-pending"
	case AlreadyCompleted:
		return "already-completed"
	default:
		return "unknown"
	}
}

// ErrNotFound is returned by Get when no record exists for an id.
var ErrNotFound = errors.New("ledger record not found")

// Ledger is the durable idempotency store. Implementations must make
// TryClaim an atomic conditional insert: of two concurrent claims on the
// same id, exactly one observes Claimed.
type Ledger interface {
	// TryClaim atomically creates a Pending record for the id, or reports
	// the state of the existing one.
	TryClaim(ctx context.Context, id string) (ClaimResult, error)

	// MarkCompleted flips the Pending record for the id to Completed.
	MarkCompleted(ctx context.Context, id string) error

	// MarkFailed flips the Pending record for the id to Failed. Failed is
	// terminal; later deliveries of the id are not re-executed.
	MarkFailed(ctx context.Context, id string) error

	// Release rolls back a Pending claim after a transient failure so the
	// next delivery can claim the id again.
	Release(ctx context.Context, id string) error

	// Get returns the record for an id, or ErrNotFound.
	Get(ctx context.Context, id string) (models.IdempotencyRecord, error)

	// List returns every record, for audit and the ledger CLI.
	List(ctx context.Context) ([]models.IdempotencyRecord, error)
}
