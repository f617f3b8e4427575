// Package output holds the result-write collaborators. Every writer keys on
// the work item id and is idempotent under retried calls with the same id,
// which is what lets a worker safely re-run a crashed Pending execution.
package output

import (
	"context"
	"fmt"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

// ResultWriter commits one simulation result, keyed by work item id.
type ResultWriter interface {
	Upsert(ctx context.Context, workItemID string, result models.SimulationResult) error
}

// Multi fans a result out to several writers in order. The first failing
// writer stops the fan-out; because every writer is an upsert, the retry
// after a partial failure is safe.
type Multi struct {
	writers []ResultWriter
}

// NewMulti combines writers into one ResultWriter.
func NewMulti(writers ...ResultWriter) *Multi {
	return &Multi{writers: writers}
}

// Upsert writes the result through each writer in turn.
func (m *Multi) Upsert(ctx context.Context, workItemID string, result models.SimulationResult) error {
	for _, w := range m.writers {
		if err := w.Upsert(ctx, workItemID, result); err != nil {
			return fmt.Errorf("result write for %s failed: %w", workItemID, err)
		}
	}
	return nil
}
