package output

import (
	"context"
	"sync"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

// MemoryWriter stores results in a map keyed by work item id. Used for
// local runs without an output destination and as the test double for the
// idempotent-upsert contract.
type MemoryWriter struct {
	mu      sync.Mutex
	rows    map[string]models.SimulationResult
	upserts int
}

// NewMemoryWriter creates an empty in-memory writer.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{rows: make(map[string]models.SimulationResult)}
}

// Upsert stores the result, replacing any prior row for the id.
func (w *MemoryWriter) Upsert(_ context.Context, workItemID string, result models.SimulationResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows[workItemID] = result
	w.upserts++
	return nil
}

// Rows returns a copy of the stored rows.
func (w *MemoryWriter) Rows() map[string]models.SimulationResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows := make(map[string]models.SimulationResult, len(w.rows))
	for k, v := range w.rows {
		rows[k] = v
	}
	return rows
}

// Upserts returns how many upsert calls the writer has seen, counting
// replacements of the same id.
func (w *MemoryWriter) Upserts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.upserts
}
