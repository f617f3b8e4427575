package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

// Guard makes the trigger stage effectively at-most-once. Begin must be an
// atomic conditional create keyed by the caller's request key: the second
// invocation carrying the same key observes the existing record and is
// rejected before it can republish the batch.
type Guard interface {
	// Begin records the dispatch, or returns ErrDuplicateTrigger if the
	// request key was already dispatched.
	Begin(ctx context.Context, requestKey string, record models.BatchDispatchRecord) error

	// Finish marks the dispatch record as fully published.
	Finish(ctx context.Context, requestKey string) error
}

// MemoryGuard is an in-process guard. It covers the retry window of a
// single trigger host; a multi-host deployment wants a shared store with a
// conditional insert instead.
type MemoryGuard struct {
	mu      sync.Mutex
	records map[string]models.BatchDispatchRecord
}

// NewMemoryGuard creates an empty guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{records: make(map[string]models.BatchDispatchRecord)}
}

// Begin conditionally creates the dispatch record for the request key.
func (g *MemoryGuard) Begin(_ context.Context, requestKey string, record models.BatchDispatchRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.records[requestKey]; ok {
		return fmt.Errorf("%w: request %s already dispatched as batch %s",
			ErrDuplicateTrigger, requestKey, existing.BatchID)
	}
	g.records[requestKey] = record
	return nil
}

// Finish marks the record dispatched.
func (g *MemoryGuard) Finish(_ context.Context, requestKey string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	record, ok := g.records[requestKey]
	if !ok {
		return fmt.Errorf("no dispatch record for request %s", requestKey)
	}
	record.Status = models.BatchDispatched
	g.records[requestKey] = record
	return nil
}

// Record returns the dispatch record for a request key, if any.
func (g *MemoryGuard) Record(requestKey string) (models.BatchDispatchRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	record, ok := g.records[requestKey]
	return record, ok
}
