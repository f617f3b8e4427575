package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

// Memory is a mutex-guarded in-process ledger. It provides the same claim
// semantics as the durable implementations and is the default for local
// runs and tests. It does not survive a process restart.
type Memory struct {
	mu      sync.Mutex
	records map[string]models.IdempotencyRecord
	now     func() time.Time
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]models.IdempotencyRecord),
		now:     time.Now,
	}
}

// TryClaim inserts a Pending record if none exists for the id.
func (m *Memory) TryClaim(_ context.Context, id string) (ClaimResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[id]; ok {
		if rec.Status == models.StatusPending {
			return AlreadyPending, nil
		}
		return AlreadyCompleted, nil
	}

	m.records[id] = models.IdempotencyRecord{
		WorkItemID: id,
		Status:     models.StatusPending,
		StartedAt:  m.now(),
	}
	return Claimed, nil
}

// MarkCompleted flips a Pending record to Completed.
func (m *Memory) MarkCompleted(_ context.Context, id string) error {
	return m.transition(id, models.StatusCompleted)
}

// MarkFailed flips a Pending record to Failed.
func (m *Memory) MarkFailed(_ context.Context, id string) error {
	return m.transition(id, models.StatusFailed)
}

func (m *Memory) transition(id string, to models.RecordStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("cannot mark %s %s: %w", id, to, ErrNotFound)
	}
	if rec.Status != models.StatusPending {
		return fmt.Errorf("cannot mark %s %s: record is %s", id, to, rec.Status)
	}

	rec.Status = to
	rec.CompletedAt = m.now()
	m.records[id] = rec
	return nil
}

// Release removes a Pending claim so the id can be claimed again.
func (m *Memory) Release(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil
	}
	if rec.Status != models.StatusPending {
		return fmt.Errorf("cannot release %s: record is %s", id, rec.Status)
	}

	delete(m.records, id)
	return nil
}

// Get returns the record for an id.
func (m *Memory) Get(_ context.Context, id string) (models.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return models.IdempotencyRecord{}, ErrNotFound
	}
	return rec, nil
}

// List returns all records sorted by work item id.
func (m *Memory) List(_ context.Context) ([]models.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]models.IdempotencyRecord, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].WorkItemID < records[j].WorkItemID
	})
	return records, nil
}
