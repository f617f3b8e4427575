package models

import (
	"encoding/json"
	"fmt"
)

// WorkItem describes one simulation run. It is created by the Dispatcher,
// serialized onto the message channel, and never mutated afterwards.
//
// The ID is derived deterministically from (BatchID, Seq) so that a
// redelivery of the same logical item always carries the same id, which is
// what the worker-side idempotency ledger keys on.
type WorkItem struct {
	ID           string            `json:"id"`
	BatchID      string            `json:"batch_id"`
	Seq          int               `json:"sim_id"`
	StormType    string            `json:"storm_type"`
	RunTimestamp int64             `json:"run_timestamp"`
	States       []string          `json:"states,omitempty"`
	Parameters   map[string]string `json:"parameters,omitempty"`
}

// DeriveWorkItemID returns the stable id for the seq-th item of a batch.
func DeriveWorkItemID(batchID string, seq int) string {
	return fmt.Sprintf("%s-%d", batchID, seq)
}

// NewWorkItem builds the seq-th work item of a batch from the originating
// request.
func NewWorkItem(batchID string, seq int, runTimestamp int64, req BatchRequest) WorkItem {
	return WorkItem{
		ID:           DeriveWorkItemID(batchID, seq),
		BatchID:      batchID,
		Seq:          seq,
		StormType:    req.StormType,
		RunTimestamp: runTimestamp,
		States:       req.States,
		Parameters:   req.Overrides,
	}
}

// Encode serializes the work item for transport.
func (w WorkItem) Encode() ([]byte, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode work item %s: %w", w.ID, err)
	}
	return data, nil
}

// DecodeWorkItem deserializes a work item received from the channel.
func DecodeWorkItem(data []byte) (WorkItem, error) {
	var item WorkItem
	if err := json.Unmarshal(data, &item); err != nil {
		return WorkItem{}, fmt.Errorf("failed to decode work item: %w", err)
	}
	if item.ID == "" {
		return WorkItem{}, fmt.Errorf("work item payload has no id")
	}
	return item, nil
}
