package models

import "time"

// RecordStatus is the state of one work item in the idempotency ledger.
type RecordStatus string

const (
	StatusPending   RecordStatus = "pending"
	StatusCompleted RecordStatus = "completed"
	StatusFailed    RecordStatus = "failed"
)

// IdempotencyRecord tracks whether a work item has been executed. Records
// are created lazily on the first observed delivery of an id and are
// retained after completion so late redeliveries can be deduplicated.
type IdempotencyRecord struct {
	WorkItemID  string       `json:"work_item_id"`
	Status      RecordStatus `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at,omitempty"`
}
