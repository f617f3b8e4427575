package models

import (
	"fmt"
	"time"
)

// DefaultStormType is used when a batch request does not name a storm type.
const DefaultStormType = "hail"

// DefaultNumSims is the fan-out size when a batch request does not set one.
const DefaultNumSims = 3

// BatchRequest describes a single trigger invocation: fan out NumSims
// independent simulations of the given storm type.
type BatchRequest struct {
	StormType string            `json:"storm_type"`
	NumSims   int               `json:"num_sims"`
	States    []string          `json:"states,omitempty"`
	Overrides map[string]string `json:"overrides,omitempty"`

	// RequestKey identifies the external trigger invocation. When set, the
	// dispatch guard uses it to reject a duplicate invocation of the same
	// trigger, which would otherwise re-publish the whole batch under a new
	// batch id.
	RequestKey string `json:"request_key,omitempty"`
}

// Validate checks the request before any work items are generated.
func (r BatchRequest) Validate() error {
	if r.NumSims < 1 {
		return fmt.Errorf("num_sims must be >= 1, got %d", r.NumSims)
	}
	return nil
}

// BatchSummary is returned to the trigger caller after the fan-out completes.
type BatchSummary struct {
	BatchID      string `json:"batch_id"`
	NumPublished int    `json:"num_published"`
	NumFailed    int    `json:"num_failed"`
}

// BatchDispatchStatus tracks the lifecycle of one dispatched batch.
type BatchDispatchStatus string

const (
	BatchDispatching BatchDispatchStatus = "dispatching"
	BatchDispatched  BatchDispatchStatus = "dispatched"
)

// BatchDispatchRecord is created by the Dispatcher when a batch begins.
// Workers never mutate it.
type BatchDispatchRecord struct {
	BatchID     string              `json:"batch_id"`
	RequestedAt time.Time           `json:"requested_at"`
	NumSims     int                 `json:"num_sims"`
	Status      BatchDispatchStatus `json:"status"`
}
