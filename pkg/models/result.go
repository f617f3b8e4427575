package models

// SimulationResult is the output of one storm simulation, committed through
// a result writer keyed by WorkItemID so retried commits are idempotent.
type SimulationResult struct {
	WorkItemID      string  `json:"work_item_id"`
	BatchID         string  `json:"batch_id"`
	StormType       string  `json:"storm_type"`
	State           string  `json:"state"`
	Severity        string  `json:"severity"`
	SizeMiles       float64 `json:"size_miles"`
	TotalExposure   float64 `json:"total_exposure"`
	TotalPremium    float64 `json:"total_premium"`
	TotalLoss       float64 `json:"total_loss"`
	LossRatio       float64 `json:"loss_ratio"`
	DurationSeconds float64 `json:"duration_seconds"`
}
