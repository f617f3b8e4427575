package output

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

// DefaultDataset is the BigQuery dataset results land in when no override
// is configured.
const DefaultDataset = "storm_simulations"

// DefaultTable holds per-simulation loss rows.
const DefaultTable = "losses"

// BigQueryWriter streams result rows into a BigQuery table. The insert id
// is the work item id, so the streaming backend deduplicates retried
// commits of the same simulation on a best-effort basis; the worker's
// ledger is the authoritative guard.
type BigQueryWriter struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter
}

// NewBigQueryWriter connects to BigQuery and targets dataset.table.
func NewBigQueryWriter(ctx context.Context, projectID, dataset, table string) (*BigQueryWriter, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required for bigquery output")
	}
	if dataset == "" {
		dataset = DefaultDataset
	}
	if table == "" {
		table = DefaultTable
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}

	return &BigQueryWriter{
		client:   client,
		inserter: client.Dataset(dataset).Table(table).Inserter(),
	}, nil
}

// Upsert streams the row with the work item id as insert id.
func (w *BigQueryWriter) Upsert(ctx context.Context, workItemID string, result models.SimulationResult) error {
	if err := w.inserter.Put(ctx, resultRow{result}); err != nil {
		return fmt.Errorf("failed to insert result for %s: %w", workItemID, err)
	}
	return nil
}

// Close releases the BigQuery client.
func (w *BigQueryWriter) Close() error {
	return w.client.Close()
}

// resultRow adapts a SimulationResult to the streaming insert API.
type resultRow struct {
	models.SimulationResult
}

// Save implements bigquery.ValueSaver.
func (r resultRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"work_item_id":     r.WorkItemID,
		"batch_id":         r.BatchID,
		"storm_type":       r.StormType,
		"state":            r.State,
		"severity":         r.Severity,
		"size_miles":       r.SizeMiles,
		"total_exposure":   r.TotalExposure,
		"total_premium":    r.TotalPremium,
		"total_loss":       r.TotalLoss,
		"loss_ratio":       r.LossRatio,
		"duration_seconds": r.DurationSeconds,
	}, r.WorkItemID, nil
}
