package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

var csvHeader = []string{
	"work_item_id", "batch_id", "storm_type", "state", "severity",
	"size_miles", "total_exposure", "total_premium", "total_loss",
	"loss_ratio", "duration_seconds",
}

const csvSuffix = "_losses.csv"

// CSVWriter writes results to one CSV file per storm type under a local
// output directory. A retried upsert for an id replaces its row instead of
// appending a duplicate, so the file is rewritten from the in-memory row
// set on every commit. Fan-outs are small enough that the rewrite is cheap.
type CSVWriter struct {
	outputDir string

	mu   sync.Mutex
	rows map[string]map[string]models.SimulationResult // storm type -> id -> row
}

// NewCSVWriter creates the output directory if needed and loads the rows
// committed by earlier runs. Completed simulations are never redelivered,
// so the files are the only place their results survive a restart.
func NewCSVWriter(outputDir string) (*CSVWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	w := &CSVWriter{
		outputDir: outputDir,
		rows:      make(map[string]map[string]models.SimulationResult),
	}
	if err := w.loadExisting(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *CSVWriter) loadExisting() error {
	paths, err := filepath.Glob(filepath.Join(w.outputDir, "*"+csvSuffix))
	if err != nil {
		return fmt.Errorf("failed to scan output directory: %w", err)
	}
	for _, path := range paths {
		byID, err := readRows(path)
		if err != nil {
			return fmt.Errorf("failed to load existing results from %s: %w", path, err)
		}
		stormType := strings.TrimSuffix(filepath.Base(path), csvSuffix)
		w.rows[stormType] = byID
	}
	return nil
}

// Upsert records the row and rewrites the storm type's file.
func (w *CSVWriter) Upsert(_ context.Context, workItemID string, result models.SimulationResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	byID, ok := w.rows[result.StormType]
	if !ok {
		byID = make(map[string]models.SimulationResult)
		w.rows[result.StormType] = byID
	}
	byID[workItemID] = result

	if err := w.writeFile(result.StormType, byID); err != nil {
		return fmt.Errorf("failed to write csv for %s: %w", workItemID, err)
	}
	return nil
}

// Path returns the output file for a storm type.
func (w *CSVWriter) Path(stormType string) string {
	return filepath.Join(w.outputDir, stormType+csvSuffix)
}

func readRows(path string) (map[string]models.SimulationResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.SimulationResult)
	for i, rec := range records {
		if i == 0 {
			continue
		}
		if len(rec) != len(csvHeader) {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(rec), len(csvHeader))
		}

		r := models.SimulationResult{
			WorkItemID: rec[0],
			BatchID:    rec[1],
			StormType:  rec[2],
			State:      rec[3],
			Severity:   rec[4],
		}
		for j, dst := range []*float64{
			&r.SizeMiles, &r.TotalExposure, &r.TotalPremium,
			&r.TotalLoss, &r.LossRatio, &r.DurationSeconds,
		} {
			v, err := strconv.ParseFloat(rec[5+j], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i, csvHeader[5+j], err)
			}
			*dst = v
		}
		byID[r.WorkItemID] = r
	}
	return byID, nil
}

func (w *CSVWriter) writeFile(stormType string, byID map[string]models.SimulationResult) error {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	f, err := os.Create(w.Path(stormType))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, id := range ids {
		r := byID[id]
		row := []string{
			r.WorkItemID, r.BatchID, r.StormType, r.State, r.Severity,
			formatFloat(r.SizeMiles), formatFloat(r.TotalExposure),
			formatFloat(r.TotalPremium), formatFloat(r.TotalLoss),
			formatFloat(r.LossRatio), formatFloat(r.DurationSeconds),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
