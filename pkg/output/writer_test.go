package output

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"testing"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

func result(id string) models.SimulationResult {
	return models.SimulationResult{
		WorkItemID:   id,
		BatchID:      "b1",
		StormType:    "hail",
		State:        "MO",
		Severity:     "moderate",
		SizeMiles:    20,
		TotalPremium: 600000,
		TotalLoss:    120000,
		LossRatio:    0.2,
	}
}

func TestMemoryWriterUpsertReplacesRow(t *testing.T) {
	w := NewMemoryWriter()
	ctx := context.Background()

	if err := w.Upsert(ctx, "b1-0", result("b1-0")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	updated := result("b1-0")
	updated.TotalLoss = 999
	if err := w.Upsert(ctx, "b1-0", updated); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rows := w.Rows()
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row after retried upsert, got %d", len(rows))
	}
	if rows["b1-0"].TotalLoss != 999 {
		t.Errorf("Expected latest write to win, got loss %.0f", rows["b1-0"].TotalLoss)
	}
	if w.Upserts() != 2 {
		t.Errorf("Expected 2 recorded upserts, got %d", w.Upserts())
	}
}

func TestCSVWriterUpsertRewritesFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("NewCSVWriter failed: %v", err)
	}
	ctx := context.Background()

	if err := w.Upsert(ctx, "b1-1", result("b1-1")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := w.Upsert(ctx, "b1-0", result("b1-0")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	// Retried commit for an id must not duplicate its row.
	if err := w.Upsert(ctx, "b1-1", result("b1-1")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rows := readCSV(t, w.Path("hail"))
	if len(rows) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d lines", len(rows))
	}
	if rows[0][0] != "work_item_id" {
		t.Errorf("Expected header row, got %v", rows[0])
	}
	if rows[1][0] != "b1-0" || rows[2][0] != "b1-1" {
		t.Errorf("Expected rows sorted by id, got %v then %v", rows[1][0], rows[2][0])
	}
}

func TestCSVWriterKeepsCommittedRowsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("NewCSVWriter failed: %v", err)
	}
	committed := result("b1-0")
	committed.TotalLoss = 777
	if err := first.Upsert(ctx, "b1-0", committed); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// A restarted worker opens a fresh writer over the same directory.
	// b1-0 is completed in the ledger and will never be redelivered, so
	// its row must survive the next commit.
	second, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("NewCSVWriter after restart failed: %v", err)
	}
	if err := second.Upsert(ctx, "b1-1", result("b1-1")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rows := readCSV(t, second.Path("hail"))
	if len(rows) != 3 {
		t.Fatalf("Expected header plus 2 rows after restart, got %d lines", len(rows))
	}
	if rows[1][0] != "b1-0" || rows[2][0] != "b1-1" {
		t.Fatalf("Expected b1-0 then b1-1, got %v then %v", rows[1][0], rows[2][0])
	}
	if rows[1][8] != "777" {
		t.Errorf("Expected reloaded loss 777 for b1-0, got %s", rows[1][8])
	}

	// A retried commit for a reloaded id still replaces instead of
	// appending.
	if err := second.Upsert(ctx, "b1-0", committed); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if rows := readCSV(t, second.Path("hail")); len(rows) != 3 {
		t.Errorf("Expected 2 rows after retried commit, got %d lines", len(rows))
	}
}

func TestCSVWriterSplitsByStormType(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("NewCSVWriter failed: %v", err)
	}
	ctx := context.Background()

	hail := result("b1-0")
	wind := result("b2-0")
	wind.StormType = "wind"
	if err := w.Upsert(ctx, "b1-0", hail); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := w.Upsert(ctx, "b2-0", wind); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if rows := readCSV(t, w.Path("hail")); len(rows) != 2 {
		t.Errorf("Expected 1 hail row, got %d lines", len(rows))
	}
	if rows := readCSV(t, w.Path("wind")); len(rows) != 2 {
		t.Errorf("Expected 1 wind row, got %d lines", len(rows))
	}
}

func TestMultiFansOutAndStopsOnFailure(t *testing.T) {
	ctx := context.Background()
	first := NewMemoryWriter()
	second := NewMemoryWriter()

	multi := NewMulti(first, second)
	if err := multi.Upsert(ctx, "b1-0", result("b1-0")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if first.Upserts() != 1 || second.Upserts() != 1 {
		t.Errorf("Expected both writers hit, got %d and %d", first.Upserts(), second.Upserts())
	}

	failing := NewMulti(&failingWriter{}, second)
	if err := failing.Upsert(ctx, "b1-1", result("b1-1")); err == nil {
		t.Fatal("Expected the failing writer's error to surface")
	}
	if second.Upserts() != 1 {
		t.Errorf("Expected fan-out to stop at the failure, got %d upserts", second.Upserts())
	}
}

type failingWriter struct{}

func (failingWriter) Upsert(context.Context, string, models.SimulationResult) error {
	return errors.New("sink unavailable")
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse %s: %v", path, err)
	}
	return rows
}
