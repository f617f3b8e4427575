package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sola-insurance/storm-sims/pkg/channel"
	"github.com/sola-insurance/storm-sims/pkg/logger"
	"github.com/sola-insurance/storm-sims/pkg/models"
)

func quietLogger() logger.Logger {
	return logger.NewWithConfig(logger.Config{Level: logger.FatalLevel})
}

func testOptions() Options {
	return Options{
		Topic:               "test-topic",
		SupportedStormTypes: []string{"hail"},
		MaxPublishRetries:   1,
		RetryBaseDelay:      time.Millisecond,
	}
}

// flakyPublisher fails the first failRemaining publish attempts.
type flakyPublisher struct {
	mu            sync.Mutex
	failRemaining int
	alwaysFail    bool
	published     []models.WorkItem
}

func (p *flakyPublisher) Publish(_ context.Context, _ string, item models.WorkItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.alwaysFail {
		return fmt.Errorf("publish unavailable")
	}
	if p.failRemaining > 0 {
		p.failRemaining--
		return fmt.Errorf("transient publish failure for %s", item.ID)
	}
	p.published = append(p.published, item)
	return nil
}

func TestHandleBatchPublishesNDistinctItems(t *testing.T) {
	mem := channel.NewMemory()
	d := New(mem, nil, testOptions(), quietLogger())

	summary, err := d.HandleBatch(context.Background(), models.BatchRequest{
		StormType: "hail",
		NumSims:   3,
	})
	if err != nil {
		t.Fatalf("HandleBatch failed: %v", err)
	}
	if summary.NumPublished != 3 || summary.NumFailed != 0 {
		t.Errorf("Expected 3 published / 0 failed, got %d/%d", summary.NumPublished, summary.NumFailed)
	}

	items := mem.Published()
	if len(items) != 3 {
		t.Fatalf("Expected 3 published items, got %d", len(items))
	}

	// Every item id must be the deterministic derivation of (batch, seq)
	// and all ids must be distinct.
	seen := make(map[string]bool)
	for _, item := range items {
		expected := models.DeriveWorkItemID(summary.BatchID, item.Seq)
		if item.ID != expected {
			t.Errorf("Expected id %s, got %s", expected, item.ID)
		}
		if seen[item.ID] {
			t.Errorf("Duplicate work item id %s", item.ID)
		}
		seen[item.ID] = true
		if item.StormType != "hail" {
			t.Errorf("Expected storm type hail, got %s", item.StormType)
		}
	}
}

func TestHandleBatchRejectsInvalidRequests(t *testing.T) {
	mem := channel.NewMemory()
	d := New(mem, nil, testOptions(), quietLogger())

	// num_sims < 1 must publish nothing.
	for _, numSims := range []int{0, -1} {
		_, err := d.HandleBatch(context.Background(), models.BatchRequest{
			StormType: "hail",
			NumSims:   numSims,
		})
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("num_sims=%d: expected ErrInvalidRequest, got %v", numSims, err)
		}
	}

	// Unsupported storm type must also be rejected up front.
	_, err := d.HandleBatch(context.Background(), models.BatchRequest{
		StormType: "tornado",
		NumSims:   2,
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for tornado, got %v", err)
	}

	if got := len(mem.Published()); got != 0 {
		t.Errorf("Expected zero publishes for invalid requests, got %d", got)
	}
}

func TestHandleBatchDefaultsStormType(t *testing.T) {
	mem := channel.NewMemory()
	d := New(mem, nil, testOptions(), quietLogger())

	summary, err := d.HandleBatch(context.Background(), models.BatchRequest{NumSims: 1})
	if err != nil {
		t.Fatalf("HandleBatch failed: %v", err)
	}
	if summary.NumPublished != 1 {
		t.Fatalf("Expected 1 published, got %d", summary.NumPublished)
	}
	if got := mem.Published()[0].StormType; got != models.DefaultStormType {
		t.Errorf("Expected default storm type, got %s", got)
	}
}

func TestHandleBatchRetriesTransientPublishFailures(t *testing.T) {
	// Fail the first attempt; one retry is allowed, so the item still
	// publishes.
	pub := &flakyPublisher{failRemaining: 1}
	d := New(pub, nil, testOptions(), quietLogger())

	summary, err := d.HandleBatch(context.Background(), models.BatchRequest{
		StormType: "hail",
		NumSims:   1,
	})
	if err != nil {
		t.Fatalf("HandleBatch failed: %v", err)
	}
	if summary.NumPublished != 1 {
		t.Fatalf("Expected publish to succeed, got %+v", summary)
	}
}

func TestHandleBatchCountsExhaustedItemsWithoutAborting(t *testing.T) {
	pub := &flakyPublisher{alwaysFail: true}
	d := New(pub, nil, testOptions(), quietLogger())

	summary, err := d.HandleBatch(context.Background(), models.BatchRequest{
		StormType: "hail",
		NumSims:   4,
	})
	if err != nil {
		t.Fatalf("Partial failure must not error the batch: %v", err)
	}
	if summary.NumPublished != 0 || summary.NumFailed != 4 {
		t.Errorf("Expected 0 published / 4 failed, got %d/%d", summary.NumPublished, summary.NumFailed)
	}
}

func TestHandleBatchGuardRejectsDuplicateTrigger(t *testing.T) {
	mem := channel.NewMemory()
	guard := NewMemoryGuard()
	d := New(mem, guard, testOptions(), quietLogger())

	req := models.BatchRequest{StormType: "hail", NumSims: 2, RequestKey: "scheduler-run-17"}

	first, err := d.HandleBatch(context.Background(), req)
	if err != nil {
		t.Fatalf("First trigger failed: %v", err)
	}
	if first.NumPublished != 2 {
		t.Fatalf("Expected 2 published, got %d", first.NumPublished)
	}

	// A scheduler retry of the same invocation must not double-publish.
	_, err = d.HandleBatch(context.Background(), req)
	if !errors.Is(err, ErrDuplicateTrigger) {
		t.Fatalf("Expected ErrDuplicateTrigger, got %v", err)
	}
	if got := len(mem.Published()); got != 2 {
		t.Errorf("Expected 2 total publishes after duplicate trigger, got %d", got)
	}

	record, ok := guard.Record("scheduler-run-17")
	if !ok {
		t.Fatal("Expected a dispatch record")
	}
	if record.Status != models.BatchDispatched {
		t.Errorf("Expected dispatched status, got %s", record.Status)
	}

	// A different invocation key dispatches normally.
	req.RequestKey = "scheduler-run-18"
	if _, err := d.HandleBatch(context.Background(), req); err != nil {
		t.Errorf("Distinct request key must dispatch: %v", err)
	}
}

func TestRepublishKeepsBatchDerivation(t *testing.T) {
	mem := channel.NewMemory()
	d := New(mem, nil, testOptions(), quietLogger())

	summary, err := d.Republish(context.Background(), "b1", 1700000000, []int{1, 24}, models.BatchRequest{
		StormType: "hail",
	})
	if err != nil {
		t.Fatalf("Republish failed: %v", err)
	}
	if summary.BatchID != "b1" || summary.NumPublished != 2 {
		t.Fatalf("Unexpected summary %+v", summary)
	}

	items := mem.Published()
	if items[0].ID != "b1-1" || items[1].ID != "b1-24" {
		t.Errorf("Expected re-derived ids b1-1/b1-24, got %s/%s", items[0].ID, items[1].ID)
	}
	if items[0].RunTimestamp != 1700000000 {
		t.Errorf("Expected original run timestamp, got %d", items[0].RunTimestamp)
	}
}

func TestRepublishValidatesInput(t *testing.T) {
	d := New(channel.NewMemory(), nil, testOptions(), quietLogger())

	if _, err := d.Republish(context.Background(), "", 0, []int{1}, models.BatchRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for missing batch id, got %v", err)
	}
	if _, err := d.Republish(context.Background(), "b1", 0, nil, models.BatchRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for empty seqs, got %v", err)
	}
}
