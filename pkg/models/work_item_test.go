package models

import (
	"testing"
)

func TestDeriveWorkItemID(t *testing.T) {
	if got := DeriveWorkItemID("b1", 0); got != "b1-0" {
		t.Errorf("Expected b1-0, got %s", got)
	}
	if got := DeriveWorkItemID("b1", 42); got != "b1-42" {
		t.Errorf("Expected b1-42, got %s", got)
	}

	// Same inputs must always derive the same id.
	if DeriveWorkItemID("b1", 7) != DeriveWorkItemID("b1", 7) {
		t.Error("Derivation is not deterministic")
	}

	// Different batches or sequences must never collide.
	if DeriveWorkItemID("b1", 1) == DeriveWorkItemID("b2", 1) {
		t.Error("Ids collide across batches")
	}
	if DeriveWorkItemID("b1", 1) == DeriveWorkItemID("b1", 2) {
		t.Error("Ids collide across sequence indexes")
	}
}

func TestNewWorkItem(t *testing.T) {
	req := BatchRequest{
		StormType: "hail",
		NumSims:   3,
		States:    []string{"TN", "GA"},
	}

	item := NewWorkItem("b1", 2, 1700000000, req)

	if item.ID != "b1-2" {
		t.Errorf("Expected id b1-2, got %s", item.ID)
	}
	if item.BatchID != "b1" || item.Seq != 2 {
		t.Errorf("Unexpected batch fields: %s/%d", item.BatchID, item.Seq)
	}
	if item.StormType != "hail" {
		t.Errorf("Expected storm type hail, got %s", item.StormType)
	}
	if item.RunTimestamp != 1700000000 {
		t.Errorf("Expected run timestamp 1700000000, got %d", item.RunTimestamp)
	}
	if len(item.States) != 2 {
		t.Errorf("Expected 2 states, got %v", item.States)
	}
}

func TestWorkItemEncodeDecode(t *testing.T) {
	item := NewWorkItem("b1", 0, 1700000000, BatchRequest{StormType: "hail", NumSims: 1})

	data, err := item.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeWorkItem(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.ID != item.ID || decoded.StormType != item.StormType {
		t.Errorf("Roundtrip changed the item: %+v vs %+v", decoded, item)
	}
}

func TestDecodeWorkItemRejectsBadPayloads(t *testing.T) {
	if _, err := DecodeWorkItem([]byte("not json")); err == nil {
		t.Error("Expected error for malformed payload")
	}
	if _, err := DecodeWorkItem([]byte(`{"storm_type":"hail"}`)); err == nil {
		t.Error("Expected error for payload without an id")
	}
}

func TestBatchRequestValidate(t *testing.T) {
	if err := (BatchRequest{StormType: "hail", NumSims: 1}).Validate(); err != nil {
		t.Errorf("Expected valid request, got %v", err)
	}
	if err := (BatchRequest{StormType: "hail", NumSims: 0}).Validate(); err == nil {
		t.Error("Expected error for num_sims = 0")
	}
	if err := (BatchRequest{StormType: "hail", NumSims: -5}).Validate(); err == nil {
		t.Error("Expected error for negative num_sims")
	}
}
