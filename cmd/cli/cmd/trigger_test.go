package cmd

import (
	"context"
	"testing"

	"github.com/sola-insurance/storm-sims/pkg/config"
	"github.com/sola-insurance/storm-sims/pkg/dispatch"
)

// The durable guard must satisfy the same contract the dispatcher holds.
var _ dispatch.Guard = (*dispatch.PostgresGuard)(nil)

func TestBuildGuardFallsBackToMemoryWithoutDSN(t *testing.T) {
	guard, cleanup, err := buildGuard(context.Background(), config.Config{}, "scheduler-run-17")
	if err != nil {
		t.Fatalf("buildGuard failed: %v", err)
	}
	defer cleanup()

	if _, ok := guard.(*dispatch.MemoryGuard); !ok {
		t.Fatalf("Expected in-process guard without a DSN, got %T", guard)
	}
}
