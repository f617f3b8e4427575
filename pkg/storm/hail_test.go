package storm

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

func hailItem(id string, states []string) models.WorkItem {
	return models.WorkItem{
		ID:        id,
		BatchID:   "b1",
		StormType: "hail",
		States:    states,
	}
}

func TestHailRunIsDeterministicPerWorkItem(t *testing.T) {
	sim := NewHailSimulation(DefaultAssumptions())
	item := hailItem("b1-0", nil)

	first, err := sim.Run(context.Background(), item)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	second, err := sim.Run(context.Background(), item)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if first.State != second.State ||
		first.Severity != second.Severity ||
		first.SizeMiles != second.SizeMiles ||
		first.TotalLoss != second.TotalLoss {
		t.Errorf("Expected identical storms for the same work item, got %+v and %+v", first, second)
	}
}

func TestHailRunVariesAcrossWorkItems(t *testing.T) {
	sim := NewHailSimulation(DefaultAssumptions())

	seen := make(map[float64]bool)
	for seq := 0; seq < 20; seq++ {
		item := hailItem(models.DeriveWorkItemID("b1", seq), nil)
		result, err := sim.Run(context.Background(), item)
		if err != nil {
			t.Fatalf("Run failed for %s: %v", item.ID, err)
		}
		seen[result.TotalLoss] = true
	}

	if len(seen) < 2 {
		t.Error("Expected different work items to produce different storms")
	}
}

func TestHailRunResultShape(t *testing.T) {
	a := DefaultAssumptions()
	sim := NewHailSimulation(a)
	item := hailItem("b1-7", nil)

	result, err := sim.Run(context.Background(), item)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.WorkItemID != "b1-7" || result.BatchID != "b1" || result.StormType != "hail" {
		t.Errorf("Result carries wrong identity: %+v", result)
	}

	validState := false
	for _, s := range SimulatedStates {
		if result.State == s {
			validState = true
		}
	}
	if !validState {
		t.Errorf("Unexpected state %s", result.State)
	}

	expectedPremium := float64(a.PropertiesPerState) * a.PremiumPerProperty
	if result.TotalPremium != expectedPremium {
		t.Errorf("Expected premium %.0f, got %.0f", expectedPremium, result.TotalPremium)
	}
	if result.TotalExposure != float64(a.PropertiesPerState)*a.Payouts[result.Severity] {
		t.Errorf("Exposure does not match severity payout: %+v", result)
	}
	if result.TotalLoss < 0 || result.TotalLoss > result.TotalExposure {
		t.Errorf("Loss %.0f outside [0, exposure %.0f]", result.TotalLoss, result.TotalExposure)
	}
	if result.LossRatio < 0 {
		t.Errorf("Negative loss ratio %.4f", result.LossRatio)
	}
}

func TestHailRunHonorsStateFilter(t *testing.T) {
	sim := NewHailSimulation(DefaultAssumptions())

	for seq := 0; seq < 10; seq++ {
		item := hailItem(models.DeriveWorkItemID("b1", seq), []string{"MO", "AR"})
		result, err := sim.Run(context.Background(), item)
		if err != nil {
			t.Fatalf("Run failed for %s: %v", item.ID, err)
		}
		if result.State != "MO" && result.State != "AR" {
			t.Errorf("Expected state MO or AR, got %s", result.State)
		}
	}
}

func TestHailRunUnmatchableStateFilterIsTerminal(t *testing.T) {
	sim := NewHailSimulation(DefaultAssumptions())
	item := hailItem("b1-0", []string{"CA"})

	_, err := sim.Run(context.Background(), item)
	if err == nil {
		t.Fatal("Expected an error for an unmatchable state filter")
	}
	if !IsTerminal(err) {
		t.Errorf("Expected a terminal error, got %v", err)
	}
}

func TestRegistryRunUnsupportedStormType(t *testing.T) {
	_, err := DefaultRegistry.Run(context.Background(), models.WorkItem{
		ID:        "b1-0",
		StormType: "tornado",
	})
	if err == nil {
		t.Fatal("Expected an error for an unsupported storm type")
	}
	if !IsTerminal(err) {
		t.Errorf("Expected a terminal error, got %v", err)
	}
	if !strings.Contains(err.Error(), "tornado") {
		t.Errorf("Error should name the storm type: %v", err)
	}
}

func TestDefaultRegistryKnowsHail(t *testing.T) {
	found := false
	for _, name := range DefaultRegistry.List() {
		if name == "hail" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected hail in registry, got %v", DefaultRegistry.List())
	}

	sim, err := DefaultRegistry.Get("hail")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sim.Name() != "hail" {
		t.Errorf("Expected model name hail, got %s", sim.Name())
	}
}

func TestWeightedChoiceRespectsWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	weights := map[string]float64{"a": 0, "b": 5}

	for i := 0; i < 50; i++ {
		choice, err := weightedChoice(rng, weights)
		if err != nil {
			t.Fatalf("weightedChoice failed: %v", err)
		}
		if choice != "b" {
			t.Fatalf("Expected only b to be drawable, got %s", choice)
		}
	}

	if _, err := weightedChoice(rng, map[string]float64{"a": 0}); err == nil {
		t.Error("Expected an error when no weight is positive")
	}
}

func TestAssumptionsValidate(t *testing.T) {
	if err := DefaultAssumptions().Validate(); err != nil {
		t.Errorf("Default assumptions should validate: %v", err)
	}

	a := DefaultAssumptions()
	a.Payouts[SeveritySevere] = 0
	if err := a.Validate(); err == nil {
		t.Error("Expected a validation error for a missing payout")
	}

	a = DefaultAssumptions()
	a.PropertiesPerState = 0
	if err := a.Validate(); err == nil {
		t.Error("Expected a validation error for zero properties per state")
	}
}

func TestLoadAssumptionsOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assumptions.yaml")
	content := "premium_per_property: 2000\nproperties_per_state: 100\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	a, err := LoadAssumptions(path)
	if err != nil {
		t.Fatalf("LoadAssumptions failed: %v", err)
	}
	if a.PremiumPerProperty != 2000 {
		t.Errorf("Expected overridden premium 2000, got %.0f", a.PremiumPerProperty)
	}
	if a.PropertiesPerState != 100 {
		t.Errorf("Expected overridden sample size 100, got %d", a.PropertiesPerState)
	}
	if len(a.SeverityWeights) == 0 {
		t.Error("Expected defaults to fill unset matrices")
	}

	if _, err := LoadAssumptions(path + ".missing"); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
