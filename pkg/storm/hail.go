package storm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/sola-insurance/storm-sims/pkg/models"
)

func init() {
	_ = DefaultRegistry.Register("hail", func() Simulation {
		return NewHailSimulation(DefaultAssumptions())
	})
}

// HailSimulation generates a synthetic hail storm from historical
// assumption matrices and tallies its dollar impact against a sampled book
// of properties. All randomness is seeded from the work item id, so a
// redelivered item reproduces the same storm and the result commit stays
// idempotent.
type HailSimulation struct {
	assumptions Assumptions
	now         func() time.Time
}

// NewHailSimulation creates a hail model with the given assumptions.
func NewHailSimulation(a Assumptions) *HailSimulation {
	return &HailSimulation{assumptions: a, now: time.Now}
}

// Name returns the storm type handled by this model
func (h *HailSimulation) Name() string { return "hail" }

// Description returns a brief description of what the model simulates
func (h *HailSimulation) Description() string {
	return "Synthetic hail storm loss simulation against sampled properties"
}

// Run executes one hail simulation for the work item.
func (h *HailSimulation) Run(ctx context.Context, item models.WorkItem) (models.SimulationResult, error) {
	if err := ctx.Err(); err != nil {
		return models.SimulationResult{}, err
	}
	start := h.now()

	rng := rand.New(rand.NewSource(seedFor(item)))

	severity, err := weightedChoice(rng, h.assumptions.SeverityWeights)
	if err != nil {
		return models.SimulationResult{}, Terminal(fmt.Errorf("drawing severity: %w", err))
	}

	stateWeights := h.assumptions.StateWeights[severity]
	if len(item.States) > 0 {
		stateWeights = filterStates(stateWeights, item.States)
	}
	state, err := weightedChoice(rng, stateWeights)
	if err != nil {
		return models.SimulationResult{}, Terminal(
			fmt.Errorf("no simulated states match %v for severity %s: %w", item.States, severity, err))
	}

	sizeKey, err := weightedChoice(rng, h.assumptions.SizeWeights[severity])
	if err != nil {
		return models.SimulationResult{}, Terminal(fmt.Errorf("drawing storm size: %w", err))
	}
	sizeMiles, err := strconv.ParseFloat(sizeKey, 64)
	if err != nil {
		return models.SimulationResult{}, Terminal(fmt.Errorf("bad size key %q: %w", sizeKey, err))
	}

	// Tally the book: every sampled property in the state carries premium
	// and exposure; the storm footprint determines how many are hit.
	numProperties := h.assumptions.PropertiesPerState
	payout := h.assumptions.Payouts[severity]
	totalPremium := float64(numProperties) * h.assumptions.PremiumPerProperty
	totalExposure := float64(numProperties) * payout

	hitFraction := hitFraction(sizeMiles)
	numHit := int(math.Round(float64(numProperties) * hitFraction * (0.8 + 0.4*rng.Float64())))
	if numHit > numProperties {
		numHit = numProperties
	}
	totalLoss := float64(numHit) * payout

	return models.SimulationResult{
		WorkItemID:      item.ID,
		BatchID:         item.BatchID,
		StormType:       item.StormType,
		State:           state,
		Severity:        severity,
		SizeMiles:       sizeMiles,
		TotalExposure:   totalExposure,
		TotalPremium:    totalPremium,
		TotalLoss:       totalLoss,
		LossRatio:       lossRatio(totalPremium, totalLoss),
		DurationSeconds: h.now().Sub(start).Seconds(),
	}, nil
}

// seedFor derives the deterministic RNG seed for a work item.
func seedFor(item models.WorkItem) int64 {
	hash := fnv.New64a()
	_, _ = hash.Write([]byte(item.ID))
	return int64(hash.Sum64())
}

// hitFraction approximates the share of a state's sampled properties inside
// a circular storm footprint of the given radius.
func hitFraction(radiusMiles float64) float64 {
	const stateAreaSqMiles = 50000
	area := math.Pi * radiusMiles * radiusMiles
	f := area / stateAreaSqMiles
	if f > 1 {
		return 1
	}
	return f
}

func lossRatio(premium, loss float64) float64 {
	if premium == 0 {
		return 0
	}
	return math.Round(loss/premium*10000) / 10000
}

// weightedChoice draws a key with probability proportional to its weight.
// Keys are visited in sorted order so the draw is stable for a fixed seed.
func weightedChoice(rng *rand.Rand, weights map[string]float64) (string, error) {
	keys := make([]string, 0, len(weights))
	var total float64
	for k, w := range weights {
		if w <= 0 {
			continue
		}
		keys = append(keys, k)
		total += w
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("no choices with positive weight")
	}
	sort.Strings(keys)

	target := rng.Float64() * total
	for _, k := range keys {
		target -= weights[k]
		if target < 0 {
			return k, nil
		}
	}
	return keys[len(keys)-1], nil
}

func filterStates(weights map[string]float64, states []string) map[string]float64 {
	allowed := make(map[string]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}

	filtered := make(map[string]float64)
	for k, w := range weights {
		if allowed[k] {
			filtered[k] = w
		}
	}
	return filtered
}
