package storm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Assumptions are the historical matrices a hail model draws from: how
// likely each severity is, which states each severity tends to hit, how
// large the storm footprint is, and the payout per impacted property.
// Defaults are compiled in; a YAML file can override them.
type Assumptions struct {
	// SeverityWeights maps severity to its relative likelihood.
	SeverityWeights map[string]float64 `yaml:"severity_weights"`

	// StateWeights maps severity to per-state likelihoods.
	StateWeights map[string]map[string]float64 `yaml:"state_weights"`

	// SizeWeights maps severity to storm radius (miles) likelihoods.
	SizeWeights map[string]map[string]float64 `yaml:"size_weights"`

	// Payouts maps severity to the payout in USD per impacted property.
	Payouts map[string]float64 `yaml:"payouts"`

	// PremiumPerProperty is the annual premium in USD per sampled property.
	PremiumPerProperty float64 `yaml:"premium_per_property"`

	// PropertiesPerState is the sample size drawn in each state.
	PropertiesPerState int `yaml:"properties_per_state"`
}

// SimulatedStates are the states with pre-sampled policyholders.
var SimulatedStates = []string{"AR", "GA", "IA", "IL", "IN", "KY", "MO", "OH", "TN"}

const (
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

// DefaultAssumptions returns the compiled-in hail assumption matrices.
func DefaultAssumptions() Assumptions {
	uniformStates := func(weight float64) map[string]float64 {
		m := make(map[string]float64, len(SimulatedStates))
		for _, s := range SimulatedStates {
			m[s] = weight
		}
		return m
	}

	return Assumptions{
		SeverityWeights: map[string]float64{
			SeverityMinor:    0.70,
			SeverityModerate: 0.25,
			SeveritySevere:   0.05,
		},
		StateWeights: map[string]map[string]float64{
			SeverityMinor:    uniformStates(1),
			SeverityModerate: uniformStates(1),
			SeveritySevere: {
				"AR": 2, "GA": 1, "IA": 2, "IL": 2, "IN": 1,
				"KY": 1, "MO": 3, "OH": 1, "TN": 2,
			},
		},
		SizeWeights: map[string]map[string]float64{
			SeverityMinor:    {"5": 6, "10": 3, "15": 1},
			SeverityModerate: {"10": 4, "20": 4, "30": 2},
			SeveritySevere:   {"25": 3, "40": 4, "60": 3},
		},
		Payouts: map[string]float64{
			SeverityMinor:    2500,
			SeverityModerate: 10000,
			SeveritySevere:   40000,
		},
		PremiumPerProperty: 1200,
		PropertiesPerState: 500,
	}
}

// LoadAssumptions reads an assumptions file, filling gaps from defaults.
func LoadAssumptions(path string) (Assumptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Assumptions{}, fmt.Errorf("failed to read assumptions file: %w", err)
	}

	a := DefaultAssumptions()
	if err := yaml.Unmarshal(data, &a); err != nil {
		return Assumptions{}, fmt.Errorf("failed to parse assumptions file: %w", err)
	}
	if err := a.Validate(); err != nil {
		return Assumptions{}, err
	}
	return a, nil
}

// Validate checks the matrices are usable.
func (a Assumptions) Validate() error {
	if len(a.SeverityWeights) == 0 {
		return fmt.Errorf("assumptions have no severity weights")
	}
	for severity := range a.SeverityWeights {
		if len(a.StateWeights[severity]) == 0 {
			return fmt.Errorf("assumptions have no state weights for severity %s", severity)
		}
		if len(a.SizeWeights[severity]) == 0 {
			return fmt.Errorf("assumptions have no size weights for severity %s", severity)
		}
		if a.Payouts[severity] <= 0 {
			return fmt.Errorf("assumptions have no payout for severity %s", severity)
		}
	}
	if a.PremiumPerProperty <= 0 {
		return fmt.Errorf("premium per property must be positive")
	}
	if a.PropertiesPerState < 1 {
		return fmt.Errorf("properties per state must be at least 1")
	}
	return nil
}
