package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults for the fan-out transport and output destination.
const (
	DefaultTopic        = "run-storm-simulation"
	DefaultSubscription = "run-storm-simulation-sub"
)

// Config holds the runtime configuration shared by the trigger and worker
// entrypoints. Values are passed through to the collaborators, not
// interpreted here.
type Config struct {
	// ProjectID is the Google Cloud project for Pub/Sub and BigQuery.
	ProjectID string `yaml:"project_id"`

	// Topic carries work items from the dispatcher to the workers.
	Topic string `yaml:"topic"`

	// Subscription is the worker's pull subscription on Topic.
	Subscription string `yaml:"subscription"`

	// BigQueryDataset and BigQueryTable locate the losses table. Empty
	// dataset disables the BigQuery writer.
	BigQueryDataset string `yaml:"bigquery_dataset"`
	BigQueryTable   string `yaml:"bigquery_table"`

	// OutputDir enables the local CSV writer when set.
	OutputDir string `yaml:"output_dir"`

	// LedgerDSN is the Postgres connection string for the idempotency
	// ledger. Empty falls back to the in-memory ledger.
	LedgerDSN string `yaml:"ledger_dsn"`

	// SkipPubSub switches the dispatcher to the inert publisher: work
	// items are logged, not queued.
	SkipPubSub bool `yaml:"skip_pubsub"`

	// AssumptionsPath optionally overrides the compiled-in hail
	// assumption matrices.
	AssumptionsPath string `yaml:"assumptions_path"`

	// LogLevel is the minimum level logged (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// FromEnv builds a Config from environment variables, applying defaults.
func FromEnv() Config {
	return Config{
		ProjectID:       os.Getenv("PROJECT_ID"),
		Topic:           envOr("PUBSUB_TOPIC", DefaultTopic),
		Subscription:    envOr("PUBSUB_SUBSCRIPTION", DefaultSubscription),
		BigQueryDataset: os.Getenv("BIGQUERY_DATASET"),
		BigQueryTable:   os.Getenv("BIGQUERY_TABLE"),
		OutputDir:       os.Getenv("OUTPUT_DIR"),
		LedgerDSN:       os.Getenv("LEDGER_DSN"),
		SkipPubSub:      envBool("SKIP_PUBSUB"),
		AssumptionsPath: os.Getenv("ASSUMPTIONS_PATH"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
	}
}

// Load reads a YAML config file over the environment-derived defaults. A
// missing path returns the environment config unchanged.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v := os.Getenv(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		// Any non-empty value enables the toggle.
		return true
	}
	return b
}
