package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sola-insurance/storm-sims/pkg/channel"
	"github.com/sola-insurance/storm-sims/pkg/config"
	"github.com/sola-insurance/storm-sims/pkg/ledger"
	"github.com/sola-insurance/storm-sims/pkg/logger"
	"github.com/sola-insurance/storm-sims/pkg/output"
	"github.com/sola-insurance/storm-sims/pkg/storm"
	"github.com/sola-insurance/storm-sims/pkg/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume and execute simulation work items",
	Long: `Worker subscribes to the work item channel and runs one simulation
per delivery. Duplicate deliveries of the same item are deduplicated through
the idempotency ledger, so running several workers against the same
subscription is safe.`,
	RunE: runWorker,
}

func runWorker(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn("Received interrupt signal, stopping worker...")
		cancel()
	}()

	led, ledCleanup, err := buildLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer ledCleanup()

	writer, writerCleanup, err := buildWriter(ctx, cfg)
	if err != nil {
		return err
	}
	defer writerCleanup()

	runner, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	ps, err := channel.NewPubSub(ctx, cfg.ProjectID, logger.New())
	if err != nil {
		return fmt.Errorf("failed to connect to pubsub: %w", err)
	}
	defer func() { _ = ps.Close() }()

	w := worker.New(led, runner, writer, worker.Options{}, logger.New())

	logger.LogSection(logger.IconStorm + " Storm simulation worker")
	logger.Progressf("Listening on subscription %s", cfg.Subscription)
	if err := ps.Receive(ctx, cfg.Subscription, w.Handle); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}

	logger.Success("Worker stopped cleanly")
	return nil
}

// buildLedger opens the durable ledger, or falls back to the in-process
// one when no DSN is configured.
func buildLedger(ctx context.Context, cfg config.Config) (ledger.Ledger, func(), error) {
	if cfg.LedgerDSN == "" {
		logger.Warn("LEDGER_DSN not set; idempotency records will not survive a restart")
		return ledger.NewMemory(), func() {}, nil
	}

	pg, err := ledger.NewPostgres(ctx, cfg.LedgerDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return pg, func() { _ = pg.Close() }, nil
}

// buildWriter assembles the configured result writers into one fan-out.
func buildWriter(ctx context.Context, cfg config.Config) (output.ResultWriter, func(), error) {
	var writers []output.ResultWriter
	cleanup := func() {}

	if cfg.OutputDir != "" {
		csv, err := output.NewCSVWriter(cfg.OutputDir)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, csv)
	}

	if cfg.BigQueryDataset != "" {
		bq, err := output.NewBigQueryWriter(ctx, cfg.ProjectID, cfg.BigQueryDataset, cfg.BigQueryTable)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, bq)
		cleanup = func() { _ = bq.Close() }
	}

	if len(writers) == 0 {
		logger.Warn("Running simulations without a durable output destination")
		writers = append(writers, output.NewMemoryWriter())
	}

	return output.NewMulti(writers...), cleanup, nil
}

// buildRunner returns the storm registry, rebuilt with overridden hail
// assumptions when a file is configured.
func buildRunner(cfg config.Config) (worker.Runner, error) {
	if cfg.AssumptionsPath == "" {
		return storm.DefaultRegistry, nil
	}

	assumptions, err := storm.LoadAssumptions(cfg.AssumptionsPath)
	if err != nil {
		return nil, err
	}

	reg := storm.NewRegistry()
	if err := reg.Register("hail", func() storm.Simulation {
		return storm.NewHailSimulation(assumptions)
	}); err != nil {
		return nil, err
	}
	return reg, nil
}
